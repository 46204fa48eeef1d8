package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVector_RejectsPartialBlob(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidVectorBlob)

	_, err = DecodeVector(nil)
	assert.ErrorIs(t, err, ErrInvalidVectorBlob)
}

func TestEncodeVector_PreservesValues(t *testing.T) {
	v := []float32{0.25, -1.5, 3e-8}

	got, err := DecodeVector(EncodeVector(v))

	require.NoError(t, err)
	assert.Equal(t, v, got)
}
