package embeddings

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrInvalidVectorBlob is returned when a blob is not a whole number of float32 values
var ErrInvalidVectorBlob = errors.New("invalid vector blob")

// EncodeVector converts a float32 slice to a little-endian byte blob
func EncodeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DecodeVector converts a little-endian byte blob back to a float32 slice
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, ErrInvalidVectorBlob
	}

	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}
