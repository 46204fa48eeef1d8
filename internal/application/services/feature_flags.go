package services

import (
	"github.com/zatekoja/eventscan/pkg/config"
)

// FeatureFlags gates optional search behaviour. A nil *FeatureFlags enables everything.
type FeatureFlags struct {
	semanticSearchEnabled bool
	resultCacheEnabled    bool
}

// NewFeatureFlags reads the flags from search config
func NewFeatureFlags(cfg config.SearchConfig) *FeatureFlags {
	return &FeatureFlags{
		semanticSearchEnabled: cfg.SemanticSearchEnabled,
		resultCacheEnabled:    cfg.ResultCacheEnabled,
	}
}

// SemanticSearchEnabled is false when searches should rank without calling the embedding provider
func (f *FeatureFlags) SemanticSearchEnabled() bool {
	return f == nil || f.semanticSearchEnabled
}

// ResultCacheEnabled is false when result pages should be neither read from nor written to the cache
func (f *FeatureFlags) ResultCacheEnabled() bool {
	return f == nil || f.resultCacheEnabled
}
