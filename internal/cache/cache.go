// Package cache is the content-hash result cache: processing the same bytes
// under the same pipeline version is free after the first run.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

// Key identifies one cached result.
type Key struct {
	ContentHash     string
	PipelineVersion string
}

func (k Key) String() string {
	return k.ContentHash + ":" + k.PipelineVersion
}

// KeyFor hashes document bytes into a cache key.
func KeyFor(data []byte, pipelineVersion string) Key {
	sum := sha256.Sum256(data)
	return Key{
		ContentHash:     hex.EncodeToString(sum[:]),
		PipelineVersion: pipelineVersion,
	}
}

// ResultCache is a pure KV abstraction. The at-most-one-concurrent-
// computation guarantee lives in the orchestrator's singleflight group, not
// in implementations.
type ResultCache interface {
	Get(ctx context.Context, key Key) (*domain.ProcessingResult, bool, error)
	Put(ctx context.Context, key Key, result *domain.ProcessingResult) error
}
