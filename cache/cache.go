// Package cache provides the content-addressed store for conversion results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"docbridge/models"
)

// ErrMiss indicates a cache miss.
var ErrMiss = errors.New("cache miss")

// Store is the get/set-with-TTL contract the strategy chain consults. A hit
// must be behaviorally indistinguishable from a fresh conversion; the store
// is an optimization, never a source of divergent results.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear removes every conversion entry and returns how many were dropped.
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) Stats
	Close() error
}

// Stats is the snapshot surfaced by the health report.
type Stats struct {
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// ContentHash derives the cache key for a conversion: a digest of the input
// bytes, the operation kind, and the options that change the produced bytes.
// Filename and TTL tier are deliberately excluded; they never alter output.
// Variable-length fields are length-prefixed, so an input whose tail spells
// out the option suffix cannot collide with a different (input, options) pair.
func ContentHash(input []byte, kind models.JobKind, opts models.ConversionOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|", len(input))
	h.Write(input)
	fmt.Fprintf(h, "|%s|template=%d:%s|preserveStyles=%t", kind, len(opts.Template), opts.Template, opts.PreserveStyles)
	return hex.EncodeToString(h.Sum(nil))
}
