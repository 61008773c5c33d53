// Package cache holds the small in-process caches used by the ledger adapters
// and a janitor that prunes them in the background.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the subset of LRUCache callers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Cleaner is anything holding entries that can expire.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically calls CleanExpired on every registered Cleaner.
type Janitor struct {
	mu       sync.Mutex
	cleaners []Cleaner
	logger   *slog.Logger
}

func NewJanitor(logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{logger: logger}
}

// Register adds c. Nil cleaners are ignored.
func (j *Janitor) Register(c Cleaner) {
	if c == nil {
		return
	}
	j.mu.Lock()
	j.cleaners = append(j.cleaners, c)
	j.mu.Unlock()
}

// Sweep runs one cleanup pass and returns the number of entries removed.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	cleaners := append([]Cleaner(nil), j.cleaners...)
	j.mu.Unlock()

	total := 0
	for _, c := range cleaners {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(ctx, "Expired cache entries removed", "count", n)
			}
		}
	}
}
