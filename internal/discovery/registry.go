package discovery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Registry holds the most recent scan result. It is populated at startup and
// refreshed after each successful generation or on demand.
type Registry struct {
	scanner *Scanner
	logger  *slog.Logger
	group   singleflight.Group
	// requests counts Refresh calls; a scan serves only callers counted
	// before it read the directory.
	requests atomic.Uint64

	mu          sync.RWMutex
	features    []Feature
	byID        map[string]Feature
	refreshedAt time.Time
}

func NewRegistry(scanner *Scanner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		scanner:  scanner,
		logger:   logger,
		features: []Feature{},
		byID:     map[string]Feature{},
	}
}

// Refresh rescans the components directory. Concurrent callers share a
// scan, but never one that started before they called.
func (r *Registry) Refresh(ctx context.Context) ([]Feature, error) {
	want := r.requests.Add(1)
	for {
		ch := r.group.DoChan("scan", r.scan)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			sr := res.Val.(scanResult)
			if sr.seq < want {
				continue
			}
			return clone(sr.features), nil
		}
	}
}

type scanResult struct {
	seq      uint64
	features []Feature
}

func (r *Registry) scan() (any, error) {
	seq := r.requests.Load()
	features, err := r.scanner.Scan()
	if err != nil {
		return nil, err
	}
	r.store(features)
	r.logger.Debug("component registry refreshed", "count", len(features))
	return scanResult{seq: seq, features: features}, nil
}

func (r *Registry) store(features []Feature) {
	byID := make(map[string]Feature, len(features))
	for _, f := range features {
		byID[f.ID] = f
	}
	r.mu.Lock()
	r.features = features
	r.byID = byID
	r.refreshedAt = time.Now()
	r.mu.Unlock()
}

// List returns the registered features, newest first.
func (r *Registry) List() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.features)
}

func (r *Registry) Get(id string) (Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	return f, ok
}

// RefreshedAt is the time of the last successful scan, zero before the first.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

func clone(features []Feature) []Feature {
	out := make([]Feature, len(features))
	copy(out, features)
	return out
}
