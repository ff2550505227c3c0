// Package capability resolves and caches user capabilities from static
// authorization policies.
package capability

import (
	"sync"
	"time"

	"github.com/skyhangar/flightline/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// CacheMetrics receives cache hit and miss notifications.
type CacheMetrics interface {
	RecordCapabilityCacheHit()
	RecordCapabilityCacheMiss()
}

// Resolver implements model.CapabilityResolver with an in-memory cache.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	metrics   CacheMetrics
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// SetMetrics attaches a cache metrics sink. Must be called before the
// resolver starts serving requests.
func (r *Resolver) SetMetrics(m CacheMetrics) {
	r.metrics = m
}

// Resolve returns the full capability set for the given context. Results are
// cached per subject for the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := rctx.SubjectID

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		if r.metrics != nil {
			r.metrics.RecordCapabilityCacheHit()
		}
		return entry.caps, nil
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordCapabilityCacheMiss()
	}
	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given subject.
func (r *Resolver) Invalidate(subjectID string) {
	r.mu.Lock()
	delete(r.cache, subjectID)
	r.mu.Unlock()
}
