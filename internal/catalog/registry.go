package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Fetcher is the discovery capability of the proxy adapter: list the
// models currently routable through it.
type Fetcher interface {
	FetchModels(ctx context.Context) ([]types.ModelInfo, error)
}

// Registry caches the model list with TTL-based invalidation. Reads never
// mutate state; only Refresh replaces the cached slice, as a single atomic
// swap under the write lock. A failed refresh keeps the previous list and
// leaves lastRefresh untouched so the next read retries immediately
// instead of waiting out a full TTL.
type Registry struct {
	mu          sync.RWMutex
	models      []types.ModelInfo
	lastRefresh time.Time

	ttl     time.Duration
	fetcher Fetcher // nil when the proxy is not configured
	group   singleflight.Group
	log     zerolog.Logger
}

// NewRegistry builds a registry seeded with defaults. lastRefresh starts
// at zero so the first read attempts a live fetch.
func NewRegistry(fetcher Fetcher, ttl time.Duration, defaults []types.ModelInfo, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		models:  append([]types.ModelInfo(nil), defaults...),
		ttl:     ttl,
		fetcher: fetcher,
		log:     log,
	}
}

// Models returns a copy of the cached model list.
func (r *Registry) Models() []types.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModelInfo, len(r.models))
	copy(out, r.models)
	return out
}

// Model looks up a cached model by id.
func (r *Registry) Model(id string) (types.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.ID == id {
			return m, true
		}
	}
	return types.ModelInfo{}, false
}

// CacheValid reports whether the cached list is within its TTL.
func (r *Registry) CacheValid() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cacheValidLocked()
}

func (r *Registry) cacheValidLocked() bool {
	if r.lastRefresh.IsZero() {
		return false
	}
	return time.Since(r.lastRefresh) < r.ttl
}

// CacheExpiresIn returns the time until the cache expires, clamped at zero.
func (r *Registry) CacheExpiresIn() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastRefresh.IsZero() {
		return 0
	}
	d := r.ttl - time.Since(r.lastRefresh)
	if d < 0 {
		return 0
	}
	return d
}

// LastRefresh returns the time of the last successful refresh.
func (r *Registry) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

// Refresh returns the model list, fetching from the proxy when the cache
// is expired or force is set. Concurrent expired callers share a single
// in-flight fetch; callers holding a valid cache return immediately
// without touching the fetcher.
func (r *Registry) Refresh(ctx context.Context, force bool) []types.ModelInfo {
	if !force && r.CacheValid() {
		return r.Models()
	}
	// Collapse concurrent refreshes into one live fetch.
	out, _, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx, force), nil
	})
	return out.([]types.ModelInfo)
}

func (r *Registry) refresh(ctx context.Context, force bool) []types.ModelInfo {
	// A racing caller may have refreshed while we waited on the group.
	if !force && r.CacheValid() {
		return r.Models()
	}

	if r.fetcher == nil {
		// No discovery source: the seeded defaults are authoritative.
		// Start the TTL window so reads stop landing here every time.
		r.mu.Lock()
		r.lastRefresh = time.Now()
		r.mu.Unlock()
		return r.Models()
	}

	models, err := r.fetcher.FetchModels(ctx)
	if err != nil || len(models) == 0 {
		// Stale-serve: keep the cached list, leave lastRefresh alone so
		// the next read retries instead of waiting a full TTL.
		r.log.Warn().Err(err).Msg("model discovery failed, serving cached list")
		return r.Models()
	}

	r.mu.Lock()
	r.models = models
	r.lastRefresh = time.Now()
	r.mu.Unlock()
	r.log.Info().Int("models", len(models)).Msg("model registry refreshed")
	return r.Models()
}

// DefaultModels is the hardcoded minimal list used when discovery is
// unavailable, filtered by which backends are configured.
func DefaultModels(openaiUsable, geminiUsable bool) []types.ModelInfo {
	var models []types.ModelInfo
	if openaiUsable {
		for _, id := range []string{"dall-e-3", "gpt-image-1", "dall-e-2"} {
			models = append(models, types.ModelInfo{
				ID:           id,
				Provider:     types.ProviderOpenAI,
				Capabilities: Lookup(id),
			})
		}
	}
	if geminiUsable {
		for _, id := range []string{"gemini-2.0-flash-preview-image-generation", "imagen-3.0-generate-002"} {
			models = append(models, types.ModelInfo{
				ID:           id,
				Provider:     types.ProviderGemini,
				Capabilities: Lookup(id),
			})
		}
	}
	return models
}
