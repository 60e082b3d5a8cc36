package manifest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/arkilian/partprune/internal/router"
	"github.com/arkilian/partprune/pkg/types"
)

// CachedRepository fronts a SchemeRepository with TTL caches so planning
// does not hit the catalog database for every statement. Changes reach it
// through Watch or an explicit Invalidate.
type CachedRepository struct {
	inner   SchemeRepository
	names   *ttlcache.Cache[string, types.RelationID]
	schemes *ttlcache.Cache[types.RelationID, *types.PartitionScheme]

	// gen counts invalidations. A value read from inner is only stored if
	// no invalidation happened while it was being read.
	mu  sync.Mutex
	gen uint64
}

// NewCachedRepository wraps inner. Entries expire after ttl; at most
// capacity relations are kept.
func NewCachedRepository(inner SchemeRepository, ttl time.Duration, capacity uint64) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		names: ttlcache.New[string, types.RelationID](
			ttlcache.WithTTL[string, types.RelationID](ttl),
			ttlcache.WithCapacity[string, types.RelationID](capacity),
		),
		schemes: ttlcache.New[types.RelationID, *types.PartitionScheme](
			ttlcache.WithTTL[types.RelationID, *types.PartitionScheme](ttl),
			ttlcache.WithCapacity[types.RelationID, *types.PartitionScheme](capacity),
		),
	}
}

// Start runs the expiry loop until Stop is called.
func (r *CachedRepository) Start() {
	go r.names.Start()
	r.schemes.Start()
}

// Stop ends the expiry loop.
func (r *CachedRepository) Stop() {
	r.names.Stop()
	r.schemes.Stop()
}

// LookupRelation resolves a name, caching hits only.
func (r *CachedRepository) LookupRelation(ctx context.Context, name string) (types.RelationID, bool, error) {
	key := strings.ToLower(name)
	if item := r.names.Get(key); item != nil {
		return item.Value(), true, nil
	}
	gen := r.generation()
	id, ok, err := r.inner.LookupRelation(ctx, name)
	if err != nil || !ok {
		return id, ok, err
	}
	r.store(gen, func() { r.names.Set(key, id, ttlcache.DefaultTTL) })
	return id, true, nil
}

// LookupScheme returns a copy of the cached scheme. A relation that is not
// partitioned is cached as a nil scheme.
func (r *CachedRepository) LookupScheme(ctx context.Context, id types.RelationID) (*types.PartitionScheme, bool, error) {
	if item := r.schemes.Get(id); item != nil {
		s := item.Value()
		if s == nil {
			return nil, false, nil
		}
		return s.Clone(), true, nil
	}
	gen := r.generation()
	s, ok, err := Snapshot(ctx, r.inner, id)
	if err != nil {
		return nil, false, err
	}
	r.store(gen, func() { r.schemes.Set(id, s, ttlcache.DefaultTTL) })
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// LookupBounds returns the bounds of the cached scheme.
func (r *CachedRepository) LookupBounds(ctx context.Context, id types.RelationID) ([]types.RangeBound, bool, error) {
	s, ok, err := r.LookupScheme(ctx, id)
	if err != nil || !ok || s.Strategy != types.StrategyRange {
		return nil, false, err
	}
	return s.Bounds, true, nil
}

// Invalidate drops everything cached for a relation.
func (r *CachedRepository) Invalidate(id types.RelationID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.schemes.Delete(id)
	if name != "" {
		r.names.Delete(strings.ToLower(name))
	}
}

// Watch invalidates the relations named by catalog change notifications
// until ctx ends or ch is closed.
func (r *CachedRepository) Watch(ctx context.Context, ch <-chan router.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			r.Invalidate(n.Relation, n.Name)
		}
	}
}

// Purge empties both caches.
func (r *CachedRepository) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.names.DeleteAll()
	r.schemes.DeleteAll()
}

func (r *CachedRepository) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// store runs set unless the cache was invalidated since gen was read.
func (r *CachedRepository) store(gen uint64, set func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen {
		set()
	}
}

// Len returns the number of cached schemes.
func (r *CachedRepository) Len() int {
	return r.schemes.Len()
}
