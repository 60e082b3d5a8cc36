package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arkilian/partprune/pkg/types"
)

// SchemeRepository is the read side of the partition catalog. Every scheme
// it returns is a snapshot owned by the caller; later catalog changes never
// modify a snapshot already handed out.
type SchemeRepository interface {
	// LookupRelation resolves a table name to its relation id. The second
	// result is false when no relation has that name.
	LookupRelation(ctx context.Context, name string) (types.RelationID, bool, error)

	// LookupScheme returns the partition scheme of a partitioned relation.
	// The second result is false when the relation is not partitioned.
	LookupScheme(ctx context.Context, id types.RelationID) (*types.PartitionScheme, bool, error)

	// LookupBounds returns the range bounds of a range-partitioned relation.
	LookupBounds(ctx context.Context, id types.RelationID) ([]types.RangeBound, bool, error)
}

// StaticRepository is an in-memory SchemeRepository. It backs tests and
// catalogs loaded from a catalog document.
type StaticRepository struct {
	mu     sync.RWMutex
	byID   map[types.RelationID]*types.PartitionScheme
	byName map[string]types.RelationID
}

// NewStaticRepository creates a repository holding the given schemes.
func NewStaticRepository(schemes ...*types.PartitionScheme) (*StaticRepository, error) {
	r := &StaticRepository{
		byID:   make(map[types.RelationID]*types.PartitionScheme),
		byName: make(map[string]types.RelationID),
	}
	for _, s := range schemes {
		if err := r.Put(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put validates and stores a copy of the scheme, replacing any scheme with
// the same relation id.
func (r *StaticRepository) Put(s *types.PartitionScheme) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	cp := s.Clone()
	if err := cp.Normalize(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[cp.Relation]; ok {
		delete(r.byName, strings.ToLower(old.Name))
	}
	r.byID[cp.Relation] = cp
	r.byName[strings.ToLower(cp.Name)] = cp.Relation
	return nil
}

// Delete removes a relation. It reports whether the relation existed.
func (r *StaticRepository) Delete(id types.RelationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byName, strings.ToLower(s.Name))
	delete(r.byID, id)
	return true
}

// LookupRelation resolves a table name case-insensitively.
func (r *StaticRepository) LookupRelation(_ context.Context, name string) (types.RelationID, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	return id, ok, nil
}

// LookupScheme returns a copy of the stored scheme.
func (r *StaticRepository) LookupScheme(_ context.Context, id types.RelationID) (*types.PartitionScheme, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// LookupBounds returns a copy of the stored range bounds.
func (r *StaticRepository) LookupBounds(_ context.Context, id types.RelationID) ([]types.RangeBound, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok || s.Strategy != types.StrategyRange {
		return nil, false, nil
	}
	return append([]types.RangeBound(nil), s.Bounds...), true, nil
}

// Schemes returns copies of all stored schemes ordered by relation id.
func (r *StaticRepository) Schemes() []*types.PartitionScheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.PartitionScheme, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relation < out[j].Relation })
	return out
}

// Snapshot loads the scheme of id together with its bounds. The returned
// scheme is a private copy the caller may hold for the duration of a
// planning call.
func Snapshot(ctx context.Context, repo SchemeRepository, id types.RelationID) (*types.PartitionScheme, bool, error) {
	s, ok, err := repo.LookupScheme(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	s = s.Clone()
	if s.Strategy == types.StrategyRange && len(s.Bounds) == 0 {
		bounds, ok, err := repo.LookupBounds(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if ok {
			s.Bounds = bounds
		}
	}
	return s, true, nil
}
