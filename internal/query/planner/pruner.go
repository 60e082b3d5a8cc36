package planner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/internal/rangeset"
	"github.com/arkilian/partprune/pkg/types"
)

// Options control pruning.
type Options struct {
	// Enabled turns partition expansion on. A disabled planner scans the
	// parent relation as an ordinary table.
	Enabled bool

	// StrictInvariants fails planning on an inconsistent pruning result
	// instead of degrading to an unsimplified filter.
	StrictInvariants bool

	// MaxInList bounds the IN lists that are pruned element by element.
	MaxInList int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{Enabled: true, MaxInList: DefaultMaxInList}
}

// PruneResult contains the pruning outcome for one partitioned relation.
type PruneResult struct {
	// Scheme is the snapshot the result was computed against.
	Scheme *types.PartitionScheme

	// Wrappers holds the evaluated tree of each restriction clause, in
	// clause order.
	Wrappers []*WrapperNode

	// Ranges is the intersection of every clause's ranges.
	Ranges rangeset.RangeSet

	// Selected lists the partition indexes to scan, ascending.
	Selected []int

	// Total is the partition count of the relation.
	Total int

	// Pruned is the number of partitions removed.
	Pruned int
}

// ResidualsFor returns the residual of every clause for partition i, in
// clause order.
func (r *PruneResult) ResidualsFor(b *ResidualBuilder, i int) ([]Residual, error) {
	out := make([]Residual, len(r.Wrappers))
	for j, w := range r.Wrappers {
		res, err := b.Build(w, i)
		if err != nil {
			return nil, err
		}
		out[j] = res
	}
	return out, nil
}

// Pruner selects the child partitions a set of restriction clauses can
// match.
type Pruner struct {
	repo   manifest.SchemeRepository
	opts   Options
	logger zerolog.Logger
}

// NewPruner creates a pruner reading schemes from repo.
func NewPruner(repo manifest.SchemeRepository, opts Options, logger zerolog.Logger) *Pruner {
	return &Pruner{repo: repo, opts: opts, logger: logger}
}

// PruneRelation evaluates clauses, the conjuncts of a relation's WHERE
// clause, against the relation's partition scheme. The second result is
// false when the relation is not partitioned.
func (p *Pruner) PruneRelation(ctx context.Context, id types.RelationID, clauses []parser.Expression) (*PruneResult, bool, error) {
	scheme, ok, err := manifest.Snapshot(ctx, p.repo, id)
	if err != nil {
		return nil, false, fmt.Errorf("pruner: failed to load scheme of relation %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	result := Prune(scheme, clauses, p.opts.MaxInList)
	p.logger.Debug().
		Str("relation", scheme.Name).
		Int("total", result.Total).
		Int("selected", len(result.Selected)).
		Str("ranges", result.Ranges.String()).
		Msg("pruned relation")
	return result, true, nil
}

// Prune evaluates clauses against a scheme snapshot.
func Prune(scheme *types.PartitionScheme, clauses []parser.Expression, maxInList int) *PruneResult {
	ev := NewEvaluator(scheme, maxInList)
	n := scheme.ChildCount()

	result := &PruneResult{
		Scheme:   scheme,
		Wrappers: make([]*WrapperNode, 0, len(clauses)),
		Ranges:   rangeset.Full(n),
		Total:    n,
	}
	for _, c := range clauses {
		w := ev.Walk(c)
		result.Wrappers = append(result.Wrappers, w)
		result.Ranges = rangeset.Intersect(result.Ranges, w.Ranges)
	}
	result.Selected = result.Ranges.Indexes()
	result.Pruned = n - len(result.Selected)
	return result
}
