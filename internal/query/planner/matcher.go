package planner

import (
	"github.com/arkilian/partprune/internal/partition"
	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/internal/rangeset"
	"github.com/arkilian/partprune/pkg/types"
)

// CompareStrategy is the comparison a clause applies to the partition key.
type CompareStrategy int

const (
	StrategyLess CompareStrategy = iota + 1
	StrategyLessEqual
	StrategyEqual
	StrategyGreaterEqual
	StrategyGreater
)

func (s CompareStrategy) String() string {
	switch s {
	case StrategyLess:
		return parser.OpLt
	case StrategyLessEqual:
		return parser.OpLe
	case StrategyEqual:
		return parser.OpEq
	case StrategyGreaterEqual:
		return parser.OpGe
	case StrategyGreater:
		return parser.OpGt
	default:
		return "?"
	}
}

// StrategyForOperator maps a comparison operator to its strategy. <> has
// no strategy and cannot be pruned.
func StrategyForOperator(op string) (CompareStrategy, bool) {
	switch op {
	case parser.OpLt:
		return StrategyLess, true
	case parser.OpLe:
		return StrategyLessEqual, true
	case parser.OpEq:
		return StrategyEqual, true
	case parser.OpGe:
		return StrategyGreaterEqual, true
	case parser.OpGt:
		return StrategyGreater, true
	default:
		return 0, false
	}
}

// MatchConst returns the partitions that can hold rows where
// key <strategy> value. cmp compares value (left) against a bound datum
// (right). Whenever the answer is uncertain the result is every partition,
// lossy.
func MatchConst(scheme *types.PartitionScheme, strategy CompareStrategy, value types.Datum, cmp types.CompareFn) rangeset.RangeSet {
	n := scheme.ChildCount()
	switch scheme.Strategy {
	case types.StrategyHash:
		return matchHash(scheme, strategy, value)
	case types.StrategyRange:
		if cmp == nil {
			return rangeset.FullLossy(n)
		}
		return matchRange(scheme.Bounds, n, strategy, value, cmp)
	default:
		return rangeset.FullLossy(n)
	}
}

// matchHash prunes equality to the value's bucket. The bucket is lossy
// since other keys share it. Hash order says nothing about inequalities.
func matchHash(scheme *types.PartitionScheme, strategy CompareStrategy, value types.Datum) rangeset.RangeSet {
	n := scheme.ChildCount()
	if strategy != StrategyEqual {
		return rangeset.FullLossy(n)
	}
	b, err := partition.HashBucket(scheme.KeyType, value, n)
	if err != nil {
		return rangeset.FullLossy(n)
	}
	return rangeset.Single(b, true)
}

// searchResult is the outcome of a binary search over range bounds.
type searchResult struct {
	index int
	found bool
	// exact is set when value sits on the boundary that makes partition
	// index fully qualify (>= at its min, < at its max).
	exact bool
}

func matchRange(bounds []types.RangeBound, n int, strategy CompareStrategy, value types.Datum, cmp types.CompareFn) rangeset.RangeSet {
	if len(bounds) == 0 || len(bounds) != n {
		return rangeset.FullLossy(n)
	}

	cmpMin := cmp(value, bounds[0].Min)
	cmpMax := cmp(value, bounds[n-1].Max)

	// Value below every bound.
	if (cmpMin < 0 && (strategy == StrategyLessEqual || strategy == StrategyEqual)) ||
		(cmpMin <= 0 && strategy == StrategyLess) {
		return rangeset.Empty()
	}
	// Value at or above the last max.
	if cmpMax >= 0 && (strategy == StrategyGreaterEqual || strategy == StrategyGreater || strategy == StrategyEqual) {
		return rangeset.Empty()
	}
	if (cmpMin < 0 && strategy == StrategyGreater) ||
		(cmpMin <= 0 && strategy == StrategyGreaterEqual) {
		return rangeset.Full(n)
	}
	if cmpMax >= 0 && (strategy == StrategyLessEqual || strategy == StrategyLess) {
		return rangeset.Full(n)
	}

	res := searchBounds(bounds, strategy, value, cmp)
	if !res.found {
		return rangeset.FullLossy(n)
	}

	i := res.index
	switch strategy {
	case StrategyLess, StrategyLessEqual:
		if res.exact {
			return rangeset.Of(rangeset.IndexRange{Lower: 0, Upper: i})
		}
		return rangeset.Of(
			rangeset.IndexRange{Lower: 0, Upper: i - 1},
			rangeset.IndexRange{Lower: i, Upper: i, Lossy: true},
		)
	case StrategyEqual:
		return rangeset.Single(i, true)
	case StrategyGreaterEqual, StrategyGreater:
		if res.exact {
			return rangeset.Of(rangeset.IndexRange{Lower: i, Upper: n - 1})
		}
		return rangeset.Of(
			rangeset.IndexRange{Lower: i, Upper: i, Lossy: true},
			rangeset.IndexRange{Lower: i + 1, Upper: n - 1},
		)
	}
	return rangeset.FullLossy(n)
}

// searchBounds locates the boundary partition for value. For < the
// partition is the one whose (min, max] holds value; for every other
// strategy it is the one whose [min, max) holds it. The window
// [start, end] shrinks on every iteration, so the loop terminates.
func searchBounds(bounds []types.RangeBound, strategy CompareStrategy, value types.Datum, cmp types.CompareFn) searchResult {
	start, end := 0, len(bounds)-1
	for start <= end {
		i := start + (end-start)/2
		cmpMin := cmp(value, bounds[i].Min)
		cmpMax := cmp(value, bounds[i].Max)

		isLess := cmpMin < 0 || (cmpMin == 0 && strategy == StrategyLess)
		isGreater := cmpMax > 0 || (cmpMax >= 0 && strategy != StrategyLess)

		switch {
		case !isLess && !isGreater:
			exact := (strategy == StrategyGreaterEqual && cmpMin == 0) ||
				(strategy == StrategyLess && cmpMax == 0)
			return searchResult{index: i, found: true, exact: exact}
		case isLess:
			end = i - 1
		default:
			start = i + 1
		}
	}
	return searchResult{}
}
