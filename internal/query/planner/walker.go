package planner

import (
	"strings"

	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/internal/rangeset"
	"github.com/arkilian/partprune/pkg/types"
)

// DefaultMaxInList bounds how many IN elements are hashed before the list
// is treated as unprunable.
const DefaultMaxInList = 1024

// WrapperNode mirrors a predicate tree. Ranges is the set of partitions that
// can satisfy Orig; Args is only populated for AND and OR nodes and is
// parallel to the operands of Orig.
type WrapperNode struct {
	Orig   parser.Expression
	Args   []*WrapperNode
	Ranges rangeset.RangeSet
}

// Evaluator computes partition ranges for the predicates of one relation.
type Evaluator struct {
	scheme    *types.PartitionScheme
	n         int
	maxInList int
}

// NewEvaluator creates an evaluator over a scheme snapshot. A maxInList of
// zero or less selects DefaultMaxInList.
func NewEvaluator(scheme *types.PartitionScheme, maxInList int) *Evaluator {
	if maxInList <= 0 {
		maxInList = DefaultMaxInList
	}
	return &Evaluator{
		scheme:    scheme,
		n:         scheme.ChildCount(),
		maxInList: maxInList,
	}
}

// Walk evaluates expr. It never fails: anything it cannot reason about
// selects every partition, lossy.
func (e *Evaluator) Walk(expr parser.Expression) *WrapperNode {
	switch x := expr.(type) {
	case *parser.BoolExpr:
		return e.walkBool(x)
	case *parser.BinaryExpr:
		return e.leaf(x, e.binary(x))
	case *parser.InExpr:
		return e.leaf(x, e.in(x))
	case *parser.BetweenExpr:
		return e.leaf(x, e.between(x))
	case *parser.Literal:
		if b, ok := x.Value.(bool); ok {
			if b {
				return e.leaf(x, rangeset.Full(e.n))
			}
			return e.leaf(x, rangeset.Empty())
		}
	}
	return e.leaf(expr, rangeset.FullLossy(e.n))
}

func (e *Evaluator) leaf(expr parser.Expression, rs rangeset.RangeSet) *WrapperNode {
	return &WrapperNode{Orig: expr, Ranges: rs}
}

func (e *Evaluator) walkBool(b *parser.BoolExpr) *WrapperNode {
	w := &WrapperNode{Orig: b}
	switch b.Op {
	case parser.BoolAnd:
		w.Ranges = rangeset.Full(e.n)
		for _, arg := range b.Args {
			child := e.Walk(arg)
			w.Args = append(w.Args, child)
			w.Ranges = rangeset.Intersect(w.Ranges, child.Ranges)
		}
	case parser.BoolOr:
		w.Ranges = rangeset.Empty()
		for _, arg := range b.Args {
			child := e.Walk(arg)
			w.Args = append(w.Args, child)
			w.Ranges = rangeset.Union(w.Ranges, child.Ranges)
		}
	default:
		// The complement of a lossy set is not a sound answer, so NOT
		// prunes nothing.
		w.Ranges = rangeset.FullLossy(e.n)
	}
	return w
}

// isKey reports whether expr references the partition key of the relation
// being pruned. Unbound references (RelID 0) match by name alone.
func (e *Evaluator) isKey(expr parser.Expression) bool {
	col, ok := expr.(*parser.ColumnRef)
	if !ok {
		return false
	}
	if col.RelID != types.InvalidRelation && col.RelID != e.scheme.Relation {
		return false
	}
	return strings.EqualFold(col.Column, e.scheme.KeyColumn)
}

func (e *Evaluator) binary(b *parser.BinaryExpr) rangeset.RangeSet {
	op := b.Operator
	var value parser.Expression
	switch {
	case e.isKey(b.Left):
		value = b.Right
	case e.isKey(b.Right):
		value = b.Left
		op = parser.CommuteOperator(op)
	default:
		return rangeset.FullLossy(e.n)
	}
	strategy, ok := StrategyForOperator(op)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	v, ok := parser.ConstValue(value)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	return e.matchValue(strategy, v)
}

// matchValue resolves a comparator for v against the key type and runs the
// matcher. Values that coerce losslessly compare as the key type; others
// (such as 2.5 against an int key) use a cross-type comparator when one
// exists.
func (e *Evaluator) matchValue(strategy CompareStrategy, v types.Datum) rangeset.RangeSet {
	kt := e.scheme.KeyType
	if cv, err := types.Coerce(kt, v); err == nil {
		cmp, _ := types.Comparator(kt, kt)
		return MatchConst(e.scheme, strategy, cv, cmp)
	}
	if e.scheme.Strategy == types.StrategyHash {
		return rangeset.FullLossy(e.n)
	}
	vt, ok := types.TypeOf(v)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	cmp, ok := types.Comparator(vt, kt)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	return MatchConst(e.scheme, strategy, v, cmp)
}

// in prunes key IN (c1, c2, ...) on hash schemes to the union of the
// element buckets. NULL elements match nothing and are skipped.
func (e *Evaluator) in(x *parser.InExpr) rangeset.RangeSet {
	if x.Not || !e.isKey(x.Expr) || len(x.Values) > e.maxInList {
		return rangeset.FullLossy(e.n)
	}
	if e.scheme.Strategy != types.StrategyHash {
		return rangeset.FullLossy(e.n)
	}
	out := rangeset.Empty()
	for _, el := range x.Values {
		if lit, ok := el.(*parser.Literal); ok && lit.IsNull() {
			continue
		}
		v, ok := parser.ConstValue(el)
		if !ok {
			return rangeset.FullLossy(e.n)
		}
		out = rangeset.Union(out, e.matchValue(StrategyEqual, v))
	}
	return out
}

// between treats key BETWEEN lo AND hi as key >= lo AND key <= hi.
func (e *Evaluator) between(x *parser.BetweenExpr) rangeset.RangeSet {
	if x.Not || !e.isKey(x.Expr) {
		return rangeset.FullLossy(e.n)
	}
	lo, ok := parser.ConstValue(x.Low)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	hi, ok := parser.ConstValue(x.High)
	if !ok {
		return rangeset.FullLossy(e.n)
	}
	return rangeset.Intersect(
		e.matchValue(StrategyGreaterEqual, lo),
		e.matchValue(StrategyLessEqual, hi),
	)
}
