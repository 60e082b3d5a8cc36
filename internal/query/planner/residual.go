package planner

import (
	"fmt"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/query/parser"
)

// ResidualKind classifies what a predicate still has to do for one child.
type ResidualKind int

const (
	// AlwaysFalse means no row of the child can satisfy the predicate.
	AlwaysFalse ResidualKind = iota
	// AlwaysTrue means every row of the child satisfies the predicate.
	AlwaysTrue
	// Filter means the child must still evaluate Expr.
	Filter
)

func (k ResidualKind) String() string {
	switch k {
	case AlwaysFalse:
		return "always_false"
	case AlwaysTrue:
		return "always_true"
	case Filter:
		return "filter"
	default:
		return "unknown"
	}
}

// Residual is the simplified form of a predicate for one child partition.
type Residual struct {
	Kind ResidualKind
	Expr parser.Expression
}

// ResidualBuilder derives per-child residual predicates from evaluated
// wrapper trees.
type ResidualBuilder struct {
	// Strict makes an inconsistent wrapper tree fail the build. Otherwise
	// the offending subtree is kept unsimplified and OnViolation is called.
	Strict bool

	// OnViolation, when set, receives every invariant violation.
	OnViolation func(error)
}

// Build returns the residual of w for the partition at index i.
//
// Children whose range is exact for i drop out of a lossy AND; children
// that exclude i drop out of a lossy OR. The surviving operands are
// rebuilt into a new node and a single survivor replaces its parent. The
// original expression tree is never modified.
func (b *ResidualBuilder) Build(w *WrapperNode, i int) (Residual, error) {
	found, lossy := w.Ranges.Find(i)
	if !found {
		return Residual{Kind: AlwaysFalse}, nil
	}
	if !lossy {
		return Residual{Kind: AlwaysTrue}, nil
	}

	be, ok := w.Orig.(*parser.BoolExpr)
	if !ok || be.Op == parser.BoolNot || len(w.Args) == 0 {
		return Residual{Kind: Filter, Expr: w.Orig}, nil
	}

	kept := make([]parser.Expression, 0, len(w.Args))
	for _, arg := range w.Args {
		r, err := b.Build(arg, i)
		if err != nil {
			return Residual{}, err
		}
		switch {
		case be.Op == parser.BoolOr && r.Kind == AlwaysTrue:
			return b.violation(w, i, "OR operand is exact for a lossy partition")
		case be.Op == parser.BoolAnd && r.Kind == AlwaysFalse:
			return b.violation(w, i, "AND operand excludes a partition its parent selected")
		case r.Kind == Filter:
			kept = append(kept, r.Expr)
		}
	}

	switch len(kept) {
	case 0:
		return b.violation(w, i, "lossy node has no remaining operands")
	case 1:
		return Residual{Kind: Filter, Expr: kept[0]}, nil
	}
	if be.Op == parser.BoolAnd {
		return Residual{Kind: Filter, Expr: parser.NewAnd(kept...)}, nil
	}
	return Residual{Kind: Filter, Expr: parser.NewOr(kept...)}, nil
}

func (b *ResidualBuilder) violation(w *WrapperNode, i int, msg string) (Residual, error) {
	err := apperrors.NewInvariantError(fmt.Sprintf("%s (partition %d)", msg, i)).
		WithDetails(map[string]interface{}{"expr": w.Orig.String(), "ranges": w.Ranges.String()})
	if b.OnViolation != nil {
		b.OnViolation(err)
	}
	if b.Strict {
		return Residual{}, err
	}
	return Residual{Kind: Filter, Expr: w.Orig}, nil
}
