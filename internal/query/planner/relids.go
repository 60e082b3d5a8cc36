package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/pkg/types"
)

// RelIDSet is a set of relation ids.
type RelIDSet struct {
	bits *bitset.BitSet
}

// NewRelIDSet creates a set holding ids.
func NewRelIDSet(ids ...types.RelationID) RelIDSet {
	s := RelIDSet{bits: bitset.New(0)}
	for _, id := range ids {
		s.bits.Set(uint(id))
	}
	return s
}

// Contains reports whether id is in the set.
func (s RelIDSet) Contains(id types.RelationID) bool {
	return s.bits != nil && s.bits.Test(uint(id))
}

// Len returns the number of ids in the set.
func (s RelIDSet) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// Replace returns a copy of s with oldID swapped for newID. A set without
// oldID is returned as an unchanged copy.
func (s RelIDSet) Replace(oldID, newID types.RelationID) RelIDSet {
	out := RelIDSet{bits: bitset.New(0)}
	if s.bits != nil {
		out.bits = s.bits.Clone()
	}
	if out.bits.Test(uint(oldID)) {
		out.bits.Clear(uint(oldID))
		out.bits.Set(uint(newID))
	}
	return out
}

// IDs returns the members in ascending order.
func (s RelIDSet) IDs() []types.RelationID {
	if s.bits == nil {
		return nil
	}
	var ids []types.RelationID
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		ids = append(ids, types.RelationID(i))
	}
	return ids
}

// Equal reports whether both sets hold the same ids.
func (s RelIDSet) Equal(o RelIDSet) bool {
	a, b := s.IDs(), o.IDs()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s RelIDSet) String() string {
	ids := s.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// ExprRelIDs returns the relations referenced by bound columns of expr.
func ExprRelIDs(expr parser.Expression) RelIDSet {
	s := NewRelIDSet()
	for _, c := range parser.ColumnRefs(expr) {
		if c.RelID != types.InvalidRelation {
			s.bits.Set(uint(c.RelID))
		}
	}
	return s
}

// RestrictInfo is a qualifier attached to a scan, with the relations each
// side of it depends on.
type RestrictInfo struct {
	Clause       parser.Expression
	ClauseRelids RelIDSet
	LeftRelids   RelIDSet
	RightRelids  RelIDSet
	// OrClause holds the OR form of Clause, when Clause is an OR.
	OrClause parser.Expression
}

// NewRestrictInfo wraps clause and computes its relation sets.
func NewRestrictInfo(clause parser.Expression) *RestrictInfo {
	ri := &RestrictInfo{
		Clause:       clause,
		ClauseRelids: ExprRelIDs(clause),
		LeftRelids:   NewRelIDSet(),
		RightRelids:  NewRelIDSet(),
	}
	if b, ok := clause.(*parser.BinaryExpr); ok {
		ri.LeftRelids = ExprRelIDs(b.Left)
		ri.RightRelids = ExprRelIDs(b.Right)
	}
	if b, ok := clause.(*parser.BoolExpr); ok && b.Op == parser.BoolOr {
		ri.OrClause = clause
	}
	return ri
}

// ChangeRelID returns a copy of ri whose clauses and relation sets refer to
// newID wherever they referred to oldID. ri itself is not modified.
func (ri *RestrictInfo) ChangeRelID(oldID, newID types.RelationID) *RestrictInfo {
	out := &RestrictInfo{
		Clause:       ChangeRelID(ri.Clause, oldID, newID),
		ClauseRelids: ri.ClauseRelids.Replace(oldID, newID),
		LeftRelids:   ri.LeftRelids.Replace(oldID, newID),
		RightRelids:  ri.RightRelids.Replace(oldID, newID),
	}
	if ri.OrClause != nil {
		out.OrClause = ChangeRelID(ri.OrClause, oldID, newID)
	}
	return out
}

// ChangeRelID returns a deep copy of expr in which every column bound to
// oldID is bound to newID. expr is not modified.
func ChangeRelID(expr parser.Expression, oldID, newID types.RelationID) parser.Expression {
	out, _ := rewriteColumns(expr, func(c *parser.ColumnRef) (parser.Expression, error) {
		cp := *c
		if cp.RelID == oldID {
			cp.RelID = newID
		}
		return &cp, nil
	})
	return out
}

// BindColumns returns a copy of expr with every column of table bound to
// id. Unqualified columns belong to table; a qualifier naming anything
// else is an error.
func BindColumns(expr parser.Expression, table *parser.TableRef, id types.RelationID) (parser.Expression, error) {
	return rewriteColumns(expr, func(c *parser.ColumnRef) (parser.Expression, error) {
		if c.Table != "" && !strings.EqualFold(c.Table, table.RefName()) {
			return nil, fmt.Errorf("planner: unknown table qualifier %q in %s", c.Table, c)
		}
		cp := *c
		cp.RelID = id
		return &cp, nil
	})
}

// rewriteColumns copies expr, replacing each column reference with the
// result of fn.
func rewriteColumns(expr parser.Expression, fn func(*parser.ColumnRef) (parser.Expression, error)) (parser.Expression, error) {
	if expr == nil {
		return nil, nil
	}
	rewriteAll := func(in []parser.Expression) ([]parser.Expression, error) {
		out := make([]parser.Expression, len(in))
		for i, e := range in {
			r, err := rewriteColumns(e, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}

	switch e := expr.(type) {
	case *parser.ColumnRef:
		return fn(e)

	case *parser.BoolExpr:
		args, err := rewriteAll(e.Args)
		if err != nil {
			return nil, err
		}
		return &parser.BoolExpr{Op: e.Op, Args: args}, nil

	case *parser.BinaryExpr:
		sides, err := rewriteAll([]parser.Expression{e.Left, e.Right})
		if err != nil {
			return nil, err
		}
		return &parser.BinaryExpr{Left: sides[0], Operator: e.Operator, Right: sides[1]}, nil

	case *parser.UnaryExpr:
		operand, err := rewriteColumns(e.Operand, fn)
		if err != nil {
			return nil, err
		}
		return &parser.UnaryExpr{Operator: e.Operator, Operand: operand}, nil

	case *parser.FunctionCall:
		args, err := rewriteAll(e.Args)
		if err != nil {
			return nil, err
		}
		return &parser.FunctionCall{Name: e.Name, Args: args}, nil

	case *parser.InExpr:
		inner, err := rewriteColumns(e.Expr, fn)
		if err != nil {
			return nil, err
		}
		values, err := rewriteAll(e.Values)
		if err != nil {
			return nil, err
		}
		return &parser.InExpr{Expr: inner, Values: values, Not: e.Not}, nil

	case *parser.BetweenExpr:
		parts, err := rewriteAll([]parser.Expression{e.Expr, e.Low, e.High})
		if err != nil {
			return nil, err
		}
		return &parser.BetweenExpr{Expr: parts[0], Low: parts[1], High: parts[2], Not: e.Not}, nil

	case *parser.IsNullExpr:
		inner, err := rewriteColumns(e.Expr, fn)
		if err != nil {
			return nil, err
		}
		return &parser.IsNullExpr{Expr: inner, Not: e.Not}, nil

	case *parser.LikeExpr:
		parts, err := rewriteAll([]parser.Expression{e.Expr, e.Pattern})
		if err != nil {
			return nil, err
		}
		return &parser.LikeExpr{Expr: parts[0], Pattern: parts[1], Not: e.Not}, nil

	case *parser.Literal:
		return &parser.Literal{Value: e.Value}, nil

	case *parser.StarExpr:
		return &parser.StarExpr{Table: e.Table}, nil

	default:
		return e, nil
	}
}
