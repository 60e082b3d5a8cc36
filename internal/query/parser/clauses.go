package parser

// Comparison operators recognized by the planner.
const (
	OpEq = "="
	OpNe = "<>"
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
)

// IsComparison reports whether op is one of the six comparison operators.
func IsComparison(op string) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// CommuteOperator returns the operator that keeps a comparison equivalent
// when its operands are swapped (5 < x becomes x > 5).
func CommuteOperator(op string) string {
	switch op {
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpLe:
		return OpGe
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// SplitConjuncts returns the top-level AND operands of expr. A nil
// expression yields no conjuncts.
func SplitConjuncts(expr Expression) []Expression {
	if expr == nil {
		return nil
	}
	if b, ok := expr.(*BoolExpr); ok && b.Op == BoolAnd {
		return append([]Expression(nil), b.Args...)
	}
	return []Expression{expr}
}

// ConstValue returns the value of a non-NULL literal.
func ConstValue(expr Expression) (interface{}, bool) {
	lit, ok := expr.(*Literal)
	if !ok || lit.IsNull() {
		return nil, false
	}
	return lit.Value, true
}

// Walk calls fn for expr and each of its sub-expressions in depth-first
// order. Returning false from fn skips the node's children.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *BoolExpr:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *BinaryExpr:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *UnaryExpr:
		Walk(e.Operand, fn)
	case *FunctionCall:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *InExpr:
		Walk(e.Expr, fn)
		for _, v := range e.Values {
			Walk(v, fn)
		}
	case *BetweenExpr:
		Walk(e.Expr, fn)
		Walk(e.Low, fn)
		Walk(e.High, fn)
	case *IsNullExpr:
		Walk(e.Expr, fn)
	case *LikeExpr:
		Walk(e.Expr, fn)
		Walk(e.Pattern, fn)
	}
}

// ColumnRefs returns every column reference in expr.
func ColumnRefs(expr Expression) []*ColumnRef {
	var refs []*ColumnRef
	Walk(expr, func(e Expression) bool {
		if c, ok := e.(*ColumnRef); ok {
			refs = append(refs, c)
		}
		return true
	})
	return refs
}
