package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/partprune/pkg/types"
)

// Statement represents a parsed SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// Expression represents an expression in the AST.
type Expression interface {
	expressionNode()
	String() string
}

// SelectStatement represents a SELECT query.
type SelectStatement struct {
	Distinct bool
	Columns  []SelectColumn
	From     *TableRef
	Where    Expression
	OrderBy  []OrderByClause
	Limit    *int64
}

func (s *SelectStatement) statementNode() {}

// String returns the SQL representation of the SELECT statement.
func (s *SelectStatement) String() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}

	cols := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		cols[i] = col.String()
	}
	sb.WriteString(strings.Join(cols, ", "))

	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(s.From.String())
	}
	writeWhere(&sb, s.Where)

	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			orders[i] = o.String()
		}
		sb.WriteString(strings.Join(orders, ", "))
	}

	if s.Limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}

	return sb.String()
}

// UpdateStatement represents an UPDATE ... SET ... WHERE statement.
type UpdateStatement struct {
	Table *TableRef
	Set   []Assignment
	Where Expression
}

func (u *UpdateStatement) statementNode() {}

func (u *UpdateStatement) String() string {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(u.Table.String())
	sb.WriteString(" SET ")
	sets := make([]string, len(u.Set))
	for i, a := range u.Set {
		sets[i] = a.String()
	}
	sb.WriteString(strings.Join(sets, ", "))
	writeWhere(&sb, u.Where)
	return sb.String()
}

// DeleteStatement represents a DELETE FROM ... WHERE statement.
type DeleteStatement struct {
	Table *TableRef
	Where Expression
}

func (d *DeleteStatement) statementNode() {}

func (d *DeleteStatement) String() string {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(d.Table.String())
	writeWhere(&sb, d.Where)
	return sb.String()
}

func writeWhere(sb *strings.Builder, where Expression) {
	if where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(where.String())
	}
}

// Assignment is one column = value pair of an UPDATE.
type Assignment struct {
	Column string
	Value  Expression
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Column, a.Value.String())
}

// SelectColumn represents a column in the SELECT clause.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

// String returns the SQL representation of the select column.
func (c SelectColumn) String() string {
	if c.Alias != "" {
		return fmt.Sprintf("%s AS %s", c.Expr.String(), c.Alias)
	}
	return c.Expr.String()
}

// TableRef represents a table reference in the FROM clause.
type TableRef struct {
	Name  string
	Alias string
}

// String returns the SQL representation of the table reference.
func (t *TableRef) String() string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	return t.Name
}

// RefName returns the name columns use to qualify this table.
func (t *TableRef) RefName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// OrderByClause represents an ORDER BY clause item.
type OrderByClause struct {
	Expr Expression
	Desc bool
}

// String returns the SQL representation of the ORDER BY clause.
func (o OrderByClause) String() string {
	if o.Desc {
		return fmt.Sprintf("%s DESC", o.Expr.String())
	}
	return fmt.Sprintf("%s ASC", o.Expr.String())
}

// BoolOp is the operator of a BoolExpr.
type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
	BoolNot
)

func (op BoolOp) String() string {
	switch op {
	case BoolAnd:
		return "AND"
	case BoolOr:
		return "OR"
	case BoolNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// BoolExpr is an n-ary AND/OR or a unary NOT. Nested operands with the
// same AND/OR operator are flattened by the parser.
type BoolExpr struct {
	Op   BoolOp
	Args []Expression
}

func (b *BoolExpr) expressionNode() {}

// String returns the SQL representation of the boolean expression.
func (b *BoolExpr) String() string {
	if b.Op == BoolNot {
		if len(b.Args) == 0 {
			return "NOT"
		}
		return fmt.Sprintf("NOT %s", b.Args[0].String())
	}
	args := make([]string, len(b.Args))
	for i, a := range b.Args {
		args[i] = a.String()
	}
	return "(" + strings.Join(args, " "+b.Op.String()+" ") + ")"
}

// NewAnd builds a flattened AND over args. A single argument is returned as is.
func NewAnd(args ...Expression) Expression {
	return newBool(BoolAnd, args)
}

// NewOr builds a flattened OR over args. A single argument is returned as is.
func NewOr(args ...Expression) Expression {
	return newBool(BoolOr, args)
}

// NewNot wraps arg in NOT.
func NewNot(arg Expression) Expression {
	return &BoolExpr{Op: BoolNot, Args: []Expression{arg}}
}

func newBool(op BoolOp, args []Expression) Expression {
	flat := make([]Expression, 0, len(args))
	for _, a := range args {
		if b, ok := a.(*BoolExpr); ok && b.Op == op {
			flat = append(flat, b.Args...)
			continue
		}
		flat = append(flat, a)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &BoolExpr{Op: op, Args: flat}
}

// BinaryExpr represents a binary operation (e.g., a = b, a + b).
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

// String returns the SQL representation of the binary expression.
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator, b.Right.String())
}

// UnaryExpr represents a unary arithmetic operation (e.g., -x).
type UnaryExpr struct {
	Operator string
	Operand  Expression
}

func (u *UnaryExpr) expressionNode() {}

// String returns the SQL representation of the unary expression.
func (u *UnaryExpr) String() string {
	return fmt.Sprintf("%s%s", u.Operator, u.Operand.String())
}

// ColumnRef represents a column reference. RelID is zero until the planner
// binds the reference to a relation.
type ColumnRef struct {
	Table  string
	Column string
	RelID  types.RelationID
}

func (c *ColumnRef) expressionNode() {}

// String returns the SQL representation of the column reference.
func (c *ColumnRef) String() string {
	if c.Table != "" {
		return fmt.Sprintf("%s.%s", c.Table, c.Column)
	}
	return c.Column
}

// Literal represents a literal value: int64, float64, string, bool,
// time.Time or nil.
type Literal struct {
	Value interface{}
}

func (l *Literal) expressionNode() {}

// String returns the SQL representation of the literal.
func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return fmt.Sprintf("TIMESTAMP '%s'", v.Format(time.RFC3339Nano))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsNull reports whether the literal is SQL NULL.
func (l *Literal) IsNull() bool {
	return l.Value == nil
}

// StarExpr represents the * wildcard in SELECT *.
type StarExpr struct {
	Table string // Optional table qualifier (e.g., t.*)
}

func (s *StarExpr) expressionNode() {}

// String returns the SQL representation of the star expression.
func (s *StarExpr) String() string {
	if s.Table != "" {
		return fmt.Sprintf("%s.*", s.Table)
	}
	return "*"
}

// FunctionCall represents a function call expression.
type FunctionCall struct {
	Name string
	Args []Expression
}

func (f *FunctionCall) expressionNode() {}

// String returns the SQL representation of the function call.
func (f *FunctionCall) String() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(args, ", "))
}

// InExpr represents an IN expression (e.g., x IN (1, 2, 3)).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}

// String returns the SQL representation of the IN expression.
func (i *InExpr) String() string {
	values := make([]string, len(i.Values))
	for j, v := range i.Values {
		values[j] = v.String()
	}
	if i.Not {
		return fmt.Sprintf("%s NOT IN (%s)", i.Expr.String(), strings.Join(values, ", "))
	}
	return fmt.Sprintf("%s IN (%s)", i.Expr.String(), strings.Join(values, ", "))
}

// BetweenExpr represents a BETWEEN expression (e.g., x BETWEEN 1 AND 10).
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

func (b *BetweenExpr) expressionNode() {}

// String returns the SQL representation of the BETWEEN expression.
func (b *BetweenExpr) String() string {
	if b.Not {
		return fmt.Sprintf("%s NOT BETWEEN %s AND %s", b.Expr.String(), b.Low.String(), b.High.String())
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", b.Expr.String(), b.Low.String(), b.High.String())
}

// IsNullExpr represents an IS NULL or IS NOT NULL expression.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}

// String returns the SQL representation of the IS NULL expression.
func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("%s IS NOT NULL", i.Expr.String())
	}
	return fmt.Sprintf("%s IS NULL", i.Expr.String())
}

// LikeExpr represents a LIKE expression.
type LikeExpr struct {
	Expr    Expression
	Pattern Expression
	Not     bool
}

func (l *LikeExpr) expressionNode() {}

// String returns the SQL representation of the LIKE expression.
func (l *LikeExpr) String() string {
	if l.Not {
		return fmt.Sprintf("%s NOT LIKE %s", l.Expr.String(), l.Pattern.String())
	}
	return fmt.Sprintf("%s LIKE %s", l.Expr.String(), l.Pattern.String())
}
