package planner

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/partprune/internal/partition"
	"github.com/arkilian/partprune/internal/query/parser"
)

var propOps = []string{parser.OpLt, parser.OpLe, parser.OpEq, parser.OpGe, parser.OpGt}

func holds(v int64, op string, c int64) bool {
	switch op {
	case parser.OpLt:
		return v < c
	case parser.OpLe:
		return v <= c
	case parser.OpEq:
		return v == c
	case parser.OpGe:
		return v >= c
	case parser.OpGt:
		return v > c
	}
	return false
}

func keyClause(op string, c int64) parser.Expression {
	return &parser.BinaryExpr{
		Left:     &parser.ColumnRef{Column: "key"},
		Operator: op,
		Right:    &parser.Literal{Value: c},
	}
}

// TestProperty_PruningSoundness checks that a row satisfying the WHERE
// clause always lands in a selected partition, and that a partition marked
// exact only holds rows satisfying it.
func TestProperty_PruningSoundness(t *testing.T) {
	router, err := partition.NewRouter(eventsScheme())
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("single comparison is sound and exact ranges are exact", prop.ForAll(
		func(v, opIdx, c int) bool {
			op := propOps[opIdx]
			idx, ok, err := router.Route(int64(v))
			if err != nil || !ok {
				return true
			}
			w := NewEvaluator(eventsScheme(), 0).Walk(keyClause(op, int64(c)))
			found, lossy := w.Ranges.Find(idx)
			truth := holds(int64(v), op, int64(c))
			if truth && !found {
				return false
			}
			if found && !lossy && !truth {
				return false
			}
			return true
		},
		gen.IntRange(-5, 35), gen.IntRange(0, 4), gen.IntRange(-5, 35),
	))

	properties.Property("AND and OR of comparisons are sound", prop.ForAll(
		func(v, op1, c1, op2, c2 int, isAnd bool) bool {
			idx, ok, err := router.Route(int64(v))
			if err != nil || !ok {
				return true
			}
			a := keyClause(propOps[op1], int64(c1))
			b := keyClause(propOps[op2], int64(c2))
			ta := holds(int64(v), propOps[op1], int64(c1))
			tb := holds(int64(v), propOps[op2], int64(c2))

			var expr parser.Expression
			var truth bool
			if isAnd {
				expr, truth = parser.NewAnd(a, b), ta && tb
			} else {
				expr, truth = parser.NewOr(a, b), ta || tb
			}

			w := NewEvaluator(eventsScheme(), 0).Walk(expr)
			found, lossy := w.Ranges.Find(idx)
			if truth && !found {
				return false
			}
			if found && !lossy && !truth {
				return false
			}

			// The residual must agree with the predicate on the row's partition.
			r, err := (&ResidualBuilder{Strict: true}).Build(w, idx)
			if err != nil {
				return false
			}
			switch r.Kind {
			case AlwaysFalse:
				return !truth
			case AlwaysTrue:
				return truth
			}
			return true
		},
		gen.IntRange(-5, 35), gen.IntRange(0, 4), gen.IntRange(-5, 35),
		gen.IntRange(0, 4), gen.IntRange(-5, 35), gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_HashSoundness checks that equality and IN always select the
// bucket the value is routed to.
func TestProperty_HashSoundness(t *testing.T) {
	router, err := partition.NewRouter(usersScheme())
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("value routes into the selected bucket", prop.ForAll(
		func(v int64, others []int64) bool {
			idx, ok, err := router.Route(v)
			if err != nil || !ok {
				return false
			}
			values := []parser.Expression{&parser.Literal{Value: v}}
			for _, o := range others {
				values = append(values, &parser.Literal{Value: o})
			}
			in := &parser.InExpr{Expr: &parser.ColumnRef{Column: "id"}, Values: values}

			ev := NewEvaluator(usersScheme(), 0)
			foundEq, _ := ev.Walk(keyClauseOn("id", v)).Ranges.Find(idx)
			foundIn, lossy := ev.Walk(in).Ranges.Find(idx)
			return foundEq && foundIn && lossy
		},
		gen.Int64Range(-1000, 1000), gen.SliceOfN(3, gen.Int64Range(-1000, 1000)),
	))

	properties.TestingRun(t)
}

func keyClauseOn(column string, c int64) parser.Expression {
	return &parser.BinaryExpr{
		Left:     &parser.ColumnRef{Column: column},
		Operator: parser.OpEq,
		Right:    &parser.Literal{Value: c},
	}
}
