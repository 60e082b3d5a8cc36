package planner

import (
	"testing"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/internal/rangeset"
)

func TestResidualBuild(t *testing.T) {
	tests := []struct {
		where     string
		partition int
		kind      ResidualKind
		expr      string
	}{
		{"key >= 10 AND name = 'x'", 0, AlwaysFalse, ""},
		{"key >= 10 AND name = 'x'", 1, Filter, "(name = 'x')"},
		{"key >= 10 AND key < 20", 1, AlwaysTrue, ""},
		{"key = 5 OR key = 25", 1, AlwaysFalse, ""},
		{"key = 5 OR key = 25", 2, Filter, "(key = 25)"},
		{"key = 5 OR key = 25 OR key = 26", 2, Filter, "((key = 25) OR (key = 26))"},
		{"key >= 10 AND name = 'x' AND age > 3", 2, Filter, "((name = 'x') AND (age > 3))"},
		{"key < 15 AND (key = 3 OR name = 'y')", 0, Filter, "((key = 3) OR (name = 'y'))"},
		{"key < 15 AND (key = 3 OR name = 'y')", 1, Filter, "((key < 15) AND (name = 'y'))"},
		{"NOT key = 3", 0, Filter, "NOT (key = 3)"},
		{"key = 15", 1, Filter, "(key = 15)"},
	}

	b := &ResidualBuilder{Strict: true}
	for _, tt := range tests {
		w := walk(t, eventsScheme(), tt.where)
		before := w.Orig.String()

		r, err := b.Build(w, tt.partition)
		if err != nil {
			t.Errorf("%s @%d: unexpected error: %v", tt.where, tt.partition, err)
			continue
		}
		if r.Kind != tt.kind {
			t.Errorf("%s @%d: got %s, want %s", tt.where, tt.partition, r.Kind, tt.kind)
			continue
		}
		if tt.kind == Filter && r.Expr.String() != tt.expr {
			t.Errorf("%s @%d: got %s, want %s", tt.where, tt.partition, r.Expr, tt.expr)
		}
		if w.Orig.String() != before {
			t.Errorf("%s: original expression modified to %s", tt.where, w.Orig)
		}
	}
}

// inconsistentAnd is a lossy AND whose operand excludes the partition the
// AND selected.
func inconsistentAnd(t *testing.T) *WrapperNode {
	t.Helper()
	expr, err := parser.ParseExpression("a = 1 AND b = 2")
	if err != nil {
		t.Fatal(err)
	}
	and := expr.(*parser.BoolExpr)
	return &WrapperNode{
		Orig:   and,
		Ranges: rangeset.Single(0, true),
		Args: []*WrapperNode{
			{Orig: and.Args[0], Ranges: rangeset.Empty()},
			{Orig: and.Args[1], Ranges: rangeset.Single(0, true)},
		},
	}
}

func TestResidualViolationStrict(t *testing.T) {
	var seen []error
	b := &ResidualBuilder{Strict: true, OnViolation: func(err error) { seen = append(seen, err) }}

	_, err := b.Build(inconsistentAnd(t), 0)
	if err == nil {
		t.Fatal("expected an invariant violation")
	}
	if apperrors.GetCode(err) != apperrors.CodeInvariantViolation {
		t.Errorf("expected INVARIANT_VIOLATION, got %s", apperrors.GetCode(err))
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 reported violation, got %d", len(seen))
	}
}

func TestResidualViolationDegrades(t *testing.T) {
	var seen int
	b := &ResidualBuilder{OnViolation: func(error) { seen++ }}

	w := inconsistentAnd(t)
	r, err := b.Build(w, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != Filter || r.Expr != w.Orig {
		t.Errorf("expected the unsimplified node, got %s %v", r.Kind, r.Expr)
	}
	if seen != 1 {
		t.Errorf("expected 1 reported violation, got %d", seen)
	}
}

func TestResidualOrViolation(t *testing.T) {
	expr, err := parser.ParseExpression("a = 1 OR b = 2")
	if err != nil {
		t.Fatal(err)
	}
	or := expr.(*parser.BoolExpr)
	w := &WrapperNode{
		Orig:   or,
		Ranges: rangeset.Single(0, true),
		Args: []*WrapperNode{
			{Orig: or.Args[0], Ranges: rangeset.Full(1)},
			{Orig: or.Args[1], Ranges: rangeset.Single(0, true)},
		},
	}
	if _, err := (&ResidualBuilder{Strict: true}).Build(w, 0); err == nil {
		t.Error("expected an invariant violation for an exact OR operand")
	}
}
