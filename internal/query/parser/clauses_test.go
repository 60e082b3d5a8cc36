package parser

import "testing"

func TestSplitConjuncts(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"a = 1", 1},
		{"a = 1 AND b = 2 AND c = 3", 3},
		{"a = 1 OR b = 2", 1},
		{"(a = 1 OR b = 2) AND c = 3", 2},
	}
	for _, tt := range tests {
		expr, err := ParseExpression(tt.input)
		if err != nil {
			t.Fatalf("input %q: %v", tt.input, err)
		}
		if got := len(SplitConjuncts(expr)); got != tt.want {
			t.Errorf("input %q: got %d conjuncts, want %d", tt.input, got, tt.want)
		}
	}
	if SplitConjuncts(nil) != nil {
		t.Error("nil expression should have no conjuncts")
	}
}

func TestCommuteOperator(t *testing.T) {
	pairs := map[string]string{
		OpLt: OpGt, OpGt: OpLt, OpLe: OpGe, OpGe: OpLe, OpEq: OpEq, OpNe: OpNe,
	}
	for in, want := range pairs {
		if got := CommuteOperator(in); got != want {
			t.Errorf("CommuteOperator(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestColumnRefs(t *testing.T) {
	expr, err := ParseExpression("a = 1 AND (lower(b) LIKE 'x%' OR c IN (d, 2)) AND e BETWEEN f AND 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	refs := ColumnRefs(expr)
	got := make([]string, len(refs))
	for i, r := range refs {
		got[i] = r.Column
	}
	want := []string{"a", "b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("ColumnRefs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ColumnRefs = %v, want %v", got, want)
		}
	}
}

func TestConstValue(t *testing.T) {
	if v, ok := ConstValue(&Literal{Value: int64(3)}); !ok || v != int64(3) {
		t.Errorf("ConstValue(3) = %v, %v", v, ok)
	}
	if _, ok := ConstValue(&Literal{Value: nil}); ok {
		t.Error("NULL should not be a usable constant")
	}
	if _, ok := ConstValue(&ColumnRef{Column: "x"}); ok {
		t.Error("column should not be a constant")
	}
}
