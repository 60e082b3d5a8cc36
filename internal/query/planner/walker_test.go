package planner

import (
	"testing"

	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/internal/rangeset"
	"github.com/arkilian/partprune/pkg/types"
)

func walk(t *testing.T, scheme *types.PartitionScheme, where string) *WrapperNode {
	t.Helper()
	expr, err := parser.ParseExpression(where)
	if err != nil {
		t.Fatalf("parse %q: %v", where, err)
	}
	return NewEvaluator(scheme, 0).Walk(expr)
}

func TestEvaluatorRangeExamples(t *testing.T) {
	tests := []struct {
		where string
		want  rangeset.RangeSet
	}{
		{"key < 10", rangeset.Of(exact(0, 0))},
		{"key = 15", rangeset.Of(lossy(1, 1))},
		{"key >= 25", rangeset.Of(lossy(2, 2))},
		{"key = 5 OR key = 25", rangeset.Of(lossy(0, 0), lossy(2, 2))},
		{"key < 5 AND key > 25", rangeset.Empty()},
		{"key >= 10 AND key < 20", rangeset.Of(exact(1, 1))},
		{"10 <= key", rangeset.Of(exact(1, 2))},
		{"key BETWEEN 10 AND 15", rangeset.Of(lossy(1, 1))},
		{"key NOT BETWEEN 10 AND 15", rangeset.FullLossy(3)},
		{"key <> 15", rangeset.FullLossy(3)},
		{"NOT key = 15", rangeset.FullLossy(3)},
		{"name = 'x'", rangeset.FullLossy(3)},
		{"key = other", rangeset.FullLossy(3)},
		{"key = NULL", rangeset.FullLossy(3)},
		{"key IN (1, 15)", rangeset.FullLossy(3)},
		{"key < 9.5", rangeset.Of(lossy(0, 0))},
		{"key < 10.0", rangeset.Of(exact(0, 0))},
		{"key = 'abc'", rangeset.FullLossy(3)},
		{"FALSE", rangeset.Empty()},
		{"TRUE", rangeset.Full(3)},
		{"KEY = 15", rangeset.Of(lossy(1, 1))},
	}

	for _, tt := range tests {
		got := walk(t, eventsScheme(), tt.where).Ranges
		if !got.Equal(tt.want) {
			t.Errorf("%s: got %s, want %s", tt.where, got, tt.want)
		}
	}
}

func TestEvaluatorHashExamples(t *testing.T) {
	tests := []struct {
		where string
		want  rangeset.RangeSet
	}{
		{"id IN (1, 5, 9)", rangeset.Of(lossy(1, 1))},
		{"id IN (1, 2)", rangeset.Of(lossy(1, 2))},
		{"id IN (1, NULL)", rangeset.Of(lossy(1, 1))},
		{"id IN (1, other)", rangeset.FullLossy(4)},
		{"id NOT IN (1, 2)", rangeset.FullLossy(4)},
		{"id = 4", rangeset.Of(lossy(0, 0))},
		{"id = -1", rangeset.Of(lossy(3, 3))},
		{"id = 2.5", rangeset.FullLossy(4)},
		{"id > 3", rangeset.FullLossy(4)},
		{"id = 1 OR id = 3", rangeset.Of(lossy(1, 1), lossy(3, 3))},
	}

	for _, tt := range tests {
		got := walk(t, usersScheme(), tt.where).Ranges
		if !got.Equal(tt.want) {
			t.Errorf("%s: got %s, want %s", tt.where, got, tt.want)
		}
	}
}

func TestEvaluatorMaxInList(t *testing.T) {
	expr, err := parser.ParseExpression("id IN (1, 5, 9)")
	if err != nil {
		t.Fatal(err)
	}
	if got := NewEvaluator(usersScheme(), 2).Walk(expr).Ranges; !got.Equal(rangeset.FullLossy(4)) {
		t.Errorf("IN list above the limit should not prune, got %s", got)
	}
}

func TestEvaluatorBoundColumns(t *testing.T) {
	expr, err := parser.ParseExpression("key = 15")
	if err != nil {
		t.Fatal(err)
	}
	ev := NewEvaluator(eventsScheme(), 0)

	other := ChangeRelID(expr, types.InvalidRelation, 99)
	if got := ev.Walk(other).Ranges; !got.Equal(rangeset.FullLossy(3)) {
		t.Errorf("key of another relation should not prune, got %s", got)
	}
	own := ChangeRelID(expr, types.InvalidRelation, 10)
	if got := ev.Walk(own).Ranges; !got.Equal(rangeset.Of(lossy(1, 1))) {
		t.Errorf("key of the pruned relation should prune, got %s", got)
	}
}

func TestEvaluatorTreeShape(t *testing.T) {
	w := walk(t, eventsScheme(), "key >= 10 AND (name = 'a' OR key = 25)")
	if len(w.Args) != 2 {
		t.Fatalf("expected 2 AND operands, got %d", len(w.Args))
	}
	if len(w.Args[1].Args) != 2 {
		t.Fatalf("expected 2 OR operands, got %d", len(w.Args[1].Args))
	}
	if len(w.Args[0].Args) != 0 {
		t.Errorf("leaf should have no operands")
	}
	if w.Args[1].Orig.String() != "((name = 'a') OR (key = 25))" {
		t.Errorf("unexpected OR node %s", w.Args[1].Orig)
	}
	if !w.Ranges.Equal(rangeset.Of(lossy(1, 2))) {
		t.Errorf("got %s", w.Ranges)
	}
}

func TestEvaluatorTimestampKey(t *testing.T) {
	s := &types.PartitionScheme{
		Relation:  30,
		Name:      "logs",
		KeyColumn: "ts",
		KeyType:   types.KeyTimestamp,
		Strategy:  types.StrategyRange,
		Children:  []types.ChildRelation{{ID: 31, Name: "logs_jan"}, {ID: 32, Name: "logs_feb"}},
		Bounds: []types.RangeBound{
			{Min: "2024-01-01", Max: "2024-02-01", Index: 0},
			{Min: "2024-02-01", Max: "2024-03-01", Index: 1},
		},
	}
	if err := s.Normalize(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		where string
		want  rangeset.RangeSet
	}{
		{"ts >= '2024-02-01'", rangeset.Of(exact(1, 1))},
		{"ts < TIMESTAMP '2024-01-15'", rangeset.Of(lossy(0, 0))},
		{"ts = '2024-03-05'", rangeset.Empty()},
		{"ts = 'yesterday'", rangeset.FullLossy(2)},
	}
	for _, tt := range tests {
		got := walk(t, s, tt.where).Ranges
		if !got.Equal(tt.want) {
			t.Errorf("%s: got %s, want %s", tt.where, got, tt.want)
		}
	}
}
