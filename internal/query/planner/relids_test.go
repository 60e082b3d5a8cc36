package planner

import (
	"strings"
	"testing"

	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/pkg/types"
)

func bound(t *testing.T, where string, id types.RelationID) parser.Expression {
	t.Helper()
	expr, err := parser.ParseExpression(where)
	if err != nil {
		t.Fatalf("parse %q: %v", where, err)
	}
	out, err := BindColumns(expr, &parser.TableRef{Name: "events", Alias: "e"}, id)
	if err != nil {
		t.Fatalf("bind %q: %v", where, err)
	}
	return out
}

func relIDs(expr parser.Expression) []types.RelationID {
	var ids []types.RelationID
	for _, c := range parser.ColumnRefs(expr) {
		ids = append(ids, c.RelID)
	}
	return ids
}

func TestChangeRelIDCopies(t *testing.T) {
	orig := bound(t, "e.key = 1 AND (name LIKE 'a%' OR lower(tag) IN ('x', tag2)) AND ts BETWEEN lo AND 9 AND note IS NOT NULL", 10)
	before := orig.String()

	out := ChangeRelID(orig, 10, 12)

	for _, id := range relIDs(out) {
		if id != 12 {
			t.Fatalf("rewritten expression still references relation %d", id)
		}
	}
	for _, id := range relIDs(orig) {
		if id != 10 {
			t.Fatalf("original expression changed to relation %d", id)
		}
	}
	if orig.String() != before || out.String() != before {
		t.Errorf("rewrite changed the rendered expression: %s / %s", orig, out)
	}
	if len(relIDs(out)) != 7 {
		t.Errorf("expected 7 column references, got %d", len(relIDs(out)))
	}
}

func TestChangeRelIDLeavesOtherRelations(t *testing.T) {
	expr := &parser.BinaryExpr{
		Left:     &parser.ColumnRef{Column: "a", RelID: 10},
		Operator: "=",
		Right:    &parser.ColumnRef{Column: "b", RelID: 99},
	}
	out := ChangeRelID(expr, 10, 12).(*parser.BinaryExpr)
	if out.Left.(*parser.ColumnRef).RelID != 12 || out.Right.(*parser.ColumnRef).RelID != 99 {
		t.Errorf("unexpected rewrite: %+v %+v", out.Left, out.Right)
	}
	if ChangeRelID(nil, 1, 2) != nil {
		t.Error("nil expression should stay nil")
	}
}

func TestRestrictInfoChangeRelID(t *testing.T) {
	ri := NewRestrictInfo(bound(t, "key = 1 OR name = 'x'", 10))
	if ri.OrClause == nil {
		t.Fatal("OR clause should populate OrClause")
	}
	if !ri.ClauseRelids.Equal(NewRelIDSet(10)) {
		t.Fatalf("clause relids = %s", ri.ClauseRelids)
	}

	out := ri.ChangeRelID(10, 12)
	if !out.ClauseRelids.Equal(NewRelIDSet(12)) {
		t.Errorf("clause relids = %s, want (12)", out.ClauseRelids)
	}
	for _, id := range append(relIDs(out.Clause), relIDs(out.OrClause)...) {
		if id != 12 {
			t.Errorf("rewritten clause references relation %d", id)
		}
	}
	if !ri.ClauseRelids.Contains(10) || ri.ClauseRelids.Contains(12) {
		t.Errorf("original relids modified: %s", ri.ClauseRelids)
	}
	for _, id := range relIDs(ri.Clause) {
		if id != 10 {
			t.Errorf("original clause modified: %d", id)
		}
	}
}

func TestRestrictInfoSides(t *testing.T) {
	expr := &parser.BinaryExpr{
		Left:     &parser.ColumnRef{Column: "a", RelID: 10},
		Operator: "<",
		Right:    &parser.ColumnRef{Column: "b", RelID: 20},
	}
	ri := NewRestrictInfo(expr)
	if !ri.LeftRelids.Equal(NewRelIDSet(10)) || !ri.RightRelids.Equal(NewRelIDSet(20)) {
		t.Errorf("left %s right %s", ri.LeftRelids, ri.RightRelids)
	}
	if !ri.ClauseRelids.Equal(NewRelIDSet(10, 20)) {
		t.Errorf("clause relids %s", ri.ClauseRelids)
	}

	out := ri.ChangeRelID(10, 11)
	if !out.LeftRelids.Equal(NewRelIDSet(11)) || !out.RightRelids.Equal(NewRelIDSet(20)) {
		t.Errorf("left %s right %s", out.LeftRelids, out.RightRelids)
	}
	if out.ClauseRelids.String() != "(11 20)" {
		t.Errorf("clause relids %s", out.ClauseRelids)
	}
}

func TestBindColumnsRejectsUnknownQualifier(t *testing.T) {
	expr, err := parser.ParseExpression("x.key = 1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = BindColumns(expr, &parser.TableRef{Name: "events"}, 10)
	if err == nil || !strings.Contains(err.Error(), "x") {
		t.Errorf("expected unknown qualifier error, got %v", err)
	}

	ok, err := BindColumns(expr, &parser.TableRef{Name: "events", Alias: "X"}, 10)
	if err != nil {
		t.Fatalf("alias should match case-insensitively: %v", err)
	}
	if relIDs(ok)[0] != 10 {
		t.Errorf("expected bound column")
	}
}

func TestRelIDSetReplaceMissing(t *testing.T) {
	s := NewRelIDSet(1, 2)
	out := s.Replace(5, 6)
	if !out.Equal(s) || out.Len() != 2 {
		t.Errorf("replace of a missing id changed the set: %s", out)
	}
	var zero RelIDSet
	if zero.Len() != 0 || zero.Contains(1) || zero.Replace(1, 2).Len() != 0 {
		t.Error("zero set should be empty")
	}
}
