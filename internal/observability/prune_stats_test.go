package observability

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecordPruneConcurrent(t *testing.T) {
	ps := NewPruneStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				ps.RecordPrune("events", 10, 2)
				ps.RecordOperator("events", "=")
			}
		}()
	}
	wg.Wait()

	s, ok := ps.Get("events")
	if !ok {
		t.Fatal("expected stats for events")
	}
	want := int64(numGoroutines * recordsPerGoroutine)
	if s.Plans != want {
		t.Errorf("expected %d plans, got %d", want, s.Plans)
	}
	if s.PartitionsTotal != want*10 || s.PartitionsSelected != want*2 {
		t.Errorf("unexpected partition totals: %d/%d", s.PartitionsSelected, s.PartitionsTotal)
	}
	if s.Operators["="] != int(want) {
		t.Errorf("expected %d '=' operators, got %d", want, s.Operators["="])
	}
	if r := s.PruneRatio(); r < 0.79 || r > 0.81 {
		t.Errorf("expected prune ratio 0.8, got %f", r)
	}
}

func TestGetTopRelationsOrdering(t *testing.T) {
	ps := NewPruneStats(1 * time.Hour)
	for i := 0; i < 10; i++ {
		ps.RecordPrune("users", 4, 1)
	}
	for i := 0; i < 5; i++ {
		ps.RecordPrune("orders", 4, 4)
	}
	for i := 0; i < 20; i++ {
		ps.RecordPrune("events", 8, 1)
	}

	top := ps.GetTopRelations(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 relations, got %d", len(top))
	}
	order := []string{"events", "users", "orders"}
	for i, name := range order {
		if top[i].Relation != name {
			t.Errorf("position %d: expected %s, got %s", i, name, top[i].Relation)
		}
	}
	if got := ps.GetTopRelations(100); len(got) != 3 {
		t.Errorf("expected 3 relations when n exceeds data, got %d", len(got))
	}
	if got := NewPruneStats(time.Hour).GetTopRelations(10); len(got) != 0 {
		t.Errorf("expected no relations, got %d", len(got))
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ps := NewPruneStats(1 * time.Hour)
	ps.RecordOperator("events", "IN")

	s, _ := ps.Get("events")
	s.Operators["IN"] = 99

	again, _ := ps.Get("events")
	if again.Operators["IN"] != 1 {
		t.Errorf("stats were modified through a copy: %d", again.Operators["IN"])
	}
}

func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	ps := NewPruneStats(window)
	ps.RecordPrune("events", 4, 1)

	if len(ps.GetTopRelations(10)) != 1 {
		t.Fatal("expected 1 relation before prune")
	}

	time.Sleep(window + 50*time.Millisecond)
	ps.Prune()

	if n := len(ps.GetTopRelations(10)); n != 0 {
		t.Errorf("expected 0 relations after prune, got %d", n)
	}
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	ObservePrune("select", "range", 4, 1)
	IncInvariantViolations()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"partprune_relations_pruned_total",
		"partprune_partitions_selected",
		"partprune_invariant_violations_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
