// Package observability tracks pruning statistics and exports planner
// metrics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PruneStats tracks, per partitioned relation, how often it is planned and
// how much of it pruning removes.
type PruneStats struct {
	mu        sync.RWMutex
	relations map[string]*RelationStats
	window    time.Duration
}

// RelationStats holds pruning statistics for one relation.
type RelationStats struct {
	Relation           string         `json:"relation"`
	Plans              int64          `json:"plans"`
	PartitionsTotal    int64          `json:"partitions_total"`
	PartitionsSelected int64          `json:"partitions_selected"`
	LastSeen           time.Time      `json:"last_seen"`
	Operators          map[string]int `json:"operators"` // key operator → count (e.g., "=" → 5, "IN" → 2)
}

// PruneRatio is the fraction of partitions removed across all plans.
func (s RelationStats) PruneRatio() float64 {
	if s.PartitionsTotal == 0 {
		return 0
	}
	return float64(s.PartitionsTotal-s.PartitionsSelected) / float64(s.PartitionsTotal)
}

// NewPruneStats creates a tracker that forgets relations not planned
// within window.
func NewPruneStats(window time.Duration) *PruneStats {
	return &PruneStats{
		relations: make(map[string]*RelationStats),
		window:    window,
	}
}

func (p *PruneStats) entry(relation string) *RelationStats {
	stats, exists := p.relations[relation]
	if !exists {
		stats = &RelationStats{
			Relation:  relation,
			Operators: make(map[string]int),
		}
		p.relations[relation] = stats
	}
	stats.LastSeen = time.Now()
	return stats
}

// RecordPrune records one planning of relation that kept selected of total
// partitions.
func (p *PruneStats) RecordPrune(relation string, total, selected int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.entry(relation)
	stats.Plans++
	stats.PartitionsTotal += int64(total)
	stats.PartitionsSelected += int64(selected)
}

// RecordOperator records a clause on the partition key of relation.
func (p *PruneStats) RecordOperator(relation, operator string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entry(relation).Operators[operator]++
}

// Get returns a copy of the statistics of one relation.
func (p *PruneStats) Get(relation string) (RelationStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.relations[relation]
	if !ok {
		return RelationStats{}, false
	}
	return copyStats(s), true
}

// GetTopRelations returns the n most planned relations, most planned first.
func (p *PruneStats) GetTopRelations(n int) []RelationStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.relations) == 0 {
		return []RelationStats{}
	}

	stats := make([]RelationStats, 0, len(p.relations))
	for _, s := range p.relations {
		stats = append(stats, copyStats(s))
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Plans != stats[j].Plans {
			return stats[i].Plans > stats[j].Plans
		}
		return stats[i].Relation < stats[j].Relation
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes relations whose LastSeen is older than the window.
func (p *PruneStats) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := time.Now().Add(-p.window)
	for rel, stats := range p.relations {
		if stats.LastSeen.Before(threshold) {
			delete(p.relations, rel)
		}
	}
}

func copyStats(s *RelationStats) RelationStats {
	cp := *s
	cp.Operators = make(map[string]int, len(s.Operators))
	for op, count := range s.Operators {
		cp.Operators[op] = count
	}
	return cp
}
