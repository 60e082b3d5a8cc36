// Package rangeset implements sets of partition indexes as sorted lists of
// closed intervals, each tagged exact or lossy.
//
// An exact interval means every row of every partition in it satisfies the
// predicate the set was computed for. A lossy interval means the partitions
// may hold matching rows and a residual check is still required.
package rangeset

import (
	"sort"
	"strconv"
	"strings"
)

// IndexRange is the closed interval [Lower, Upper] of partition indexes.
type IndexRange struct {
	Lower int  `json:"lower"`
	Upper int  `json:"upper"`
	Lossy bool `json:"lossy"`
}

// Len returns the number of indexes in the interval.
func (r IndexRange) Len() int {
	return r.Upper - r.Lower + 1
}

func (r IndexRange) String() string {
	s := "[" + strconv.Itoa(r.Lower) + "," + strconv.Itoa(r.Upper) + "]"
	if r.Lossy {
		s += " lossy"
	}
	return s
}

// RangeSet is an immutable, sorted list of non-overlapping index ranges.
// Adjacent ranges with the same lossy flag are always coalesced, so equal
// sets have equal representations. The zero value is the empty set.
type RangeSet struct {
	ranges []IndexRange
}

// Empty returns the set matching no partition.
func Empty() RangeSet {
	return RangeSet{}
}

// Full returns the exact set [0, n-1]: every partition matches unconditionally.
func Full(n int) RangeSet {
	if n <= 0 {
		return RangeSet{}
	}
	return RangeSet{ranges: []IndexRange{{Lower: 0, Upper: n - 1}}}
}

// FullLossy returns the lossy set [0, n-1]: any partition may match.
func FullLossy(n int) RangeSet {
	if n <= 0 {
		return RangeSet{}
	}
	return RangeSet{ranges: []IndexRange{{Lower: 0, Upper: n - 1, Lossy: true}}}
}

// Single returns the set holding only partition i.
func Single(i int, lossy bool) RangeSet {
	if i < 0 {
		return RangeSet{}
	}
	return RangeSet{ranges: []IndexRange{{Lower: i, Upper: i, Lossy: lossy}}}
}

// Of builds a set from arbitrary ranges, merging them as Union does.
// Ranges with Lower > Upper or a negative bound are ignored.
func Of(ranges ...IndexRange) RangeSet {
	out := RangeSet{}
	for _, r := range ranges {
		if r.Lower < 0 || r.Lower > r.Upper {
			continue
		}
		out = Union(out, RangeSet{ranges: []IndexRange{r}})
	}
	return out
}

// Ranges returns a copy of the set's intervals in ascending order.
func (s RangeSet) Ranges() []IndexRange {
	return append([]IndexRange(nil), s.ranges...)
}

// IsEmpty reports whether no partition is covered.
func (s RangeSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Len returns the number of covered partition indexes.
func (s RangeSet) Len() int {
	n := 0
	for _, r := range s.ranges {
		n += r.Len()
	}
	return n
}

// Find reports whether partition i is covered and, if so, whether coverage
// there is lossy.
func (s RangeSet) Find(i int) (found, lossy bool) {
	k := sort.Search(len(s.ranges), func(k int) bool { return s.ranges[k].Upper >= i })
	if k < len(s.ranges) && s.ranges[k].Lower <= i {
		return true, s.ranges[k].Lossy
	}
	return false, false
}

// Indexes returns every covered partition index in ascending order.
func (s RangeSet) Indexes() []int {
	out := make([]int, 0, s.Len())
	for _, r := range s.ranges {
		for i := r.Lower; i <= r.Upper; i++ {
			out = append(out, i)
		}
	}
	return out
}

// Equal reports whether both sets cover the same indexes with the same flags.
func (s RangeSet) Equal(o RangeSet) bool {
	if len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

func (s RangeSet) String() string {
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Union models OR. An index covered by either input is covered by the
// result; it is exact if either input covers it exactly.
func Union(a, b RangeSet) RangeSet {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	return combine(a, b, func(inA, lossyA, inB, lossyB bool) (bool, bool) {
		switch {
		case inA && inB:
			return true, lossyA && lossyB
		case inA:
			return true, lossyA
		case inB:
			return true, lossyB
		}
		return false, false
	})
}

// Intersect models AND. Only indexes covered by both inputs survive; they
// are exact only if both inputs cover them exactly.
func Intersect(a, b RangeSet) RangeSet {
	if a.IsEmpty() || b.IsEmpty() {
		return RangeSet{}
	}
	return combine(a, b, func(inA, lossyA, inB, lossyB bool) (bool, bool) {
		if inA && inB {
			return true, lossyA || lossyB
		}
		return false, false
	})
}

type combineFn func(inA, lossyA, inB, lossyB bool) (covered, lossy bool)

// combine sweeps the elementary segments delimited by every range boundary
// of a and b, applying fn once per segment.
func combine(a, b RangeSet, fn combineFn) RangeSet {
	cuts := make([]int, 0, 2*(len(a.ranges)+len(b.ranges)))
	for _, r := range a.ranges {
		cuts = append(cuts, r.Lower, r.Upper+1)
	}
	for _, r := range b.ranges {
		cuts = append(cuts, r.Lower, r.Upper+1)
	}
	sort.Ints(cuts)

	var out []IndexRange
	ia, ib := 0, 0
	for k := 0; k+1 < len(cuts); k++ {
		lo, hi := cuts[k], cuts[k+1]-1
		if lo > hi {
			continue
		}
		for ia < len(a.ranges) && a.ranges[ia].Upper < lo {
			ia++
		}
		for ib < len(b.ranges) && b.ranges[ib].Upper < lo {
			ib++
		}
		inA := ia < len(a.ranges) && a.ranges[ia].Lower <= lo
		inB := ib < len(b.ranges) && b.ranges[ib].Lower <= lo
		var lossyA, lossyB bool
		if inA {
			lossyA = a.ranges[ia].Lossy
		}
		if inB {
			lossyB = b.ranges[ib].Lossy
		}
		covered, lossy := fn(inA, lossyA, inB, lossyB)
		if !covered {
			continue
		}
		out = appendRange(out, IndexRange{Lower: lo, Upper: hi, Lossy: lossy})
	}
	return RangeSet{ranges: out}
}

// appendRange appends r, coalescing it into the last range when they touch
// and share a flag.
func appendRange(out []IndexRange, r IndexRange) []IndexRange {
	if n := len(out); n > 0 {
		last := &out[n-1]
		if last.Upper+1 == r.Lower && last.Lossy == r.Lossy {
			last.Upper = r.Upper
			return out
		}
	}
	return append(out, r)
}
