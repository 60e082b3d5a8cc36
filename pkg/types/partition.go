package types

import "fmt"

// RelationID identifies a relation (a partitioned parent or one of its children).
type RelationID uint32

// InvalidRelation is the zero relation id; no catalog relation uses it.
const InvalidRelation RelationID = 0

// Strategy defines how rows are distributed across partitions.
type Strategy string

const (
	// StrategyHash routes rows by hash(key) mod childCount
	StrategyHash Strategy = "hash"

	// StrategyRange routes rows by locating the [min, max) bound containing the key
	StrategyRange Strategy = "range"
)

// ParseStrategy converts a textual strategy name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyHash, StrategyRange:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// ChildRelation is one physical partition of a partitioned relation.
type ChildRelation struct {
	// ID is the child's relation id
	ID RelationID `json:"id"`

	// Name is the child's table name
	Name string `json:"name"`
}

// RangeBound is one range partition's [Min, Max) boundary.
type RangeBound struct {
	// Min is the inclusive lower boundary
	Min Datum `json:"min"`

	// Max is the exclusive upper boundary
	Max Datum `json:"max"`

	// Index is the partition index this bound belongs to
	Index int `json:"index"`
}

// PartitionScheme describes one partitioned relation. A scheme handed to the
// planner is a snapshot and must not be modified while it is in use.
type PartitionScheme struct {
	// Relation is the parent relation id
	Relation RelationID `json:"relation"`

	// Name is the parent table name
	Name string `json:"name"`

	// KeyColumn is the partition key column
	KeyColumn string `json:"key_column"`

	// KeyType is the semantic type of the key column
	KeyType KeyType `json:"key_type"`

	// Strategy is the partitioning strategy (hash or range)
	Strategy Strategy `json:"strategy"`

	// Children lists partitions in index order 0..n-1
	Children []ChildRelation `json:"children"`

	// Bounds lists range bounds in index order (range strategy only)
	Bounds []RangeBound `json:"bounds,omitempty"`
}

// ChildCount returns the number of partitions.
func (s *PartitionScheme) ChildCount() int {
	if s.Strategy == StrategyRange && len(s.Bounds) > len(s.Children) {
		return len(s.Bounds)
	}
	return len(s.Children)
}

// Child returns the child relation at partition index i.
func (s *PartitionScheme) Child(i int) (ChildRelation, bool) {
	if i < 0 || i >= len(s.Children) {
		return ChildRelation{}, false
	}
	return s.Children[i], true
}

// Clone returns a deep copy of the scheme.
func (s *PartitionScheme) Clone() *PartitionScheme {
	cp := *s
	cp.Children = append([]ChildRelation(nil), s.Children...)
	if s.Bounds != nil {
		cp.Bounds = append([]RangeBound(nil), s.Bounds...)
	}
	return &cp
}

// Validate checks the scheme's structural invariants. Range bounds must be
// sorted, contiguous and non-overlapping, and their indexes must follow
// array order.
func (s *PartitionScheme) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty relation name", ErrInvalidScheme)
	}
	if s.KeyColumn == "" {
		return fmt.Errorf("%w: %s: empty key column", ErrInvalidScheme, s.Name)
	}
	if _, err := ParseKeyType(string(s.KeyType)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidScheme, s.Name, err)
	}
	seen := make(map[RelationID]struct{}, len(s.Children))
	for _, c := range s.Children {
		if c.ID == InvalidRelation || c.ID == s.Relation {
			return fmt.Errorf("%w: %s: bad child id %d", ErrInvalidScheme, s.Name, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate child id %d", ErrInvalidScheme, s.Name, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	switch s.Strategy {
	case StrategyHash:
		if len(s.Bounds) != 0 {
			return fmt.Errorf("%w: %s: hash scheme with bounds", ErrInvalidScheme, s.Name)
		}
		return nil
	case StrategyRange:
		if len(s.Bounds) != len(s.Children) {
			return fmt.Errorf("%w: %s: %d bounds for %d children",
				ErrInvalidBounds, s.Name, len(s.Bounds), len(s.Children))
		}
		return ValidateBounds(s.KeyType, s.Bounds)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, s.Strategy)
	}
}

// ValidateBounds checks that bounds are non-empty intervals, sorted by Min,
// contiguous and indexed 0..n-1 in order.
func ValidateBounds(kt KeyType, bounds []RangeBound) error {
	cmp, ok := Comparator(kt, kt)
	if !ok {
		return fmt.Errorf("%w: no ordering for key type %s", ErrInvalidBounds, kt)
	}
	var prevMax Datum
	for i, b := range bounds {
		if b.Index != i {
			return fmt.Errorf("%w: bound %d has index %d", ErrInvalidBounds, i, b.Index)
		}
		lo, err := Coerce(kt, b.Min)
		if err != nil {
			return fmt.Errorf("%w: bound %d min: %v", ErrInvalidBounds, i, err)
		}
		hi, err := Coerce(kt, b.Max)
		if err != nil {
			return fmt.Errorf("%w: bound %d max: %v", ErrInvalidBounds, i, err)
		}
		if cmp(lo, hi) >= 0 {
			return fmt.Errorf("%w: bound %d: min %v >= max %v", ErrInvalidBounds, i, b.Min, b.Max)
		}
		if i > 0 && cmp(prevMax, lo) != 0 {
			return fmt.Errorf("%w: bound %d does not start at previous max %v",
				ErrInvalidBounds, i, prevMax)
		}
		prevMax = hi
	}
	return nil
}
