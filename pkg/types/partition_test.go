package types

import (
	"errors"
	"testing"
	"time"
)

func rangeScheme() *PartitionScheme {
	return &PartitionScheme{
		Relation:  100,
		Name:      "events",
		KeyColumn: "id",
		KeyType:   KeyInt,
		Strategy:  StrategyRange,
		Children: []ChildRelation{
			{ID: 101, Name: "events_0"},
			{ID: 102, Name: "events_1"},
			{ID: 103, Name: "events_2"},
		},
		Bounds: []RangeBound{
			{Min: int64(0), Max: int64(10), Index: 0},
			{Min: int64(10), Max: int64(20), Index: 1},
			{Min: int64(20), Max: int64(30), Index: 2},
		},
	}
}

func TestPartitionScheme_Validate(t *testing.T) {
	if err := rangeScheme().Validate(); err != nil {
		t.Fatalf("valid scheme rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(s *PartitionScheme)
		want   error
	}{
		{"gap", func(s *PartitionScheme) { s.Bounds[1].Min = int64(11) }, ErrInvalidBounds},
		{"overlap", func(s *PartitionScheme) { s.Bounds[1].Min = int64(9) }, ErrInvalidBounds},
		{"empty interval", func(s *PartitionScheme) { s.Bounds[2].Max = int64(20) }, ErrInvalidBounds},
		{"index order", func(s *PartitionScheme) { s.Bounds[0].Index = 2 }, ErrInvalidBounds},
		{"bound count", func(s *PartitionScheme) { s.Bounds = s.Bounds[:2] }, ErrInvalidBounds},
		{"duplicate child", func(s *PartitionScheme) { s.Children[1].ID = 101 }, ErrInvalidScheme},
		{"child is parent", func(s *PartitionScheme) { s.Children[0].ID = 100 }, ErrInvalidScheme},
		{"no key column", func(s *PartitionScheme) { s.KeyColumn = "" }, ErrInvalidScheme},
		{"bad strategy", func(s *PartitionScheme) { s.Strategy = "list" }, ErrUnknownStrategy},
		{"hash with bounds", func(s *PartitionScheme) { s.Strategy = StrategyHash }, ErrInvalidScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rangeScheme()
			tt.mutate(s)
			if err := s.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPartitionScheme_ValidateJSONBounds(t *testing.T) {
	// JSON decoding produces float64 bounds; validation coerces them.
	s := rangeScheme()
	for i := range s.Bounds {
		s.Bounds[i].Min = float64(i * 10)
		s.Bounds[i].Max = float64(i*10 + 10)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := s.Normalize(); err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if _, ok := s.Bounds[2].Max.(int64); !ok {
		t.Errorf("Normalize left %T", s.Bounds[2].Max)
	}
}

func TestPartitionScheme_CloneIsDeep(t *testing.T) {
	s := rangeScheme()
	cp := s.Clone()
	cp.Children[0].Name = "changed"
	cp.Bounds[0].Max = int64(5)
	if s.Children[0].Name != "events_0" || s.Bounds[0].Max != int64(10) {
		t.Error("Clone shares slices with the original")
	}
}

func TestCoerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kt      KeyType
		in      Datum
		want    Datum
		wantErr bool
	}{
		{KeyInt, int64(5), int64(5), false},
		{KeyInt, 5, int64(5), false},
		{KeyInt, float64(7), int64(7), false},
		{KeyInt, 2.5, nil, true},
		{KeyInt, "5", nil, true},
		{KeyFloat, int64(3), float64(3), false},
		{KeyText, "abc", "abc", false},
		{KeyText, int64(1), nil, true},
		{KeyTimestamp, "2024-03-01", ts, false},
		{KeyTimestamp, "2024-03-01T00:00:00Z", ts, false},
		{KeyTimestamp, "yesterday", nil, true},
	}

	for _, tt := range tests {
		got, err := Coerce(tt.kt, tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrCoerce) {
				t.Errorf("Coerce(%s, %v) error = %v, want ErrCoerce", tt.kt, tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(%s, %v) error = %v", tt.kt, tt.in, err)
			continue
		}
		if gt, ok := got.(time.Time); ok {
			if !gt.Equal(tt.want.(time.Time)) {
				t.Errorf("Coerce(%s, %v) = %v, want %v", tt.kt, tt.in, got, tt.want)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Coerce(%s, %v) = %v, want %v", tt.kt, tt.in, got, tt.want)
		}
	}
}

func TestComparator(t *testing.T) {
	tests := []struct {
		a, b   KeyType
		x, y   Datum
		want   int
		exists bool
	}{
		{KeyInt, KeyInt, int64(1), int64(2), -1, true},
		{KeyInt, KeyFloat, int64(2), 1.5, 1, true},
		{KeyFloat, KeyInt, 2.0, int64(2), 0, true},
		{KeyFloat, KeyInt, 2.5, int64(2), 1, true},
		{KeyText, KeyText, "b", "a", 1, true},
		{KeyText, KeyInt, nil, nil, 0, false},
		{KeyTimestamp, KeyText, nil, nil, 0, false},
	}

	for _, tt := range tests {
		cmp, ok := Comparator(tt.a, tt.b)
		if ok != tt.exists {
			t.Errorf("Comparator(%s, %s) exists = %v, want %v", tt.a, tt.b, ok, tt.exists)
			continue
		}
		if !ok {
			continue
		}
		if got := cmp(tt.x, tt.y); got != tt.want {
			t.Errorf("cmp(%v, %v) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestEncodeDecodeDatum(t *testing.T) {
	tests := []struct {
		kt KeyType
		v  Datum
		s  string
	}{
		{KeyInt, int64(-42), "-42"},
		{KeyFloat, 1.25, "1.25"},
		{KeyText, "eu-west", "eu-west"},
		{KeyTimestamp, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		s, err := EncodeDatum(tt.kt, tt.v)
		if err != nil || s != tt.s {
			t.Errorf("EncodeDatum(%s, %v) = %q, %v; want %q", tt.kt, tt.v, s, err, tt.s)
		}
		v, err := DecodeDatum(tt.kt, s)
		if err != nil {
			t.Fatalf("DecodeDatum(%s, %q): %v", tt.kt, s, err)
		}
		cmp, _ := Comparator(tt.kt, tt.kt)
		if cmp(v, tt.v) != 0 {
			t.Errorf("DecodeDatum(%s, %q) = %v, want %v", tt.kt, s, v, tt.v)
		}
	}
}

func TestParseKeyTypeAndStrategy(t *testing.T) {
	if kt, err := ParseKeyType("BIGINT"); err != nil || kt != KeyInt {
		t.Errorf("ParseKeyType(BIGINT) = %v, %v", kt, err)
	}
	if _, err := ParseKeyType("blob"); !errors.Is(err, ErrUnknownKeyType) {
		t.Errorf("ParseKeyType(blob) error = %v", err)
	}
	if s, err := ParseStrategy("range"); err != nil || s != StrategyRange {
		t.Errorf("ParseStrategy(range) = %v, %v", s, err)
	}
	if _, err := ParseStrategy("list"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategy(list) error = %v", err)
	}
}
