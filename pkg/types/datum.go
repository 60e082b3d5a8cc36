package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Datum is a single key value: int64, float64, string or time.Time.
type Datum = interface{}

// KeyType is the semantic type of a partition key column.
type KeyType string

const (
	KeyInt       KeyType = "int"
	KeyFloat     KeyType = "float"
	KeyText      KeyType = "text"
	KeyTimestamp KeyType = "timestamp"
)

// ParseKeyType converts a textual type name into a KeyType. SQL type
// aliases are accepted.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "bigint", "int4", "int8", "smallint":
		return KeyInt, nil
	case "float", "real", "double", "numeric", "float8":
		return KeyFloat, nil
	case "text", "varchar", "string":
		return KeyText, nil
	case "timestamp", "timestamptz", "date":
		return KeyTimestamp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKeyType, s)
	}
}

// TypeOf reports the key type of a Go value.
func TypeOf(v Datum) (KeyType, bool) {
	switch v.(type) {
	case int64, int, int32:
		return KeyInt, true
	case float64, float32:
		return KeyFloat, true
	case string:
		return KeyText, true
	case time.Time:
		return KeyTimestamp, true
	default:
		return "", false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the textual timestamp forms accepted for keys.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrCoerce, s)
}

// Coerce converts v into the canonical Go representation of kt. The
// conversion is lossless; a value that cannot be represented exactly
// (such as 2.5 for an int key) returns ErrCoerce.
func Coerce(kt KeyType, v Datum) (Datum, error) {
	switch kt {
	case KeyInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
				return int64(x), nil
			}
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n, nil
			}
		}
	case KeyFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, nil
			}
		}
	case KeyText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KeyTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return ParseTimestamp(x)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, kt)
	}
	return nil, fmt.Errorf("%w: %v (%T) as %s", ErrCoerce, v, v, kt)
}

// CompareFn is a total order over two datums: negative when a < b, zero when
// equal and positive when a > b.
type CompareFn func(a, b Datum) int

type typePair struct{ left, right KeyType }

var comparators = map[typePair]CompareFn{
	{KeyInt, KeyInt}:             compareInts,
	{KeyFloat, KeyFloat}:         compareFloats,
	{KeyInt, KeyFloat}:           compareIntFloat,
	{KeyFloat, KeyInt}:           func(a, b Datum) int { return -compareIntFloat(b, a) },
	{KeyText, KeyText}:           compareText,
	{KeyTimestamp, KeyTimestamp}: compareTimes,
}

// Comparator returns the comparator for a left value of type a against a
// right value of type b. The second result is false when the two types
// have no common ordering.
func Comparator(a, b KeyType) (CompareFn, bool) {
	fn, ok := comparators[typePair{a, b}]
	return fn, ok
}

func compareInts(a, b Datum) int {
	x, y := a.(int64), b.(int64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareFloats(a, b Datum) int {
	x, y := a.(float64), b.(float64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareIntFloat(a, b Datum) int {
	x, y := a.(int64), b.(float64)
	fx := float64(x)
	switch {
	case fx < y:
		return -1
	case fx > y:
		return 1
	}
	// float64 conversion may round large ints; settle ties exactly.
	if y >= math.MaxInt64 {
		return -1
	}
	if y < math.MinInt64 {
		return 1
	}
	return compareInts(x, int64(y))
}

func compareText(a, b Datum) int {
	return strings.Compare(a.(string), b.(string))
}

func compareTimes(a, b Datum) int {
	return a.(time.Time).Compare(b.(time.Time))
}

// EncodeDatum renders a key-typed datum as text for catalog storage.
func EncodeDatum(kt KeyType, v Datum) (string, error) {
	c, err := Coerce(kt, v)
	if err != nil {
		return "", err
	}
	switch x := c.(type) {
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case string:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	}
	return "", fmt.Errorf("%w: %T", ErrCoerce, c)
}

// DecodeDatum parses text produced by EncodeDatum.
func DecodeDatum(kt KeyType, s string) (Datum, error) {
	switch kt {
	case KeyInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCoerce, err)
		}
		return n, nil
	case KeyFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCoerce, err)
		}
		return f, nil
	case KeyText:
		return s, nil
	case KeyTimestamp:
		return ParseTimestamp(s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, kt)
}

// Normalize coerces every bound of a range scheme to the scheme's key type.
// Schemes decoded from JSON carry float64 and string values and must be
// normalized before use.
func (s *PartitionScheme) Normalize() error {
	for i := range s.Bounds {
		lo, err := Coerce(s.KeyType, s.Bounds[i].Min)
		if err != nil {
			return fmt.Errorf("%w: bound %d min: %v", ErrInvalidBounds, i, err)
		}
		hi, err := Coerce(s.KeyType, s.Bounds[i].Max)
		if err != nil {
			return fmt.Errorf("%w: bound %d max: %v", ErrInvalidBounds, i, err)
		}
		s.Bounds[i].Min, s.Bounds[i].Max = lo, hi
	}
	return nil
}
