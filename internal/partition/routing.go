// Package partition maps key values to the partitions that store them.
// The matcher buckets hash keys with HashBucket. Router answers which child
// holds a given key; the route command uses it and the pruning tests check
// every selected partition set against it.
package partition

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/partprune/pkg/types"
)

// HashBucket returns the hash partition index for a key value coerced to kt.
// Integer keys use their value modulo n so buckets are predictable; other
// key types hash their canonical encoding with murmur3.
func HashBucket(kt types.KeyType, v types.Datum, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("routing: bucket count must be > 0, got %d", n)
	}
	c, err := types.Coerce(kt, v)
	if err != nil {
		return 0, err
	}

	switch x := c.(type) {
	case int64:
		m := int64(n)
		return int(((x % m) + m) % m), nil
	case float64:
		var b [8]byte
		if x == 0 {
			x = 0 // fold -0 into +0
		}
		binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
		return int(murmur3.Sum32(b[:]) % uint32(n)), nil
	case string:
		return int(murmur3.Sum32([]byte(x)) % uint32(n)), nil
	case time.Time:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(x.UnixNano()))
		return int(murmur3.Sum32(b[:]) % uint32(n)), nil
	}
	return 0, fmt.Errorf("routing: unhashable value %T", c)
}

// Router maps key values to the partition index that stores them.
type Router struct {
	scheme *types.PartitionScheme
	cmp    types.CompareFn
}

// NewRouter creates a router for the given scheme.
func NewRouter(scheme *types.PartitionScheme) (*Router, error) {
	if err := scheme.Validate(); err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	cp := scheme.Clone()
	if err := cp.Normalize(); err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	cmp, ok := types.Comparator(cp.KeyType, cp.KeyType)
	if !ok {
		return nil, fmt.Errorf("routing: no ordering for key type %s", cp.KeyType)
	}
	return &Router{scheme: cp, cmp: cmp}, nil
}

// Route returns the partition index for key value v. The second result is
// false when no partition accepts v (outside every range bound).
func (r *Router) Route(v types.Datum) (int, bool, error) {
	switch r.scheme.Strategy {
	case types.StrategyHash:
		b, err := HashBucket(r.scheme.KeyType, v, r.scheme.ChildCount())
		if err != nil {
			return 0, false, err
		}
		return b, true, nil
	case types.StrategyRange:
		c, err := types.Coerce(r.scheme.KeyType, v)
		if err != nil {
			return 0, false, err
		}
		bounds := r.scheme.Bounds
		i := sort.Search(len(bounds), func(i int) bool { return r.cmp(bounds[i].Max, c) > 0 })
		if i == len(bounds) || r.cmp(bounds[i].Min, c) > 0 {
			return 0, false, nil
		}
		return bounds[i].Index, true, nil
	default:
		return 0, false, fmt.Errorf("routing: unsupported strategy %q", r.scheme.Strategy)
	}
}

// RouteChild returns the child relation that stores v.
func (r *Router) RouteChild(v types.Datum) (types.ChildRelation, bool, error) {
	i, ok, err := r.Route(v)
	if err != nil || !ok {
		return types.ChildRelation{}, false, err
	}
	child, ok := r.scheme.Child(i)
	return child, ok, nil
}
