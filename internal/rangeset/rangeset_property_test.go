package rangeset

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const propN = 12

// fromCells builds a set from one cell per index: 0 absent, 1 exact, 2 lossy.
func fromCells(cells []int) RangeSet {
	var rs []IndexRange
	for i, c := range cells {
		if c == 0 {
			continue
		}
		rs = append(rs, IndexRange{Lower: i, Upper: i, Lossy: c == 2})
	}
	return Of(rs...)
}

func cellsGen() gopter.Gen {
	return gen.SliceOfN(propN, gen.IntRange(0, 2))
}

// TestProperty_AlgebraLaws checks union and intersect identities,
// commutativity and associativity over random sets.
func TestProperty_AlgebraLaws(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("full is the intersect identity and the union absorber", prop.ForAll(
		func(xs []int) bool {
			x := fromCells(xs)
			return Intersect(Full(propN), x).Equal(x) && Union(Full(propN), x).Equal(Full(propN))
		},
		cellsGen(),
	))

	properties.Property("empty is the union identity", prop.ForAll(
		func(xs []int) bool {
			x := fromCells(xs)
			return Union(Empty(), x).Equal(x) && Intersect(Empty(), x).IsEmpty()
		},
		cellsGen(),
	))

	properties.Property("union and intersect commute", prop.ForAll(
		func(xs, ys []int) bool {
			x, y := fromCells(xs), fromCells(ys)
			return Union(x, y).Equal(Union(y, x)) && Intersect(x, y).Equal(Intersect(y, x))
		},
		cellsGen(), cellsGen(),
	))

	properties.Property("union and intersect associate", prop.ForAll(
		func(xs, ys, zs []int) bool {
			x, y, z := fromCells(xs), fromCells(ys), fromCells(zs)
			return Union(Union(x, y), z).Equal(Union(x, Union(y, z))) &&
				Intersect(Intersect(x, y), z).Equal(Intersect(x, Intersect(y, z)))
		},
		cellsGen(), cellsGen(), cellsGen(),
	))

	properties.TestingRun(t)
}

// TestProperty_PointwiseSemantics checks every index of a combined set
// against the per-index OR/AND rule.
func TestProperty_PointwiseSemantics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("union and intersect follow the per-index rule", prop.ForAll(
		func(xs, ys []int) bool {
			u := Union(fromCells(xs), fromCells(ys))
			in := Intersect(fromCells(xs), fromCells(ys))
			for i := 0; i < min(len(xs), len(ys)); i++ {
				a, b := xs[i], ys[i]

				uf, ul := u.Find(i)
				switch {
				case a == 0 && b == 0:
					if uf {
						return false
					}
				case a == 1 || b == 1:
					if !uf || ul {
						return false
					}
				default:
					if !uf || !ul {
						return false
					}
				}

				inf, inl := in.Find(i)
				switch {
				case a == 0 || b == 0:
					if inf {
						return false
					}
				case a == 1 && b == 1:
					if !inf || inl {
						return false
					}
				default:
					if !inf || !inl {
						return false
					}
				}
			}
			return true
		},
		cellsGen(), cellsGen(),
	))

	properties.Property("ranges stay sorted, disjoint and coalesced", prop.ForAll(
		func(xs, ys []int) bool {
			rs := Union(fromCells(xs), fromCells(ys)).Ranges()
			for i := 1; i < len(rs); i++ {
				prev, cur := rs[i-1], rs[i]
				if cur.Lower <= prev.Upper {
					return false
				}
				if cur.Lower == prev.Upper+1 && cur.Lossy == prev.Lossy {
					return false
				}
			}
			return true
		},
		cellsGen(), cellsGen(),
	))

	properties.Property("length counts covered indexes", prop.ForAll(
		func(xs []int) bool {
			want := 0
			for _, c := range xs {
				if c != 0 {
					want++
				}
			}
			return fromCells(xs).Len() == want
		},
		cellsGen(),
	))

	properties.TestingRun(t)
}
