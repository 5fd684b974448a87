package geo

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
)

func genBBox() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-179, 178),
		gen.Float64Range(-89, 88),
		gen.Float64Range(0.001, 1),
		gen.Float64Range(0.001, 1),
	).Map(func(v []interface{}) BBox {
		w, s := v[0].(float64), v[1].(float64)
		return NewBBox(w, s, w+v[2].(float64), s+v[3].(float64))
	})
}

func TestProperty_AreaInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("area is non-negative and independent of ring orientation", prop.ForAll(
		func(b BBox) bool {
			forward := b.Polygon()
			ring := forward[0]
			reversed := make(orb.Ring, len(ring))
			for i := range ring {
				reversed[len(ring)-1-i] = ring[i]
			}

			a1, err1 := AreaKm2(forward)
			a2, err2 := AreaKm2(orb.Polygon{reversed})
			return err1 == nil && err2 == nil && a1 >= 0 && math.Abs(a1-a2) < 1e-9
		},
		genBBox(),
	))

	properties.Property("bbox area equals the area of its rectangle polygon", prop.ForAll(
		func(b BBox) bool {
			a, err := AreaKm2(b.Polygon())
			return err == nil && a == AreaKm2BBox(b)
		},
		genBBox(),
	))

	properties.Property("intersection is never larger than either box", prop.ForAll(
		func(a, b BBox) bool {
			inter, ok := BBoxIntersection(a, b)
			if !ok {
				return true
			}
			ia := AreaKm2BBox(inter)
			return ia <= math.Min(AreaKm2BBox(a), AreaKm2BBox(b))+1e-9
		},
		genBBox(),
		genBBox(),
	))

	properties.TestingRun(t)
}
