// Package geo provides the spherical area and bounding box helpers used to
// normalize export statistics per square kilometer.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EarthRadiusKm is the mean earth radius used by the spherical excess approximation.
const EarthRadiusKm = 6371.0

var (
	// ErrUnsupportedGeometry is returned for anything that is not a Polygon or MultiPolygon.
	ErrUnsupportedGeometry = errors.New("unsupported geometry")

	// ErrInvalidBBox is returned for non-finite or inverted bounding boxes.
	ErrInvalidBBox = errors.New("invalid bbox")
)

// BBox is a (west, south, east, north) extent in EPSG:4326 degrees.
type BBox [4]float64

// NewBBox builds a bounding box from its four edges.
func NewBBox(west, south, east, north float64) BBox {
	return BBox{west, south, east, north}
}

func (b BBox) West() float64  { return b[0] }
func (b BBox) South() float64 { return b[1] }
func (b BBox) East() float64  { return b[2] }
func (b BBox) North() float64 { return b[3] }

// Validate rejects non-finite coordinates and inverted edges.
func (b BBox) Validate() error {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidBBox, [4]float64(b))
		}
	}
	if b.West() > b.East() || b.South() > b.North() {
		return fmt.Errorf("%w: inverted edges in %v", ErrInvalidBBox, [4]float64(b))
	}
	return nil
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West(), b.South()},
		Max: orb.Point{b.East(), b.North()},
	}
}

// Polygon returns the closed 5-point rectangular ring of the box.
func (b BBox) Polygon() orb.Polygon {
	w, s, e, n := b[0], b[1], b[2], b[3]
	return orb.Polygon{orb.Ring{
		{w, s},
		{e, s},
		{e, n},
		{w, n},
		{w, s},
	}}
}

// BBoxFromBound converts an orb.Bound back to a BBox.
func BBoxFromBound(bound orb.Bound) BBox {
	return BBox{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}
}

// BBoxIntersection returns the overlap of a and b. The boolean is false when
// the boxes do not overlap. A box that is returned may still have zero area
// when a and b only share an edge.
func BBoxIntersection(a, b BBox) (BBox, bool) {
	if !a.Bound().Intersects(b.Bound()) {
		return BBox{}, false
	}
	return BBox{
		math.Max(a.West(), b.West()),
		math.Max(a.South(), b.South()),
		math.Min(a.East(), b.East()),
		math.Min(a.North(), b.North()),
	}, true
}

// AreaKm2BBox is the geodesic area of the rectangle described by b.
func AreaKm2BBox(b BBox) float64 {
	area, _ := AreaKm2(b.Polygon())
	return area
}

// AreaKm2 approximates the geodesic area of a Polygon or MultiPolygon in km²
// using the Chamberlain-Duquette spherical excess formula. Only the outer ring
// of every polygon is used. Parts whose ring has fewer than 4 points (after
// closing) are skipped.
func AreaKm2(g orb.Geometry) (float64, error) {
	var polygons []orb.Polygon
	switch geom := g.(type) {
	case orb.Polygon:
		polygons = []orb.Polygon{geom}
	case orb.MultiPolygon:
		polygons = geom
	case nil:
		return 0, fmt.Errorf("%w: empty geometry", ErrUnsupportedGeometry)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}

	var area float64
	for _, p := range polygons {
		if len(p) == 0 {
			continue
		}
		if a, ok := ringArea(p[0]); ok {
			area += a
		}
	}
	return area, nil
}

func ringArea(r orb.Ring) (float64, bool) {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		closed := make(orb.Ring, len(r), len(r)+1)
		copy(closed, r)
		r = append(closed, r[0])
	}
	if len(r) < 4 {
		return 0, false
	}

	n := len(r) - 1
	var sum float64
	for i := 0; i < n; i++ {
		prev := r[(i-1+n)%n]
		next := r[(i+1)%n]
		sum += (radians(next.Lon()) - radians(prev.Lon())) * math.Sin(radians(r[i].Lat()))
	}
	return math.Abs(sum * EarthRadiusKm * EarthRadiusKm / 2), true
}

func radians(d float64) float64 {
	return math.Pi * d / 180
}

// ParseGeoJSON decodes a GeoJSON Geometry, Feature or single-feature
// FeatureCollection into an orb.Geometry.
func ParseGeoJSON(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode geojson: %w", err)
	}

	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geojson feature: %w", err)
		}
		return f.Geometry, nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geojson feature collection: %w", err)
		}
		if len(fc.Features) != 1 {
			return nil, fmt.Errorf("%w: feature collection with %d features", ErrUnsupportedGeometry, len(fc.Features))
		}
		return fc.Features[0].Geometry, nil
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geojson geometry: %w", err)
		}
		return g.Geometry(), nil
	}
}

// AreaKm2GeoJSON is AreaKm2 over a raw GeoJSON document.
func AreaKm2GeoJSON(data []byte) (float64, error) {
	g, err := ParseGeoJSON(data)
	if err != nil {
		return 0, err
	}
	return AreaKm2(g)
}
