package estimate

import (
	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

const (
	// MaxDurationSeconds caps duration estimates. Longer estimates are
	// reported as one second more than the cap.
	MaxDurationSeconds = 24 * 60 * 60

	// DefaultBytesPerPixel is assumed for raster providers without statistics.
	DefaultBytesPerPixel = 0.06

	// MaxBytesPerPixel caps raster estimates.
	MaxBytesPerPixel = 3
)

// Size estimates the output bytes of an export of bbox for group, using the
// upper bound of the 99% confidence interval of size per km².
func Size(tree *aggregate.Tree, grid *tilegrid.Grid, bbox geo.BBox, group string, gapFillThreshold float64) (float64, Method, error) {
	perKm2, m, err := Lookup(tree, grid, Query{
		Group:            group,
		Field:            stats.FieldSize,
		Statistic:        stats.CI99,
		BBox:             bbox,
		GapFillThreshold: gapFillThreshold,
	})
	if err != nil {
		return 0, m, err
	}
	area := geo.AreaKm2BBox(bbox)
	m.PerUnit = &perKm2
	m.AreaKm2 = area
	return perKm2 * area, m, nil
}

// Duration estimates the seconds an export of bbox for group takes, from the
// mean duration per km². Estimates of a day or more return MaxDurationSeconds+1.
func Duration(tree *aggregate.Tree, grid *tilegrid.Grid, bbox geo.BBox, group string, gapFillThreshold float64) (float64, Method, error) {
	perKm2, m, err := Lookup(tree, grid, Query{
		Group:            group,
		Field:            stats.FieldDuration,
		Statistic:        stats.Mean,
		BBox:             bbox,
		GapFillThreshold: gapFillThreshold,
	})
	if err != nil {
		return 0, m, err
	}
	area := geo.AreaKm2BBox(bbox)
	m.PerUnit = &perKm2
	m.AreaKm2 = area

	seconds := perKm2 * area
	if seconds >= MaxDurationSeconds {
		m.Capped = true
		return MaxDurationSeconds + 1, m, nil
	}
	return seconds, m, nil
}

// RasterSize estimates the output bytes of a raster export from the mean
// bytes per pixel and the pixel count of the provider pyramid over bbox.
// The estimate never exceeds MaxBytesPerPixel per pixel.
func RasterSize(tree *aggregate.Tree, grid, pyramid *tilegrid.Grid, bbox geo.BBox, group string, gapFillThreshold float64, clipping bool) (float64, Method, error) {
	if err := bbox.Validate(); err != nil {
		return 0, Method{Stat: stats.Mean, Field: stats.FieldMPP}, err
	}
	pixels := pyramid.TotalPixels(bbox, clipping)

	mpp, m, err := Lookup(tree, grid, Query{
		Group:            group,
		Field:            stats.FieldMPP,
		Statistic:        stats.Mean,
		BBox:             bbox,
		GapFillThreshold: gapFillThreshold,
		Default:          DefaultBytesPerPixel,
	})
	if err != nil {
		return 0, m, err
	}
	m.PerUnit = &mpp
	m.Pixels = pixels
	m.WithClipping = &clipping

	estimate := pixels * mpp
	if limit := pixels * MaxBytesPerPixel; estimate > limit {
		m.Capped = true
		return limit, m, nil
	}
	return estimate, m, nil
}
