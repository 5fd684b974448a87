// Package stats reduces normalized export samples into summary statistics.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Field is a sampled quantity of an export.
type Field string

const (
	// FieldArea is the geodesic area of the export region in km².
	FieldArea Field = "area"
	// FieldDuration is elapsed seconds per km².
	FieldDuration Field = "duration"
	// FieldSize is result bytes per km².
	FieldSize Field = "size"
	// FieldMPP is result bytes per pixel of the provider's tile pyramid.
	FieldMPP Field = "mpp"
)

// Statistic names one value of a Summary.
type Statistic string

const (
	Mean Statistic = "mean"
	Min  Statistic = "min"
	Max  Statistic = "max"
	CI90 Statistic = "ci_90"
	CI95 Statistic = "ci_95"
	CI99 Statistic = "ci_99"
)

// z-scores of the reported confidence intervals.
const (
	Z90 = 1.645
	Z95 = 1.960
	Z99 = 2.580
)

// IsValid reports whether s is a known statistic.
func (s Statistic) IsValid() bool {
	switch s {
	case Mean, Min, Max, CI90, CI95, CI99:
		return true
	}
	return false
}

// Interval is a [lower, upper] confidence interval.
type Interval [2]float64

func (i Interval) Lower() float64 { return i[0] }
func (i Interval) Upper() float64 { return i[1] }

// Contains reports whether o lies within i.
func (i Interval) Contains(o Interval) bool {
	return i.Lower() <= o.Lower() && o.Upper() <= i.Upper()
}

// Summary is the reduction of one bucket field. Variance and the confidence
// intervals are only present when Count >= 2.
type Summary struct {
	Mean     float64   `json:"mean"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Count    int       `json:"count"`
	Variance *float64  `json:"variance,omitempty"`
	CI90     *Interval `json:"ci_90,omitempty"`
	CI95     *Interval `json:"ci_95,omitempty"`
	CI99     *Interval `json:"ci_99,omitempty"`
}

// Summarize reduces samples. It returns nil for an empty sample list.
func Summarize(samples []float64) *Summary {
	if len(samples) == 0 {
		return nil
	}

	mean, variance := stat.MeanVariance(samples, nil)
	s := &Summary{
		Mean:  mean,
		Min:   floats.Min(samples),
		Max:   floats.Max(samples),
		Count: len(samples),
	}
	if s.Count < 2 {
		return s
	}

	stdDev := math.Sqrt(variance)
	ci90 := ConfidenceInterval(s.Mean, stdDev, s.Count, Z90)
	ci95 := ConfidenceInterval(s.Mean, stdDev, s.Count, Z95)
	ci99 := ConfidenceInterval(s.Mean, stdDev, s.Count, Z99)

	s.Variance = &variance
	s.CI90 = &ci90
	s.CI95 = &ci95
	s.CI99 = &ci99
	return s
}

// ConfidenceInterval assumes normally distributed data: mean ± z·σ/√n.
func ConfidenceInterval(mean, stdDev float64, n int, z float64) Interval {
	margin := z * (stdDev / math.Sqrt(float64(n)))
	return Interval{mean - margin, mean + margin}
}

// Interval returns the confidence interval named by st, or nil.
func (s *Summary) Interval(st Statistic) *Interval {
	if s == nil {
		return nil
	}
	switch st {
	case CI90:
		return s.CI90
	case CI95:
		return s.CI95
	case CI99:
		return s.CI99
	}
	return nil
}

// Value returns the scalar for st. Confidence intervals resolve to their upper
// bound. The boolean is false when the value is unavailable.
func (s *Summary) Value(st Statistic) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch st {
	case Mean:
		return s.Mean, true
	case Min:
		return s.Min, true
	case Max:
		return s.Max, true
	case CI90, CI95, CI99:
		if ci := s.Interval(st); ci != nil {
			return ci.Upper(), true
		}
	}
	return 0, false
}
