package stats

// Converter maps a numeric statistic to its presentation form, e.g. seconds
// to an H:MM:SS string.
type Converter func(v float64) any

// Converted is a Summary after unit conversion. Count is never converted.
type Converted struct {
	Mean     any    `json:"mean"`
	Min      any    `json:"min"`
	Max      any    `json:"max"`
	Count    int    `json:"count"`
	Variance any    `json:"variance,omitempty"`
	CI90     *[2]any `json:"ci_90,omitempty"`
	CI95     *[2]any `json:"ci_95,omitempty"`
	CI99     *[2]any `json:"ci_99,omitempty"`
}

// Convert applies fn to every numeric value of s. A zero value is left as nil
// instead of being converted.
func (s *Summary) Convert(fn Converter) *Converted {
	if s == nil {
		return nil
	}

	apply := func(v float64) any {
		if v == 0 {
			return nil
		}
		return fn(v)
	}
	applyCI := func(ci *Interval) *[2]any {
		if ci == nil {
			return nil
		}
		return &[2]any{apply(ci.Lower()), apply(ci.Upper())}
	}

	c := &Converted{
		Mean:  apply(s.Mean),
		Min:   apply(s.Min),
		Max:   apply(s.Max),
		Count: s.Count,
		CI90:  applyCI(s.CI90),
		CI95:  applyCI(s.CI95),
		CI99:  applyCI(s.CI99),
	}
	if s.Variance != nil {
		c.Variance = apply(*s.Variance)
	}
	return c
}

// FormatterTable holds the presentation converter of each field. Fields
// without an entry are rendered as plain numbers.
type FormatterTable map[Field]Converter

// DefaultFormatters renders durations as H:MM:SS.
func DefaultFormatters() FormatterTable {
	return FormatterTable{
		FieldDuration: func(v float64) any { return FormatHMS(v) },
	}
}

// Render returns the presentation form of a field summary.
func (t FormatterTable) Render(field Field, s *Summary) any {
	if s == nil {
		return nil
	}
	if fn, ok := t[field]; ok && fn != nil {
		return s.Convert(fn)
	}
	return s
}
