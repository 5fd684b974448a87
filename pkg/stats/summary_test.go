package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_Empty(t *testing.T) {
	assert.Nil(t, Summarize(nil))
	assert.Nil(t, Summarize([]float64{}))
}

func TestSummarize_SingleSampleHasNoSpread(t *testing.T) {
	s := Summarize([]float64{4})
	require.NotNil(t, s)

	assert.Equal(t, 4.0, s.Mean)
	assert.Equal(t, 4.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 1, s.Count)
	assert.Nil(t, s.Variance)
	assert.Nil(t, s.CI90)
	assert.Nil(t, s.CI95)
	assert.Nil(t, s.CI99)

	_, ok := s.Value(CI99)
	assert.False(t, ok)
}

func TestSummarize_Values(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NotNil(t, s)

	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 8, s.Count)
	require.NotNil(t, s.Variance)
	assert.InDelta(t, 32.0/7.0, *s.Variance, 1e-12)

	margin := Z95 * math.Sqrt(32.0/7.0) / math.Sqrt(8)
	require.NotNil(t, s.CI95)
	assert.InDelta(t, 5-margin, s.CI95.Lower(), 1e-12)
	assert.InDelta(t, 5+margin, s.CI95.Upper(), 1e-12)

	upper, ok := s.Value(CI95)
	assert.True(t, ok)
	assert.Equal(t, s.CI95.Upper(), upper)
}

func TestSummary_JSONOmitsSpreadForSingleSample(t *testing.T) {
	data, err := json.Marshal(Summarize([]float64{3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"mean":3,"min":3,"max":3,"count":1}`, string(data))
}

func TestSummary_Convert(t *testing.T) {
	s := Summarize([]float64{0, 3600, 7200})
	c := s.Convert(func(v float64) any { return FormatHMS(v) })

	assert.Equal(t, "1:00:00", c.Mean)
	assert.Nil(t, c.Min, "zero values are not converted")
	assert.Equal(t, "2:00:00", c.Max)
	assert.Equal(t, 3, c.Count)
	assert.NotNil(t, c.Variance)
	require.NotNil(t, c.CI99)
}

func TestFormatterTable_Render(t *testing.T) {
	table := DefaultFormatters()
	s := Summarize([]float64{60, 120})

	_, converted := table.Render(FieldDuration, s).(*Converted)
	assert.True(t, converted)

	plain, ok := table.Render(FieldSize, s).(*Summary)
	assert.True(t, ok)
	assert.Same(t, s, plain)

	assert.Nil(t, table.Render(FieldSize, nil))
}

func TestStatistic_IsValid(t *testing.T) {
	for _, st := range []Statistic{Mean, Min, Max, CI90, CI95, CI99} {
		assert.True(t, st.IsValid(), st)
	}
	assert.False(t, Statistic("median").IsValid())
}
