package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatSeries(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestDetectZScore_ConstantSeries(t *testing.T) {
	d := New(0, 0)
	points := d.DetectZScore(flatSeries(50, 7.5), 10)
	assert.Empty(t, points, "constant series must yield zero anomalies")
	assert.NotNil(t, points)
}

func TestDetectZScore_FlagsSpike(t *testing.T) {
	d := New(2.0, 3.0)

	// Alternating 10/10.5 baseline keeps every normal z-score at 1.0.
	series := make([]float64, 40)
	for i := range series {
		series[i] = 10 + 0.5*float64(i%2)
	}
	series[35] = 100

	points := d.DetectZScore(series, 10)
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, 35, p.Index)
	assert.Equal(t, 100.0, p.Value)
	assert.Equal(t, MethodZScore, p.Method)
	assert.Equal(t, SeverityHigh, p.Severity)
	assert.Greater(t, p.ZScore, 3.0)
	assert.Greater(t, p.Std, 0.0)
}

func TestDetectZScore_ShortSeries(t *testing.T) {
	d := New(2.0, 3.0)
	assert.Empty(t, d.DetectZScore([]float64{1, 2, 3}, 10))
	assert.Empty(t, d.DetectZScore(nil, 10))
}

func TestDetectZScore_WindowExcludesCurrentPoint(t *testing.T) {
	d := New(2.0, 3.0)

	// A single step change: the spike itself must not dilute the trailing
	// window statistics it is compared against.
	series := append(flatSeries(20, 5), 5.1)
	series[15] = 5.2 // slight variation so std > 0
	points := d.DetectZScore(series, 10)
	for _, p := range points {
		assert.NotZero(t, p.Std)
	}
}

func TestDetectSTL_InsufficientData(t *testing.T) {
	d := New(2.0, 3.0)
	// Needs at least 2x period.
	assert.Empty(t, d.DetectSTL(flatSeries(20, 1), 24))
}

func TestDetectSTL_ConstantSeriesDegrades(t *testing.T) {
	d := New(2.0, 3.0)
	points := d.DetectSTL(flatSeries(100, 3.3), 24)
	assert.Empty(t, points, "decomposition failure must return empty, not error")
}

func TestDetectSTL_FlagsResidualOutlier(t *testing.T) {
	d := New(2.0, 3.0)

	period := 12
	series := make([]float64, period*6)
	for i := range series {
		series[i] = 50 + 10*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	series[40] += 80

	points := d.DetectSTL(series, period)
	require.NotEmpty(t, points)

	found := false
	for _, p := range points {
		if p.Index == 40 {
			found = true
			assert.Equal(t, MethodSTL, p.Method)
			assert.NotZero(t, p.Residual)
		}
	}
	assert.True(t, found, "expected index 40 to be flagged")
}

func TestDetectCombined_ZScoreWinsCollisions(t *testing.T) {
	d := New(2.0, 3.0)

	period := 12
	series := make([]float64, period*6)
	for i := range series {
		series[i] = 50 + 10*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	series[50] += 200

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, len(series))
	for i := range timestamps {
		timestamps[i] = base.Add(time.Duration(i) * time.Hour)
	}

	points := d.DetectCombined(series, timestamps, 10, period)
	require.NotEmpty(t, points)

	for i, p := range points {
		if i > 0 {
			assert.Greater(t, p.Index, points[i-1].Index, "points must be sorted by index")
		}
		require.NotNil(t, p.Timestamp)
		assert.Equal(t, timestamps[p.Index], *p.Timestamp)
		if p.Index == 50 {
			assert.Equal(t, MethodZScore, p.Method, "z-score takes precedence on collision")
		}
	}
}

func TestDetectCombined_NoTimestamps(t *testing.T) {
	d := New(2.0, 3.0)
	series := make([]float64, 31)
	for i := range series {
		series[i] = 5 + 0.5*float64(i%2)
	}
	series[25] = 500

	points := d.DetectCombined(series, nil, 10, 12)
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.Nil(t, p.Timestamp)
	}
}

func TestScore_ColdStart(t *testing.T) {
	d := New(2.0, 3.0)
	assert.Zero(t, d.Score(nil))
	assert.Zero(t, d.Score(flatSeries(9, 5)))
}

func TestScore_OutlierApproachesOne(t *testing.T) {
	d := New(2.0, 3.0)

	series := flatSeries(9, 10)
	series[3] = 10.1 // keep std > 0
	series = append(series, 1000)

	score := d.Score(series)
	assert.InDelta(t, 1.0, score, 1e-9, "far outlier should clamp to 1.0")
}

func TestScore_NormalPointIsLow(t *testing.T) {
	d := New(2.0, 3.0)

	series := []float64{10, 11, 9, 10, 11, 9, 10, 11, 9, 10}
	score := d.Score(series)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.Less(t, score, 0.5)
}

func TestScore_ConstantTrailingWindow(t *testing.T) {
	d := New(2.0, 3.0)
	assert.Zero(t, d.Score(flatSeries(10, 4)), "zero std trailing window scores 0")
}

func TestZSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, zSeverity(3.5))
	assert.Equal(t, SeverityMedium, zSeverity(2.5))
	assert.Equal(t, SeverityLow, zSeverity(2.0))
}
