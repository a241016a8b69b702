package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ConstantSeries(t *testing.T) {
	_, ok := decompose(flatSeries(48, 2.5), 12)
	assert.False(t, ok, "constant series has no decomposable structure")
}

func TestDecompose_RecoversSeasonality(t *testing.T) {
	period := 12
	series := make([]float64, period*8)
	for i := range series {
		trend := 0.1 * float64(i)
		seasonal := 5 * math.Sin(2*math.Pi*float64(i)/float64(period))
		series[i] = 100 + trend + seasonal
	}

	dec, ok := decompose(series, period)
	require.True(t, ok)
	require.Len(t, dec.trend, len(series))
	require.Len(t, dec.seasonal, len(series))
	require.Len(t, dec.residual, len(series))

	// Seasonal component sums to ~zero over one period.
	var sum float64
	for i := 0; i < period; i++ {
		sum += dec.seasonal[i]
	}
	assert.InDelta(t, 0, sum, 1e-6)

	// Components reassemble the series exactly.
	for i := range series {
		assert.InDelta(t, series[i], dec.trend[i]+dec.seasonal[i]+dec.residual[i], 1e-9)
	}

	// Away from the edges the residual of a clean signal stays small
	// relative to the seasonal amplitude.
	for i := period; i < len(series)-period; i++ {
		assert.Less(t, math.Abs(dec.residual[i]), 2.5, "index %d residual too large", i)
	}
}

func TestMovingAverage_ShrinksAtEdges(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}
	got := movingAverage(series, 3)
	require.Len(t, got, len(series))
	assert.InDelta(t, 1.5, got[0], 1e-9)
	assert.InDelta(t, 2.0, got[1], 1e-9)
	assert.InDelta(t, 3.0, got[2], 1e-9)
	assert.InDelta(t, 4.5, got[4], 1e-9)
}

func TestIsConstant(t *testing.T) {
	assert.True(t, isConstant([]float64{3, 3, 3}))
	assert.False(t, isConstant([]float64{3, 3, 3.1}))
	assert.True(t, isConstant(nil))
}
