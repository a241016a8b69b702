package anomaly

// decomposition holds the additive components of a series:
// value = trend + seasonal + residual.
type decomposition struct {
	trend    []float64
	seasonal []float64
	residual []float64
}

// decompose performs a simple additive seasonal-trend decomposition:
// a centered moving average of one period estimates the trend, per-phase
// means of the detrended series estimate the seasonal component, and the
// remainder is the residual. Returns ok=false when the series cannot be
// decomposed (insufficient variation leaves everything in the trend).
func decompose(series []float64, period int) (decomposition, bool) {
	n := len(series)
	if period < 2 || n < 2*period {
		return decomposition{}, false
	}

	trend := movingAverage(series, period)

	// Seasonal component: mean detrended value per phase, centered so the
	// seasonal terms sum to zero over one period.
	phaseSum := make([]float64, period)
	phaseCount := make([]int, period)
	for i := 0; i < n; i++ {
		phaseSum[i%period] += series[i] - trend[i]
		phaseCount[i%period]++
	}

	phaseMean := make([]float64, period)
	var grand float64
	for p := 0; p < period; p++ {
		if phaseCount[p] > 0 {
			phaseMean[p] = phaseSum[p] / float64(phaseCount[p])
		}
		grand += phaseMean[p]
	}
	grand /= float64(period)
	for p := 0; p < period; p++ {
		phaseMean[p] -= grand
	}

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	var variation float64
	for i := 0; i < n; i++ {
		seasonal[i] = phaseMean[i%period]
		residual[i] = series[i] - trend[i] - seasonal[i]
		variation += residual[i] * residual[i]
	}

	// A constant series decomposes to trend only; treat as undecomposable
	// so callers fall back to the empty result.
	if variation == 0 && isConstant(series) {
		return decomposition{}, false
	}

	return decomposition{trend: trend, seasonal: seasonal, residual: residual}, true
}

// movingAverage computes a centered moving average of the given window,
// shrinking the window at the edges so every index has a trend estimate.
func movingAverage(series []float64, window int) []float64 {
	n := len(series)
	out := make([]float64, n)
	half := window / 2
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= n {
			hi = n - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func isConstant(series []float64) bool {
	if len(series) < 2 {
		return true
	}
	for _, v := range series[1:] {
		if v != series[0] {
			return false
		}
	}
	return true
}
