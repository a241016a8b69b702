// Package anomaly flags outliers in numeric time series using a trailing
// z-score test and an STL-style seasonal decomposition. All functions are
// pure: invalid or too-short input yields empty results, never an error,
// so detection degrades without failing the enclosing job.
package anomaly

import (
	"math"
	"sort"
	"time"
)

// Method identifies which statistical test flagged a point.
type Method string

const (
	MethodZScore Method = "z_score"
	MethodSTL    Method = "stl"
)

// Severity classifies how far out a flagged point is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Point is a single flagged observation. Fields beyond Index/Value/Method
// are populated per method: ZScore/Mean/Std for z-score, Residual/Trend/
// Seasonal for STL.
type Point struct {
	Index    int      `json:"index"`
	Value    float64  `json:"value"`
	Method   Method   `json:"method"`
	Severity Severity `json:"severity"`

	ZScore float64 `json:"z_score,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`

	Residual float64 `json:"residual,omitempty"`
	Trend    float64 `json:"trend,omitempty"`
	Seasonal float64 `json:"seasonal,omitempty"`

	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Detector holds detection thresholds. The zero value is unusable; use New.
type Detector struct {
	zThreshold float64
	stlFactor  float64
}

// New creates a Detector. zThreshold is the z-score cutoff (typically 2.0);
// stlFactor scales the residual standard deviation for the STL cutoff.
// Non-positive arguments fall back to defaults.
func New(zThreshold, stlFactor float64) *Detector {
	if zThreshold <= 0 {
		zThreshold = 2.0
	}
	if stlFactor <= 0 {
		stlFactor = 3.0
	}
	return &Detector{zThreshold: zThreshold, stlFactor: stlFactor}
}

// DetectZScore flags points whose value deviates from the trailing window
// mean by more than the configured number of standard deviations. The window
// excludes the current point; windows with zero variance flag nothing.
// Returns points ordered by index, empty slice for short input (never nil).
func (d *Detector) DetectZScore(series []float64, window int) []Point {
	points := []Point{}
	if window < 2 || len(series) <= window {
		return points
	}

	for i := window; i < len(series); i++ {
		mean, std := meanStd(series[i-window : i])
		if std <= 0 {
			continue
		}
		z := math.Abs(series[i]-mean) / std
		if z > d.zThreshold {
			points = append(points, Point{
				Index:    i,
				Value:    series[i],
				Method:   MethodZScore,
				Severity: zSeverity(z),
				ZScore:   z,
				Mean:     mean,
				Std:      std,
			})
		}
	}
	return points
}

// DetectSTL decomposes the series into trend, seasonal and residual
// components and flags points whose residual exceeds stlFactor standard
// deviations of the residuals. Requires len(series) >= 2*period; degenerate
// decompositions (no residual variation) flag nothing.
func (d *Detector) DetectSTL(series []float64, period int) []Point {
	points := []Point{}
	if period < 2 || len(series) < 2*period {
		return points
	}

	dec, ok := decompose(series, period)
	if !ok {
		return points
	}

	_, std := meanStd(dec.residual)
	if std <= 0 {
		return points
	}

	cutoff := d.stlFactor * std
	for i, r := range dec.residual {
		if math.Abs(r) > cutoff {
			points = append(points, Point{
				Index:    i,
				Value:    series[i],
				Method:   MethodSTL,
				Severity: residualSeverity(math.Abs(r), std),
				Residual: r,
				Trend:    dec.trend[i],
				Seasonal: dec.seasonal[i],
			})
		}
	}
	return points
}

// DetectCombined unions both methods. On index collisions the z-score point
// wins. Results are sorted by index ascending and annotated with timestamps
// where the timestamp slice covers the index.
func (d *Detector) DetectCombined(series []float64, timestamps []time.Time, zWindow, stlPeriod int) []Point {
	zPoints := d.DetectZScore(series, zWindow)
	stlPoints := d.DetectSTL(series, stlPeriod)

	seen := make(map[int]struct{}, len(zPoints))
	combined := make([]Point, 0, len(zPoints)+len(stlPoints))
	for _, p := range zPoints {
		seen[p.Index] = struct{}{}
		combined = append(combined, p)
	}
	for _, p := range stlPoints {
		if _, dup := seen[p.Index]; dup {
			continue
		}
		combined = append(combined, p)
	}

	sort.Slice(combined, func(i, j int) bool { return combined[i].Index < combined[j].Index })

	for i := range combined {
		if idx := combined[i].Index; idx < len(timestamps) {
			ts := timestamps[idx]
			combined[i].Timestamp = &ts
		}
	}
	return combined
}

// Score returns a [0,1] anomaly score for the most recent point, derived
// from its z-score against the trailing 9 observations. Series shorter than
// 10 points score 0 (cold start).
func (d *Detector) Score(series []float64) float64 {
	if len(series) < 10 {
		return 0
	}

	recent := series[len(series)-10:]
	current := recent[len(recent)-1]
	mean, std := meanStd(recent[:len(recent)-1])
	if std <= 0 {
		return 0
	}

	z := math.Abs(current-mean) / std
	return math.Min(z/d.zThreshold, 1.0)
}

func zSeverity(z float64) Severity {
	switch {
	case z > 3.0:
		return SeverityHigh
	case z > 2.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func residualSeverity(absResidual, std float64) Severity {
	switch {
	case absResidual > 4*std:
		return SeverityHigh
	case absResidual > 3.5*std:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
