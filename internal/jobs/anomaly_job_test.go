package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chainwatch/internal/anomaly"
)

func fixedSeriesSource(series []float64, timestamps []time.Time) SeriesSource {
	return func(_ context.Context) ([]float64, []time.Time, error) {
		return series, timestamps, nil
	}
}

func TestAnomalyScanJob_FlagsInjectedSpike(t *testing.T) {
	series := make([]float64, 60)
	for i := range series {
		series[i] = 10 + 0.5*float64(i%2)
	}
	series[45] = 95

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, len(series))
	for i := range timestamps {
		timestamps[i] = base.Add(time.Duration(i) * time.Hour)
	}

	job := NewAnomalyScanJob("a1", "anomaly_scan", "risk_index",
		fixedSeriesSource(series, timestamps), anomaly.New(2.0, 3.0), 30, 24)

	result, err := job.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, len(series), result["data_points"])

	points, ok := result["anomalies"].([]anomaly.Point)
	require.True(t, ok)
	require.NotEmpty(t, points)

	var found bool
	for _, p := range points {
		if p.Index == 45 {
			found = true
			require.NotNil(t, p.Timestamp)
			assert.Equal(t, timestamps[45], *p.Timestamp)
		}
	}
	assert.True(t, found, "expected the injected spike to be flagged")
}

func TestAnomalyScanJob_NoData(t *testing.T) {
	job := NewAnomalyScanJob("a2", "anomaly_scan", "risk_index",
		fixedSeriesSource(nil, nil), anomaly.New(2.0, 3.0), 30, 24)

	result, err := job.Execute(context.Background())
	require.NoError(t, err, "an empty series is a valid no-data answer")
	assert.Equal(t, "no_data", result["status"])
	assert.Equal(t, 0, result["data_points"])
	assert.Equal(t, 0.0, result["anomaly_score"])
}

func TestAnomalyScanJob_FetchErrorFailsJob(t *testing.T) {
	job := NewAnomalyScanJob("a3", "anomaly_scan", "risk_index",
		func(_ context.Context) ([]float64, []time.Time, error) {
			return nil, nil, errors.New("signal store unavailable")
		}, anomaly.New(2.0, 3.0), 30, 24)

	_, err := job.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal store unavailable")
}

func TestAnomalyScanJob_SimulatedSource(t *testing.T) {
	job := NewAnomalyScanJob("a4", "anomaly_scan", "risk_index",
		nil, anomaly.New(2.0, 3.0), 30, 24)

	result, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, result["data_points"])

	score, ok := result["anomaly_score"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestAnomalyScanJob_Metadata(t *testing.T) {
	job := NewAnomalyScanJob("a5", "anomaly_scan", "shipping_delay",
		nil, anomaly.New(2.0, 3.0), 30, 24)
	assert.Equal(t, "shipping_delay", job.Metadata()["data_source"])

	clone := job.Clone("a5_run")
	assert.Equal(t, "a5_run", clone.ID())
	assert.Equal(t, "shipping_delay", clone.Metadata()["data_source"])
}
