package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chainwatch/internal/resilience"
)

func stubRefresher(count int) ComponentRefresher {
	return func(_ context.Context, _ RefreshType) (ComponentResult, error) {
		return ComponentResult{
			Counts: map[string]int{"events": count, "total": count},
			Status: "completed",
		}, nil
	}
}

func TestRefreshJob_Execute(t *testing.T) {
	refreshers := map[string]ComponentRefresher{
		"ingestion": stubRefresher(10),
		"nlp":       stubRefresher(20),
	}
	job := NewRefreshJob("r1", "test_refresh", RefreshFull, []string{"ingestion", "nlp"}, refreshers)

	result, err := job.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, "full", result["refresh_type"])
	assert.Equal(t, 2, result["component_count"])

	components, ok := result["components"].(map[string]ComponentResult)
	require.True(t, ok)
	assert.Equal(t, 10, components["ingestion"].Counts["events"])
	assert.Equal(t, 20, components["nlp"].Counts["events"])
}

func TestRefreshJob_UnknownComponent(t *testing.T) {
	job := NewRefreshJob("r2", "test_refresh", RefreshFull, []string{"bogus"},
		map[string]ComponentRefresher{"ingestion": stubRefresher(1)})

	_, err := job.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component")
}

func TestRefreshJob_ComponentFailureAborts(t *testing.T) {
	calls := 0
	refreshers := map[string]ComponentRefresher{
		"ingestion": stubRefresher(5),
		"nlp": func(_ context.Context, _ RefreshType) (ComponentResult, error) {
			return ComponentResult{}, errors.New("schema mismatch")
		},
		"geo": func(_ context.Context, _ RefreshType) (ComponentResult, error) {
			calls++
			return ComponentResult{}, nil
		},
	}
	job := NewRefreshJob("r3", "test_refresh", RefreshFull, []string{"ingestion", "nlp", "geo"}, refreshers)

	_, err := job.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "component nlp")
	assert.Zero(t, calls, "components after the failure must not run")
}

func TestRefreshJob_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	refreshers := map[string]ComponentRefresher{
		"risk": func(_ context.Context, _ RefreshType) (ComponentResult, error) {
			attempts++
			if attempts < 3 {
				return ComponentResult{}, resilience.NewTransientError(errors.New("throttled"), 429)
			}
			return ComponentResult{Counts: map[string]int{"total": 1}, Status: "completed"}, nil
		},
	}
	job := NewRefreshJob("r4", "test_refresh", RefreshIncremental, []string{"risk"}, refreshers)
	job.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: 1, MaxBackoff: 1, Multiplier: 1}

	result, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "completed", result["status"])
}

func TestRefreshJob_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewRefreshJob("r5", "test_refresh", RefreshFull, nil, nil)
	_, err := job.Execute(ctx)
	require.Error(t, err)
}

func TestRefreshJob_Defaults(t *testing.T) {
	job := NewRefreshJob("r6", "test_refresh", RefreshIncremental, nil, nil)
	meta := job.Metadata()
	assert.Equal(t, "incremental", meta["refresh_type"])
	assert.Equal(t, DefaultComponents, meta["components"])
}

func TestRefreshJob_CloneKeepsConfig(t *testing.T) {
	job := NewRefreshJob("tmpl", "test_refresh", RefreshFull, []string{"geo"},
		map[string]ComponentRefresher{"geo": stubRefresher(1)})

	clone := job.Clone("tmpl_run1")
	assert.Equal(t, "tmpl_run1", clone.ID())
	assert.Equal(t, "tmpl", job.ID(), "template identity untouched")
	assert.Equal(t, job.Name(), clone.Name())
}

func TestSimulatedRefreshers_CoverDefaultComponents(t *testing.T) {
	refreshers := SimulatedRefreshers()
	for _, name := range DefaultComponents {
		refresher, ok := refreshers[name]
		require.True(t, ok, "missing simulated refresher for %s", name)

		res, err := refresher(context.Background(), RefreshFull)
		require.NoError(t, err)
		assert.Equal(t, "completed", res.Status)
		assert.Greater(t, res.Counts["total"], 0)
	}
}

func TestSimulatedRefreshers_IncrementalIsSmaller(t *testing.T) {
	refreshers := SimulatedRefreshers()
	res, err := refreshers["geo"](context.Background(), RefreshIncremental)
	require.NoError(t, err)

	// Incremental touches roughly a quarter of the full volume: geo tops
	// out at 270 full, so 270/4+3 bounds the incremental total.
	assert.LessOrEqual(t, res.Counts["total"], 71)
	assert.Greater(t, res.Counts["total"], 0)
}
