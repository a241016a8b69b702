package jobs

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/chainwatch/internal/resilience"
)

// RefreshType selects how much upstream data a refresh pulls.
type RefreshType string

const (
	RefreshIncremental RefreshType = "incremental"
	RefreshFull        RefreshType = "full"
)

// DefaultComponents is the refresh order for a full pipeline pass.
var DefaultComponents = []string{"ingestion", "nlp", "geo", "risk", "supply_chain"}

// ComponentResult is what one component refresher reports back.
type ComponentResult struct {
	Counts       map[string]int `json:"counts"`
	DurationSecs float64        `json:"duration_secs"`
	Status       string         `json:"status"`
}

// ComponentRefresher refreshes one pipeline component (ingestion, nlp, geo,
// risk, supply_chain). Implementations are replaced with real adapters by
// the hosting service; transient errors are retried by the job.
type ComponentRefresher func(ctx context.Context, typ RefreshType) (ComponentResult, error)

// RefreshJob refreshes risk-relevant data component by component. A failing
// component fails the whole job after retries; the result payload still
// carries every component that finished.
type RefreshJob struct {
	id          string
	name        string
	refreshType RefreshType
	components  []string
	refreshers  map[string]ComponentRefresher
	retry       resilience.RetryConfig
}

// NewRefreshJob creates a refresh job over the given components. Empty
// components defaults to the full pipeline order; nil refreshers fall back
// to the simulated set.
func NewRefreshJob(id, name string, typ RefreshType, components []string, refreshers map[string]ComponentRefresher) *RefreshJob {
	if len(components) == 0 {
		components = DefaultComponents
	}
	if refreshers == nil {
		refreshers = SimulatedRefreshers()
	}
	return &RefreshJob{
		id:          id,
		name:        name,
		refreshType: typ,
		components:  components,
		refreshers:  refreshers,
		retry:       resilience.DefaultRetryConfig(),
	}
}

func (j *RefreshJob) ID() string   { return j.id }
func (j *RefreshJob) Name() string { return j.name }

func (j *RefreshJob) Metadata() map[string]any {
	return map[string]any{
		"refresh_type": string(j.refreshType),
		"components":   append([]string(nil), j.components...),
	}
}

// Clone returns a fresh instance sharing config but not identity.
func (j *RefreshJob) Clone(runID string) Job {
	clone := *j
	clone.id = runID
	return &clone
}

// Execute refreshes each component in order. Per-component results land in
// the payload under "components"; the first non-transient failure aborts.
func (j *RefreshJob) Execute(ctx context.Context) (Result, error) {
	log := zap.L().With(zap.String("job_id", j.id), zap.String("refresh_type", string(j.refreshType)))
	start := time.Now().UTC()

	components := make(map[string]ComponentResult, len(j.components))
	for _, name := range j.components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		refresher, ok := j.refreshers[name]
		if !ok {
			return nil, eris.Errorf("refresh: unknown component %s", name)
		}

		res, err := resilience.DoVal(ctx, j.retry, func(ctx context.Context) (ComponentResult, error) {
			return refresher(ctx, j.refreshType)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "refresh: component %s", name)
		}

		components[name] = res
		log.Debug("component refreshed", zap.String("refresh_component", name))
	}

	duration := time.Since(start)
	log.Info("data refresh completed", zap.Duration("duration", duration))

	return Result{
		"refresh_type":    string(j.refreshType),
		"components":      components,
		"duration_secs":   duration.Seconds(),
		"component_count": len(components),
		"status":          "completed",
	}, nil
}

// SimulatedRefreshers returns stand-in refreshers producing plausible event
// counts, paced by a shared rate limiter like the real feed adapters. They
// exist so the scheduler path is exercisable before the upstream connectors
// land.
func SimulatedRefreshers() map[string]ComponentRefresher {
	// One token per 50ms, small burst: keeps simulated full refreshes from
	// spinning the loop while staying fast enough for tests.
	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 5)

	simulate := func(counts map[string][2]int) ComponentRefresher {
		return func(ctx context.Context, typ RefreshType) (ComponentResult, error) {
			if err := limiter.Wait(ctx); err != nil {
				return ComponentResult{}, err
			}
			start := time.Now()
			out := make(map[string]int, len(counts)+1)
			total := 0
			for key, bounds := range counts {
				n := bounds[0] + rand.IntN(bounds[1]-bounds[0]+1)
				if typ == RefreshIncremental {
					// Incremental passes touch a fraction of the full volume.
					n = n/4 + 1
				}
				out[key] = n
				total += n
			}
			out["total"] = total
			return ComponentResult{
				Counts:       out,
				DurationSecs: time.Since(start).Seconds(),
				Status:       "completed",
			}, nil
		}
	}

	return map[string]ComponentRefresher{
		"ingestion": simulate(map[string][2]int{
			"rss_events":      {10, 50},
			"gdelt_events":    {20, 100},
			"acled_events":    {5, 30},
			"maritime_events": {2, 15},
		}),
		"nlp": simulate(map[string][2]int{
			"deduplicated_events": {5, 20},
			"classified_events":   {15, 40},
			"geocoded_events":     {10, 30},
			"embedded_events":     {8, 25},
		}),
		"geo": simulate(map[string][2]int{
			"heatmap_regions":  {50, 200},
			"port_chokepoints": {10, 50},
			"shipping_lanes":   {5, 20},
		}),
		"risk": simulate(map[string][2]int{
			"risk_indices":       {20, 100},
			"anomalies_detected": {0, 5},
		}),
		"supply_chain": simulate(map[string][2]int{
			"supplier_risks":   {5, 25},
			"alerts_generated": {0, 3},
		}),
	}
}
