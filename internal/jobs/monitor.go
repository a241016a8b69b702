package jobs

import (
	"sort"
	"time"
)

// Health classification thresholds: more than 10% of completed runs failing
// is unhealthy; more than 5 failed runs outright is degraded.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	failureRateLimit   = 0.10
	failedCountLimit   = 5
	recentMetricWindow = 24 * time.Hour
)

// Metrics summarizes job execution across the registry.
type Metrics struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	CancelledJobs int     `json:"cancelled_jobs"`
	SuccessRate   float64 `json:"success_rate"`

	TotalDuration   float64 `json:"total_duration_secs"`
	AverageDuration float64 `json:"average_duration_secs"`

	RecentJobs    int `json:"recent_jobs_24h"`
	ScheduledJobs int `json:"scheduled_jobs"`
}

// Performance holds duration percentiles for a set of finished runs.
type Performance struct {
	Count          int     `json:"count"`
	MinDuration    float64 `json:"min_duration_secs"`
	MaxDuration    float64 `json:"max_duration_secs"`
	AvgDuration    float64 `json:"average_duration_secs"`
	MedianDuration float64 `json:"median_duration_secs"`
	P95Duration    float64 `json:"p95_duration_secs"`
	P99Duration    float64 `json:"p99_duration_secs"`
}

// HealthStatus is the monitor's health classification plus its inputs.
type HealthStatus struct {
	Status           string    `json:"status"`
	Metrics          Metrics   `json:"metrics"`
	FailedJobsCount  int       `json:"failed_jobs_count"`
	RunningJobsCount int       `json:"running_jobs_count"`
	SchedulerRunning bool      `json:"scheduler_running"`
	Timestamp        time.Time `json:"timestamp"`
}

// Monitor is a read-only aggregator over a scheduler's registry.
type Monitor struct {
	sched *Scheduler
}

// NewMonitor creates a monitor over the given scheduler.
func NewMonitor(sched *Scheduler) *Monitor {
	return &Monitor{sched: sched}
}

// Metrics computes per-status counts, success rate and duration aggregates
// over the current registry.
func (m *Monitor) Metrics() Metrics {
	records := m.sched.AllJobs()
	cutoff := time.Now().UTC().Add(-recentMetricWindow)

	var out Metrics
	out.TotalJobs = len(records)
	out.ScheduledJobs = len(m.sched.ScheduledJobs())

	var durations []float64
	for _, r := range records {
		switch r.Status {
		case StatusPending:
			out.PendingJobs++
		case StatusRunning:
			out.RunningJobs++
		case StatusCompleted:
			out.CompletedJobs++
		case StatusFailed:
			out.FailedJobs++
		case StatusCancelled:
			out.CancelledJobs++
		}
		if d, ok := r.Duration(); ok {
			durations = append(durations, d.Seconds())
		}
		if r.CreatedAt.After(cutoff) {
			out.RecentJobs++
		}
	}

	for _, d := range durations {
		out.TotalDuration += d
	}
	if len(durations) > 0 {
		out.AverageDuration = out.TotalDuration / float64(len(durations))
	}
	if out.TotalJobs > 0 {
		out.SuccessRate = float64(out.CompletedJobs) / float64(out.TotalJobs)
	}
	return out
}

// Performance computes duration percentiles over finished runs, optionally
// filtered by logical job name. ok is false when no run has duration data.
func (m *Monitor) Performance(name string) (Performance, bool) {
	var durations []float64
	for _, r := range m.sched.AllJobs() {
		if name != "" && r.Name != name {
			continue
		}
		if d, ok := r.Duration(); ok {
			durations = append(durations, d.Seconds())
		}
	}
	if len(durations) == 0 {
		return Performance{}, false
	}

	sort.Float64s(durations)
	var total float64
	for _, d := range durations {
		total += d
	}

	return Performance{
		Count:          len(durations),
		MinDuration:    durations[0],
		MaxDuration:    durations[len(durations)-1],
		AvgDuration:    total / float64(len(durations)),
		MedianDuration: durations[len(durations)/2],
		P95Duration:    durations[percentileIndex(len(durations), 0.95)],
		P99Duration:    durations[percentileIndex(len(durations), 0.99)],
	}, true
}

// History returns jobs created within the trailing window, newest first.
func (m *Monitor) History(window time.Duration) []Record {
	cutoff := time.Now().UTC().Add(-window)

	var out []Record
	for _, r := range m.sched.AllJobs() {
		if r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// FailedJobs returns all records in the failed state.
func (m *Monitor) FailedJobs() []Record {
	return m.byStatus(StatusFailed)
}

// RunningJobs returns all records currently executing.
func (m *Monitor) RunningJobs() []Record {
	return m.byStatus(StatusRunning)
}

func (m *Monitor) byStatus(status Status) []Record {
	var out []Record
	for _, r := range m.sched.AllJobs() {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// Health classifies overall job-system health from failure counts.
func (m *Monitor) Health() HealthStatus {
	metrics := m.Metrics()

	status := HealthHealthy
	switch {
	case float64(metrics.FailedJobs) > float64(metrics.CompletedJobs)*failureRateLimit:
		status = HealthUnhealthy
	case metrics.FailedJobs > failedCountLimit:
		status = HealthDegraded
	}

	return HealthStatus{
		Status:           status,
		Metrics:          metrics,
		FailedJobsCount:  metrics.FailedJobs,
		RunningJobsCount: metrics.RunningJobs,
		SchedulerRunning: m.sched.Running(),
		Timestamp:        time.Now().UTC(),
	}
}

// percentileIndex maps a percentile to a sorted-slice index, clamped.
func percentileIndex(n int, p float64) int {
	idx := int(float64(n) * p)
	if idx >= n {
		idx = n - 1
	}
	return idx
}
