package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/chainwatch/internal/anomaly"
	"github.com/sells-group/chainwatch/internal/config"
)

// Default logical job ids wired at startup.
const (
	JobIDHourlyRefresh    = "hourly_refresh"
	JobIDDailyRefresh     = "daily_refresh"
	JobIDAnomalyDetection = "anomaly_detection"
)

// Archiver persists terminal job records evicted from the registry. The
// store package satisfies this; a nil archiver means records are dropped.
type Archiver interface {
	ArchiveJob(ctx context.Context, rec Record) error
}

// Manager is the composition root for background jobs: it wires the default
// schedules, owns the scheduler and monitor, and exposes the control/query
// surface the API layer consumes.
type Manager struct {
	cfg        config.JobsConfig
	anomalyCfg config.AnomalyConfig

	sched   *Scheduler
	monitor *Monitor
	archive Archiver

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	mu          sync.Mutex

	log *zap.Logger
}

// NewManager wires the scheduler, monitor and default jobs. archive may be
// nil.
func NewManager(cfg config.JobsConfig, anomalyCfg config.AnomalyConfig, archive Archiver) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		anomalyCfg: anomalyCfg,
		sched:      NewScheduler(cfg.Tick(), int64(cfg.MaxConcurrentDispatch)),
		archive:    archive,
		log:        zap.L().With(zap.String("component", "jobs.manager")),
	}
	m.monitor = NewMonitor(m.sched)

	if err := m.setupDefaultJobs(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) setupDefaultJobs() error {
	hourly := NewRefreshJob(JobIDHourlyRefresh, "hourly_data_refresh", RefreshIncremental, nil, nil)
	if err := m.sched.AddJob(hourly); err != nil {
		return err
	}
	if err := m.sched.Schedule(JobIDHourlyRefresh, time.Duration(m.cfg.IncrementalRefreshSecs)*time.Second, time.Time{}); err != nil {
		return err
	}

	daily := NewRefreshJob(JobIDDailyRefresh, "daily_full_refresh", RefreshFull, nil, nil)
	if err := m.sched.AddJob(daily); err != nil {
		return err
	}
	if err := m.sched.Schedule(JobIDDailyRefresh, time.Duration(m.cfg.FullRefreshSecs)*time.Second, time.Time{}); err != nil {
		return err
	}

	scan := NewAnomalyScanJob(
		JobIDAnomalyDetection, "anomaly_detection", "risk_index", nil,
		anomaly.New(m.anomalyCfg.ZScoreThreshold, m.anomalyCfg.STLFactor),
		m.anomalyCfg.ZScoreWindow, m.anomalyCfg.STLPeriod,
	)
	if err := m.sched.AddJob(scan); err != nil {
		return err
	}
	if err := m.sched.Schedule(JobIDAnomalyDetection, time.Duration(m.cfg.AnomalyScanSecs)*time.Second, time.Time{}); err != nil {
		return err
	}

	m.log.Info("default jobs configured")
	return nil
}

// Start launches the scheduler and the periodic cleanup sweep.
func (m *Manager) Start() {
	m.sched.Start()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweepCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})
	go m.sweepLoop(ctx)

	m.log.Info("job manager started")
}

// Stop halts the cleanup sweep and the scheduler, joining all goroutines.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.sweepCancel
	done := m.sweepDone
	m.sweepCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.sched.Stop()
	m.log.Info("job manager stopped")
}

// sweepLoop periodically evicts old terminal jobs, archiving them first.
func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.sweepDone)

	interval := time.Duration(m.cfg.CleanupSweepSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(ctx)
		}
	}
}

// Cleanup evicts terminal jobs past retention and archives them when an
// archiver is configured.
func (m *Manager) Cleanup(ctx context.Context) int {
	removed := m.sched.CleanupCompleted(m.cfg.Retention())
	if m.archive == nil {
		return len(removed)
	}
	for _, rec := range removed {
		if err := m.archive.ArchiveJob(ctx, rec); err != nil {
			m.log.Warn("job archive failed", zap.String("job_id", rec.JobID), zap.Error(err))
		}
	}
	return len(removed)
}

// CreateRefreshJob registers an on-demand refresh job over the given
// components and returns its id. The job is not scheduled; run it with
// RunJobNow.
func (m *Manager) CreateRefreshJob(typ RefreshType, components []string) (string, error) {
	id := "custom_refresh_" + uuid.NewString()[:8]
	job := NewRefreshJob(id, "custom_"+string(typ)+"_refresh", typ, components, nil)
	if err := m.sched.AddJob(job); err != nil {
		return "", err
	}
	return id, nil
}

// CreateAnomalyJob registers an on-demand anomaly scan for the given data
// source and returns its id.
func (m *Manager) CreateAnomalyJob(dataSource string, source SeriesSource) (string, error) {
	id := "anomaly_" + uuid.NewString()[:8]
	job := NewAnomalyScanJob(
		id, "anomaly_detection_"+dataSource, dataSource, source,
		anomaly.New(m.anomalyCfg.ZScoreThreshold, m.anomalyCfg.STLFactor),
		m.anomalyCfg.ZScoreWindow, m.anomalyCfg.STLPeriod,
	)
	if err := m.sched.AddJob(job); err != nil {
		return "", err
	}
	return id, nil
}

// RunJobNow launches a registered job immediately and returns the run id.
func (m *Manager) RunJobNow(ctx context.Context, jobID string) (string, error) {
	return m.sched.RunNow(ctx, jobID)
}

// RunJobSync runs a registered job on the calling goroutine and returns its
// terminal record along with the job's own error, if any.
func (m *Manager) RunJobSync(ctx context.Context, jobID string) (Record, error) {
	return m.sched.RunSync(ctx, jobID)
}

// CancelJob requests cancellation of a job instance.
func (m *Manager) CancelJob(jobID string) bool {
	return m.sched.CancelJob(jobID)
}

// JobStatus returns the record for a job id.
func (m *Manager) JobStatus(jobID string) (Record, bool) {
	return m.sched.JobStatus(jobID)
}

// AllJobs returns every record in the registry.
func (m *Manager) AllJobs() []Record {
	return m.sched.AllJobs()
}

// ScheduledJobs returns the current schedule entries.
func (m *Manager) ScheduledJobs() []ScheduleEntry {
	return m.sched.ScheduledJobs()
}

// Metrics returns aggregate job metrics.
func (m *Manager) Metrics() Metrics {
	return m.monitor.Metrics()
}

// Health returns the monitor's health classification.
func (m *Manager) Health() HealthStatus {
	return m.monitor.Health()
}

// History returns jobs created within the trailing window, newest first.
func (m *Manager) History(window time.Duration) []Record {
	return m.monitor.History(window)
}

// Performance returns duration percentiles, optionally filtered by name.
func (m *Manager) Performance(name string) (Performance, bool) {
	return m.monitor.Performance(name)
}

// Healthy reports whether the system is usable (healthy or degraded).
func (m *Manager) Healthy() bool {
	status := m.monitor.Health().Status
	return status == HealthHealthy || status == HealthDegraded
}

// SystemStatus summarizes the scheduler, monitor and manager state.
func (m *Manager) SystemStatus() map[string]any {
	health := m.monitor.Health()
	return map[string]any{
		"running":        m.sched.Running(),
		"healthy":        health.Status != HealthUnhealthy,
		"health":         health,
		"scheduled_jobs": len(m.sched.ScheduledJobs()),
		"timestamp":      time.Now().UTC(),
	}
}
