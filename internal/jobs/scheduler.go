package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// tracked pairs a job instance with its observable record and, for running
// instances, the cancel function of its run context.
type tracked struct {
	job    Job
	rec    Record
	cancel context.CancelFunc
}

// Scheduler owns the job registry and schedule entries and runs the polling
// loop. All registry access goes through the scheduler's mutex; job bodies
// run on their own goroutines and report back through guarded setters.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*tracked
	entries map[string]*ScheduleEntry
	active  map[string]bool // logical job ids with a run in flight

	tick    time.Duration
	sem     *semaphore.Weighted
	running bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	runWG      sync.WaitGroup

	log *zap.Logger
}

// NewScheduler creates a stopped scheduler. tick is the poll interval;
// maxConcurrent caps simultaneously executing job instances.
func NewScheduler(tick time.Duration, maxConcurrent int64) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		jobs:    make(map[string]*tracked),
		entries: make(map[string]*ScheduleEntry),
		active:  make(map[string]bool),
		tick:    tick,
		sem:     semaphore.NewWeighted(maxConcurrent),
		log:     zap.L().With(zap.String("component", "jobs.scheduler")),
	}
}

// AddJob registers a job template. Returns an error if the id is taken.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID()]; exists {
		return eris.Errorf("scheduler: job %s already registered", job.ID())
	}

	s.jobs[job.ID()] = &tracked{
		job: job,
		rec: Record{
			JobID:     job.ID(),
			Name:      job.Name(),
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
			Metadata:  job.Metadata(),
		},
	}
	s.log.Info("job registered", zap.String("job_id", job.ID()), zap.String("name", job.Name()))
	return nil
}

// Schedule creates or overwrites the recurring schedule for a registered
// job id. A zero start means the first run is due immediately.
func (s *Scheduler) Schedule(jobID string, interval time.Duration, start time.Time) error {
	if interval <= 0 {
		return eris.Errorf("scheduler: interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return eris.Errorf("scheduler: job %s not found", jobID)
	}

	next := start
	if next.IsZero() {
		next = time.Now().UTC()
	}
	s.entries[jobID] = &ScheduleEntry{
		JobID:    jobID,
		Interval: interval,
		NextRun:  next,
	}
	s.log.Info("job scheduled",
		zap.String("job_id", jobID),
		zap.Duration("interval", interval),
	)
	return nil
}

// Start launches the polling loop. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	s.log.Info("scheduler started", zap.Duration("tick", s.tick))
}

// Stop halts the polling loop and joins every scheduler-owned goroutine,
// including in-flight job runs. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.loopCancel
	done := s.loopDone
	s.mu.Unlock()

	cancel()
	<-done
	s.runWG.Wait()
	s.log.Info("scheduler stopped")
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(ctx, now.UTC())
		}
	}
}

// dispatchDue launches every due scheduled job. Dispatch order within a tick
// is deterministic (ascending job id) for testability.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []string
	for id, entry := range s.entries {
		if !now.Before(entry.NextRun) {
			due = append(due, id)
		}
	}
	sort.Strings(due)

	type launch struct {
		runID string
		job   Job
	}
	var launches []launch

	for _, id := range due {
		entry := s.entries[id]
		last := now
		entry.LastRun = &last
		entry.NextRun = now.Add(entry.Interval)

		// At-most-one-concurrent-instance per logical id: a tick that
		// finds the previous run still going is dropped, not queued.
		if s.active[id] {
			s.log.Warn("job still running, skipping tick", zap.String("job_id", id))
			continue
		}

		t := s.jobs[id]
		runID := runID(id)
		clone := t.job.Clone(runID)
		s.registerRunLocked(clone, id)
		s.active[id] = true
		launches = append(launches, launch{runID: runID, job: clone})
	}
	s.mu.Unlock()

	for _, l := range launches {
		s.launch(ctx, l.runID)
	}
}

// registerRunLocked adds a cloned run to the registry. Caller holds s.mu.
func (s *Scheduler) registerRunLocked(clone Job, templateID string) {
	s.jobs[clone.ID()] = &tracked{
		job: clone,
		rec: Record{
			JobID:     clone.ID(),
			Name:      clone.Name(),
			Template:  templateID,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
			Metadata:  clone.Metadata(),
		},
	}
}

// launch runs the job instance on its own goroutine, gated by the dispatch
// semaphore. The parent ctx only bounds semaphore acquisition and run
// cancellation on Stop; job errors never propagate here.
func (s *Scheduler) launch(ctx context.Context, runID string) {
	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Scheduler stopped before the run could start.
			s.finish(runID, nil, err)
			return
		}
		defer s.sem.Release(1)

		s.run(ctx, runID)
	}()
}

// run drives a single job instance through Running to a terminal state.
func (s *Scheduler) run(ctx context.Context, runID string) {
	s.mu.Lock()
	t, ok := s.jobs[runID]
	if !ok || t.rec.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	now := time.Now().UTC()
	t.rec.Status = StatusRunning
	t.rec.StartedAt = &now
	job := t.job
	s.mu.Unlock()
	defer cancel()

	s.log.Info("job started", zap.String("job_id", runID), zap.String("name", job.Name()))

	result, err := job.Execute(runCtx)
	s.finish(runID, result, err)
}

// finish records the terminal state of a run exactly once.
func (s *Scheduler) finish(runID string, result Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.jobs[runID]
	if !ok {
		return
	}
	if t.rec.Status.Terminal() {
		// Cancelled while in flight; keep the first terminal state.
		s.clearActiveLocked(t)
		return
	}

	now := time.Now().UTC()
	t.rec.CompletedAt = &now
	if t.rec.StartedAt == nil {
		t.rec.StartedAt = &now
	}

	switch {
	case err == nil:
		t.rec.Status = StatusCompleted
		t.rec.Result = result
	case errors.Is(err, context.Canceled):
		t.rec.Status = StatusCancelled
	default:
		t.rec.Status = StatusFailed
		t.rec.Error = err.Error()
	}

	if d, ok := t.rec.Duration(); ok {
		if t.rec.Status == StatusFailed {
			s.log.Error("job failed",
				zap.String("job_id", runID),
				zap.Duration("duration", d),
				zap.Error(err),
			)
		} else {
			s.log.Info("job finished",
				zap.String("job_id", runID),
				zap.String("status", string(t.rec.Status)),
				zap.Duration("duration", d),
			)
		}
	}

	s.clearActiveLocked(t)
}

func (s *Scheduler) clearActiveLocked(t *tracked) {
	if t.rec.Template != "" {
		delete(s.active, t.rec.Template)
	}
}

// RunNow clones a registered job and launches it immediately, outside its
// schedule. Returns the run id. The run outlives the caller: request-scoped
// contexts (an HTTP handler returning right after the 202) must not cancel
// it, so only values are carried over. CancelJob still cancels the run
// through its tracked run context.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (string, error) {
	s.mu.Lock()
	t, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return "", eris.Errorf("scheduler: job %s not found", jobID)
	}
	id := runID(jobID)
	clone := t.job.Clone(id)
	s.registerRunLocked(clone, "")
	s.mu.Unlock()

	s.launch(context.WithoutCancel(ctx), id)
	return id, nil
}

// RunSync clones a registered job, runs it on the calling goroutine, and
// returns its terminal record. The job's error is returned to the caller;
// the record still captures the failure.
func (s *Scheduler) RunSync(ctx context.Context, jobID string) (Record, error) {
	s.mu.Lock()
	t, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return Record{}, eris.Errorf("scheduler: job %s not found", jobID)
	}
	id := runID(jobID)
	clone := t.job.Clone(id)
	s.registerRunLocked(clone, "")
	now := time.Now().UTC()
	rt := s.jobs[id]
	rt.rec.Status = StatusRunning
	rt.rec.StartedAt = &now
	s.mu.Unlock()

	result, err := clone.Execute(ctx)
	s.finish(id, result, err)

	rec, _ := s.JobStatus(id)
	return rec, err
}

// CancelJob requests cancellation of a running job instance. Only
// Pending→Cancelled and Running→Cancelled transitions occur; terminal jobs
// are left untouched and false is returned.
func (s *Scheduler) CancelJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.jobs[jobID]
	if !ok || t.rec.Status.Terminal() {
		return false
	}

	now := time.Now().UTC()
	t.rec.Status = StatusCancelled
	t.rec.CompletedAt = &now
	if t.rec.StartedAt == nil {
		t.rec.StartedAt = &now
	}
	if t.cancel != nil {
		// Cooperative: the run context is cancelled but in-flight work is
		// not forcibly interrupted.
		t.cancel()
	}
	s.clearActiveLocked(t)
	s.log.Info("job cancelled", zap.String("job_id", jobID))
	return true
}

// RemoveJob drops a job and its schedule from the registry.
func (s *Scheduler) RemoveJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return false
	}
	delete(s.jobs, jobID)
	delete(s.entries, jobID)
	return true
}

// CleanupCompleted removes terminal jobs whose completion is older than
// maxAge, bounding registry growth. The removed records are returned so the
// caller can archive them.
func (s *Scheduler) CleanupCompleted(maxAge time.Duration) []Record {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Record
	for id, t := range s.jobs {
		if t.rec.Status.Terminal() && t.rec.CompletedAt != nil && t.rec.CompletedAt.Before(cutoff) {
			removed = append(removed, t.rec)
			delete(s.jobs, id)
			delete(s.entries, id)
		}
	}
	if len(removed) > 0 {
		s.log.Info("cleaned up terminal jobs", zap.Int("removed", len(removed)))
	}
	return removed
}

// JobStatus returns a copy of the record for the given job id.
func (s *Scheduler) JobStatus(jobID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return t.rec, true
}

// AllJobs returns copies of every record in the registry.
func (s *Scheduler) AllJobs() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.jobs))
	for _, t := range s.jobs {
		out = append(out, t.rec)
	}
	return out
}

// ScheduledJobs returns copies of every schedule entry.
func (s *Scheduler) ScheduledJobs() []ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

func runID(jobID string) string {
	return jobID + "_" + uuid.NewString()[:8]
}
