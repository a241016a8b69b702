package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "chainwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleJobRecord(id string, status jobs.Status, created time.Time) jobs.Record {
	started := created.Add(time.Second)
	completed := created.Add(3 * time.Second)
	return jobs.Record{
		JobID:       id,
		Name:        "hourly_data_refresh",
		Template:    "hourly_refresh",
		Status:      status,
		CreatedAt:   created,
		StartedAt:   &started,
		CompletedAt: &completed,
		Result:      jobs.Result{"status": "completed", "component_count": float64(4)},
		Metadata:    map[string]any{"refresh_type": "incremental"},
	}
}

func TestSQLiteStore_JobRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := sampleJobRecord("run_1", jobs.StatusCompleted, created)
	require.NoError(t, s.ArchiveJob(ctx, rec))

	got, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, rec.JobID, got[0].JobID)
	assert.Equal(t, rec.Name, got[0].Name)
	assert.Equal(t, rec.Template, got[0].Template)
	assert.Equal(t, jobs.StatusCompleted, got[0].Status)
	assert.Equal(t, rec.Result, got[0].Result)
	assert.Equal(t, rec.Metadata, got[0].Metadata)
	require.NotNil(t, got[0].StartedAt)
	require.NotNil(t, got[0].CompletedAt)
	assert.True(t, got[0].StartedAt.Equal(*rec.StartedAt))
}

func TestSQLiteStore_JobNullableFields(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := jobs.Record{
		JobID:     "run_pending",
		Name:      "anomaly_detection",
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.ArchiveJob(ctx, rec))

	got, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].StartedAt)
	assert.Nil(t, got[0].CompletedAt)
	assert.Nil(t, got[0].Result)
	assert.Nil(t, got[0].Metadata)
	assert.Empty(t, got[0].Error)
}

func TestSQLiteStore_ListJobsFilters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ArchiveJob(ctx, sampleJobRecord("run_1", jobs.StatusCompleted, base)))
	require.NoError(t, s.ArchiveJob(ctx, sampleJobRecord("run_2", jobs.StatusFailed, base.Add(time.Hour))))
	require.NoError(t, s.ArchiveJob(ctx, sampleJobRecord("run_3", jobs.StatusCompleted, base.Add(2*time.Hour))))

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run_3", all[0].JobID, "newest first")

	failed, err := s.ListJobs(ctx, JobFilter{Status: jobs.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "run_2", failed[0].JobID)

	limited, err := s.ListJobs(ctx, JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	offset, err := s.ListJobs(ctx, JobFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "run_1", offset[0].JobID)

	named, err := s.ListJobs(ctx, JobFilter{Name: "no_such_name"})
	require.NoError(t, err)
	assert.Empty(t, named)
}

func TestSQLiteStore_ArchiveJobReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := sampleJobRecord("run_1", jobs.StatusRunning, time.Now().UTC())
	require.NoError(t, s.ArchiveJob(ctx, rec))

	rec.Status = jobs.StatusFailed
	rec.Error = "refresh geo_heatmap: connection reset"
	require.NoError(t, s.ArchiveJob(ctx, rec))

	got, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1, "same job_id upserts")
	assert.Equal(t, jobs.StatusFailed, got[0].Status)
	assert.Equal(t, rec.Error, got[0].Error)
}

func TestSQLiteStore_AlertRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	resolved := created.Add(2 * time.Hour)
	alert := supplychain.Alert{
		ID:         "alert_abc123def456",
		SupplierID: "s1",
		Type:       supplychain.TypeCriticalRisk,
		Severity:   supplychain.SeverityCritical,
		Message:    "Supplier s1 risk score 95.0 exceeds critical threshold 90.0",
		RiskScore:  95,
		Status:     supplychain.AlertResolved,
		CreatedAt:  created,
		ResolvedAt: &resolved,
		Metadata:   map[string]any{"supplier_name": "Supplier s1", "country": "Germany"},
	}
	require.NoError(t, s.ArchiveAlert(ctx, alert))

	got, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, alert.ID, got[0].ID)
	assert.Equal(t, alert.Type, got[0].Type)
	assert.Equal(t, supplychain.SeverityCritical, got[0].Severity)
	assert.Equal(t, supplychain.AlertResolved, got[0].Status)
	assert.Equal(t, alert.RiskScore, got[0].RiskScore)
	assert.Equal(t, alert.Metadata, got[0].Metadata)
	assert.Nil(t, got[0].AcknowledgedAt)
	require.NotNil(t, got[0].ResolvedAt)
	assert.True(t, got[0].ResolvedAt.Equal(resolved))
}

func TestSQLiteStore_ListAlertsFilters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, a := range []supplychain.Alert{
		{ID: "alert_1", SupplierID: "s1", Type: supplychain.TypeHighRisk, Severity: supplychain.SeverityHigh, Message: "m", RiskScore: 75, Status: supplychain.AlertExpired},
		{ID: "alert_2", SupplierID: "s2", Type: supplychain.TypeHighRiskCountry, Severity: supplychain.SeverityHigh, Message: "m", RiskScore: 75, Status: supplychain.AlertResolved},
		{ID: "alert_3", SupplierID: "s1", Type: supplychain.TypeCriticalRisk, Severity: supplychain.SeverityCritical, Message: "m", RiskScore: 95, Status: supplychain.AlertResolved},
	} {
		a.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.ArchiveAlert(ctx, a))
	}

	all, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alert_3", all[0].ID, "newest first")

	bySupplier, err := s.ListAlerts(ctx, AlertFilter{SupplierID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySupplier, 2)

	bySeverity, err := s.ListAlerts(ctx, AlertFilter{Severity: supplychain.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "alert_3", bySeverity[0].ID)

	byStatus, err := s.ListAlerts(ctx, AlertFilter{Status: supplychain.AlertExpired, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "alert_1", byStatus[0].ID)
}
