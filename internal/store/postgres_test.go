package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS job_archive`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ArchiveJob_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO job_archive`).
		WithArgs("run_1", "hourly_data_refresh", "hourly_refresh", "completed",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.ArchiveJob(context.Background(), jobs.Record{
		JobID:     "run_1",
		Name:      "hourly_data_refresh",
		Template:  "hourly_refresh",
		Status:    jobs.StatusCompleted,
		CreatedAt: now,
		Result:    jobs.Result{"status": "completed"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ArchiveAlert_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO alert_archive`).
		WithArgs("alert_1", "s1", "critical_risk", "critical", "message", 95.0,
			"resolved", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.ArchiveAlert(context.Background(), supplychain.Alert{
		ID:         "alert_1",
		SupplierID: "s1",
		Type:       supplychain.TypeCriticalRisk,
		Severity:   supplychain.SeverityCritical,
		Message:    "message",
		RiskScore:  95,
		Status:     supplychain.AlertResolved,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tmpl := "anomaly_detection"
	rows := pgxmock.NewRows([]string{
		"job_id", "name", "template", "status", "error",
		"result", "metadata", "created_at", "started_at", "completed_at",
	}).AddRow(
		"run_1", "anomaly_detection", &tmpl, "failed", nullString("series fetch failed"),
		[]byte(`{"status":"failed"}`), []byte(nil), created, (*time.Time)(nil), (*time.Time)(nil),
	)

	mock.ExpectQuery(`FROM job_archive WHERE 1=1 AND status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("failed", 100).
		WillReturnRows(rows)

	recs, err := s.ListJobs(context.Background(), JobFilter{Status: jobs.StatusFailed})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "run_1", recs[0].JobID)
	assert.Equal(t, jobs.StatusFailed, recs[0].Status)
	assert.Equal(t, "anomaly_detection", recs[0].Template)
	assert.Equal(t, "series fetch failed", recs[0].Error)
	assert.Equal(t, jobs.Result{"status": "failed"}, recs[0].Result)
	assert.Nil(t, recs[0].StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM job_archive`).
		WithArgs(100).
		WillReturnError(errors.New("connection refused"))

	_, err := s.ListJobs(context.Background(), JobFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAlerts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "supplier_id", "alert_type", "severity", "message",
		"risk_score", "status", "metadata", "created_at", "acknowledged_at", "resolved_at",
	}).AddRow(
		"alert_1", "s1", "high_risk", "high", "risk exceeded",
		75.0, "active", []byte(`{"country":"Germany"}`), created, (*time.Time)(nil), (*time.Time)(nil),
	)

	mock.ExpectQuery(`FROM alert_archive WHERE 1=1 AND supplier_id = \$1`).
		WithArgs("s1", 50).
		WillReturnRows(rows)

	alerts, err := s.ListAlerts(context.Background(), AlertFilter{SupplierID: "s1", Limit: 50})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert_1", alerts[0].ID)
	assert.Equal(t, supplychain.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, supplychain.AlertActive, alerts[0].Status)
	assert.Equal(t, map[string]any{"country": "Germany"}, alerts[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))
}
