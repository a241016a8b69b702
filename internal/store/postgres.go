package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// the hot archive paths.
var preparedStatements = map[string]string{
	"archive_job": `INSERT INTO job_archive
		(job_id, name, template, status, error, result, metadata, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status, error = EXCLUDED.error,
			result = EXCLUDED.result, completed_at = EXCLUDED.completed_at`,
	"archive_alert": `INSERT INTO alert_archive
		(id, supplier_id, alert_type, severity, message, risk_score, status, metadata, created_at, acknowledged_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_at = EXCLUDED.resolved_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS job_archive (
	job_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	template     TEXT,
	status       TEXT NOT NULL,
	error        TEXT,
	result       JSONB,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS alert_archive (
	id              TEXT PRIMARY KEY,
	supplier_id     TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	risk_score      DOUBLE PRECISION NOT NULL,
	status          TEXT NOT NULL,
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	acknowledged_at TIMESTAMPTZ,
	resolved_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_job_archive_status ON job_archive(status);
CREATE INDEX IF NOT EXISTS idx_job_archive_name ON job_archive(name);
CREATE INDEX IF NOT EXISTS idx_alert_archive_supplier ON alert_archive(supplier_id);
CREATE INDEX IF NOT EXISTS idx_alert_archive_status ON alert_archive(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) ArchiveJob(ctx context.Context, rec jobs.Record) error {
	var resultJSON, metaJSON []byte
	var err error
	if rec.Result != nil {
		if resultJSON, err = json.Marshal(rec.Result); err != nil {
			return eris.Wrapf(err, "postgres: marshal job result %s", rec.JobID)
		}
	}
	if rec.Metadata != nil {
		if metaJSON, err = json.Marshal(rec.Metadata); err != nil {
			return eris.Wrapf(err, "postgres: marshal job metadata %s", rec.JobID)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_archive
		 (job_id, name, template, status, error, result, metadata, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status, error = EXCLUDED.error,
			result = EXCLUDED.result, completed_at = EXCLUDED.completed_at`,
		rec.JobID, rec.Name, rec.Template, string(rec.Status), nullString(rec.Error),
		resultJSON, metaJSON, rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: archive job %s", rec.JobID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]jobs.Record, error) {
	query := `SELECT job_id, name, template, status, error, result, metadata, created_at, started_at, completed_at
		 FROM job_archive WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += placeholder(` AND status = `, len(args))
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += placeholder(` AND name = `, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += placeholder(` ORDER BY created_at DESC LIMIT `, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += placeholder(` OFFSET `, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var recs []jobs.Record
	for rows.Next() {
		var (
			rec                  jobs.Record
			status               string
			errMsg, tmpl         *string
			resultJSON, metaJSON []byte
		)
		if err := rows.Scan(&rec.JobID, &rec.Name, &tmpl, &status, &errMsg,
			&resultJSON, &metaJSON, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		rec.Status = jobs.Status(status)
		if tmpl != nil {
			rec.Template = *tmpl
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal job result")
			}
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal job metadata")
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ArchiveAlert(ctx context.Context, a supplychain.Alert) error {
	var metaJSON []byte
	var err error
	if a.Metadata != nil {
		if metaJSON, err = json.Marshal(a.Metadata); err != nil {
			return eris.Wrapf(err, "postgres: marshal alert metadata %s", a.ID)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_archive
		 (id, supplier_id, alert_type, severity, message, risk_score, status, metadata, created_at, acknowledged_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_at = EXCLUDED.resolved_at`,
		a.ID, a.SupplierID, a.Type, string(a.Severity), a.Message, a.RiskScore,
		string(a.Status), metaJSON, a.CreatedAt, a.AcknowledgedAt, a.ResolvedAt,
	)
	return eris.Wrapf(err, "postgres: archive alert %s", a.ID)
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]supplychain.Alert, error) {
	query := `SELECT id, supplier_id, alert_type, severity, message, risk_score, status, metadata, created_at, acknowledged_at, resolved_at
		 FROM alert_archive WHERE 1=1`
	var args []any

	if filter.SupplierID != "" {
		args = append(args, filter.SupplierID)
		query += placeholder(` AND supplier_id = `, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += placeholder(` AND status = `, len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		query += placeholder(` AND severity = `, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += placeholder(` ORDER BY created_at DESC LIMIT `, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += placeholder(` OFFSET `, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []supplychain.Alert
	for rows.Next() {
		var (
			a        supplychain.Alert
			severity string
			status   string
			metaJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.SupplierID, &a.Type, &severity, &a.Message,
			&a.RiskScore, &status, &metaJSON, &a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Severity = supplychain.Severity(severity)
		a.Status = supplychain.AlertStatus(status)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal alert metadata")
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

// IsNotFound reports whether an error is the no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func placeholder(clause string, n int) string {
	return fmt.Sprintf("%s$%d", clause, n)
}
