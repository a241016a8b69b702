package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS job_archive (
	job_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	template     TEXT,
	status       TEXT NOT NULL,
	error        TEXT,
	result       TEXT,
	metadata     TEXT,
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS alert_archive (
	id              TEXT PRIMARY KEY,
	supplier_id     TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	risk_score      REAL NOT NULL,
	status          TEXT NOT NULL,
	metadata        TEXT,
	created_at      DATETIME NOT NULL,
	acknowledged_at DATETIME,
	resolved_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_job_archive_status ON job_archive(status);
CREATE INDEX IF NOT EXISTS idx_job_archive_name ON job_archive(name);
CREATE INDEX IF NOT EXISTS idx_alert_archive_supplier ON alert_archive(supplier_id);
CREATE INDEX IF NOT EXISTS idx_alert_archive_status ON alert_archive(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ArchiveJob(ctx context.Context, rec jobs.Record) error {
	resultJSON, metaJSON, err := marshalJobBlobs(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_archive
		 (job_id, name, template, status, error, result, metadata, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Name, rec.Template, string(rec.Status), rec.Error,
		resultJSON, metaJSON, rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: archive job %s", rec.JobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]jobs.Record, error) {
	query := `SELECT job_id, name, template, status, error, result, metadata, created_at, started_at, completed_at
		 FROM job_archive WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var recs []jobs.Record
	for rows.Next() {
		var (
			rec                  jobs.Record
			status               string
			errMsg               sql.NullString
			resultJSON, metaJSON sql.NullString
			started, completed   sql.NullTime
		)
		if err := rows.Scan(&rec.JobID, &rec.Name, &rec.Template, &status, &errMsg,
			&resultJSON, &metaJSON, &rec.CreatedAt, &started, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		rec.Status = jobs.Status(status)
		rec.Error = errMsg.String
		if started.Valid {
			t := started.Time
			rec.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		if err := unmarshalJobBlobs(&rec, resultJSON, metaJSON); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ArchiveAlert(ctx context.Context, a supplychain.Alert) error {
	metaJSON, err := marshalMeta(a.Metadata)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal alert metadata %s", a.ID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alert_archive
		 (id, supplier_id, alert_type, severity, message, risk_score, status, metadata, created_at, acknowledged_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SupplierID, a.Type, string(a.Severity), a.Message, a.RiskScore,
		string(a.Status), metaJSON, a.CreatedAt, a.AcknowledgedAt, a.ResolvedAt,
	)
	return eris.Wrapf(err, "sqlite: archive alert %s", a.ID)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]supplychain.Alert, error) {
	query := `SELECT id, supplier_id, alert_type, severity, message, risk_score, status, metadata, created_at, acknowledged_at, resolved_at
		 FROM alert_archive WHERE 1=1`
	var args []any

	if filter.SupplierID != "" {
		query += ` AND supplier_id = ?`
		args = append(args, filter.SupplierID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var alerts []supplychain.Alert
	for rows.Next() {
		var (
			a              supplychain.Alert
			severity       string
			status         string
			metaJSON       sql.NullString
			acked, resolvd sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.SupplierID, &a.Type, &severity, &a.Message,
			&a.RiskScore, &status, &metaJSON, &a.CreatedAt, &acked, &resolvd); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Severity = supplychain.Severity(severity)
		a.Status = supplychain.AlertStatus(status)
		if acked.Valid {
			t := acked.Time
			a.AcknowledgedAt = &t
		}
		if resolvd.Valid {
			t := resolvd.Time
			a.ResolvedAt = &t
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &a.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal alert metadata")
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

// helpers shared by both backends

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func marshalJobBlobs(rec jobs.Record) (result, meta sql.NullString, err error) {
	if rec.Result != nil {
		raw, merr := json.Marshal(rec.Result)
		if merr != nil {
			return result, meta, eris.Wrapf(merr, "store: marshal job result %s", rec.JobID)
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	if rec.Metadata != nil {
		raw, merr := json.Marshal(rec.Metadata)
		if merr != nil {
			return result, meta, eris.Wrapf(merr, "store: marshal job metadata %s", rec.JobID)
		}
		meta = sql.NullString{String: string(raw), Valid: true}
	}
	return result, meta, nil
}

func unmarshalJobBlobs(rec *jobs.Record, result, meta sql.NullString) error {
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &rec.Result); err != nil {
			return eris.Wrap(err, "store: unmarshal job result")
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return eris.Wrap(err, "store: unmarshal job metadata")
		}
	}
	return nil
}

func marshalMeta(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
