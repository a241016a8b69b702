// Package store archives terminal job records and retired alerts so they
// remain queryable after the in-memory registries sweep them out. SQLite
// and Postgres backends are selected by config; the scheduler and alert
// manager never read their working state back from here.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chainwatch/internal/config"
	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

// JobFilter specifies criteria for listing archived job records.
type JobFilter struct {
	Status jobs.Status `json:"status,omitempty"`
	Name   string      `json:"name,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// AlertFilter specifies criteria for listing archived alerts.
type AlertFilter struct {
	SupplierID string                  `json:"supplier_id,omitempty"`
	Status     supplychain.AlertStatus `json:"status,omitempty"`
	Severity   supplychain.Severity    `json:"severity,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// Store defines the archive interface shared by both backends.
type Store interface {
	ArchiveJob(ctx context.Context, rec jobs.Record) error
	ListJobs(ctx context.Context, filter JobFilter) ([]jobs.Record, error)

	ArchiveAlert(ctx context.Context, a supplychain.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]supplychain.Alert, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the store backend named by the config. An empty driver
// disables archiving and returns (nil, nil).
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
