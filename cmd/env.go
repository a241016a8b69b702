package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/model"
	"github.com/sells-group/chainwatch/internal/store"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

// initStore opens and migrates the configured archive backend. Returns
// (nil, nil) when archiving is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// initManager wires the job manager against the configured archive.
// The returned store may be nil.
func initManager(ctx context.Context) (*jobs.Manager, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var archive jobs.Archiver
	if st != nil {
		archive = st
	}
	mgr, err := jobs.NewManager(cfg.Jobs, cfg.Anomaly, archive)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, nil, err
	}
	return mgr, st, nil
}

// snapshot is the collaborator hand-off format: the current supplier
// population plus any alerts already raised against it.
type snapshot struct {
	Suppliers []map[string]any    `json:"suppliers"`
	Alerts    []supplychain.Alert `json:"alerts,omitempty"`
}

// loadSnapshot reads a supplier snapshot file.
func loadSnapshot(path string) (*snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read snapshot %s", path)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, eris.Wrapf(err, "parse snapshot %s", path)
	}
	return &snap, nil
}

// decodeSuppliers converts raw snapshot records, skipping malformed ones.
func decodeSuppliers(records []map[string]any) []model.Supplier {
	out := make([]model.Supplier, 0, len(records))
	for _, rec := range records {
		sup, err := model.SupplierFromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, sup)
	}
	return out
}
