package testsupport

import (
	"context"
	"testing"

	"apodpipe/internal/config"
	"apodpipe/internal/runlog"
	"apodpipe/internal/warehouse"
)

// MustOpenLedger opens the run ledger for cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg.RunLedgerPath())
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenWarehouse opens the configured database with its schema in place.
func MustOpenWarehouse(t testing.TB, cfg *config.Config) *warehouse.Warehouse {
	t.Helper()

	wh, err := warehouse.Open(cfg.Database)
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	t.Cleanup(func() {
		wh.Close()
	})
	if err := wh.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return wh
}
