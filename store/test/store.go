// Package test provides store fixtures backed by a throwaway SQLite
// database.
package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/conductor-hq/conductor/internal/profile"
	"github.com/conductor-hq/conductor/store"
	"github.com/conductor-hq/conductor/store/db/sqlite"
)

// NewTestingStore creates a migrated store over a fresh SQLite database in
// a temp directory. The store is closed when the test finishes.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		Data:   dir,
		DSN:    filepath.Join(dir, "conductor_test.db"),
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("failed to validate profile: %v", err)
	}

	driver, err := sqlite.NewDB(p)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}

	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
