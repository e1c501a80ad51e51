// Package testutil provides fixture rule sets and store helpers for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
)

// SetupTestDB creates a migrated in-memory receipt store that is closed when
// the test ends. Receipts in seed are saved in order.
func SetupTestDB(t *testing.T, seed ...*model.Receipt) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, r := range seed {
		if err := store.SaveReceipt(ctx, r); err != nil {
			t.Fatalf("failed to seed receipt %s: %v", r.ID, err)
		}
	}
	return store
}
