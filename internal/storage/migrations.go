package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial receipt schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS receipts (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					source_file TEXT NOT NULL,
					file_ext TEXT,
					vendor_code TEXT,
					source_type TEXT,
					layout_name TEXT,
					parsed_by TEXT NOT NULL,
					extraction_path TEXT,
					subtotal REAL NOT NULL DEFAULT 0,
					tax REAL NOT NULL DEFAULT 0,
					total REAL NOT NULL DEFAULT 0,
					item_count INTEGER NOT NULL DEFAULT 0,
					needs_review INTEGER NOT NULL DEFAULT 0,
					review_reasons TEXT,
					processed_at DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_receipts_vendor ON receipts(vendor_code)`,

				`CREATE TABLE IF NOT EXISTS line_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					receipt_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					name TEXT NOT NULL,
					item_number TEXT,
					upc TEXT,
					quantity REAL NOT NULL DEFAULT 0,
					unit_price REAL NOT NULL DEFAULT 0,
					total_price REAL NOT NULL DEFAULT 0,
					raw_uom_text TEXT,
					raw_size_text TEXT,
					parsed_by TEXT,
					l1_code TEXT,
					l1_name TEXT,
					l2_code TEXT,
					l2_name TEXT,
					category_source TEXT,
					rule_id TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					needs_review INTEGER NOT NULL DEFAULT 0,
					source_lines TEXT,
					FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_line_items_receipt ON line_items(receipt_id, position)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add category hints and review indexes",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE line_items ADD COLUMN hint_source TEXT`,
				`ALTER TABLE line_items ADD COLUMN hint_department TEXT`,
				`ALTER TABLE line_items ADD COLUMN hint_aisle TEXT`,
				`CREATE INDEX idx_line_items_l2 ON line_items(l2_code)`,
				`CREATE INDEX idx_line_items_review ON line_items(needs_review)`,
				`CREATE INDEX idx_receipts_review ON receipts(needs_review)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		common.LogInfo("Applied migration", common.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
