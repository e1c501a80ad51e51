package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

func openRules(cfg *config.Config) (*rules.Store, error) {
	store, err := rules.NewStore(cfg.Rules.Dir, rules.WithHotReload(cfg.Rules.HotReload))
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("cannot open rule directory %s", cfg.Rules.Dir), err)
	}
	return store, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	db, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		closeStorage(db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func closeStorage(db *storage.SQLiteStorage) {
	if err := db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

func closeRules(store *rules.Store) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close rule store", "error", err)
	}
}
