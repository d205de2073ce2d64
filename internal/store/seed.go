// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/olegiv/ciledger-go/internal/model"
)

// SeedAdminKeyName is the name given to the bootstrap admin API key.
const SeedAdminKeyName = "bootstrap-admin"

// Seed creates the initial admin API key when the key table is empty. The
// raw key is logged once; it cannot be recovered afterwards.
func Seed(ctx context.Context, db *sql.DB) error {
	s := New(db)

	count, err := s.CountAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("checking for existing api keys: %w", err)
	}
	if count > 0 {
		slog.Info("api keys already present, skipping seed")
		return nil
	}

	rawKey, prefix, err := model.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating admin key: %w", err)
	}

	key, err := s.CreateAPIKey(ctx, SeedAdminKeyName, model.HashAPIKey(rawKey), prefix, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating admin key: %w", err)
	}

	slog.Info("created bootstrap admin API key; store it now, it will not be shown again",
		"id", key.ID,
		"key", rawKey,
	)

	return nil
}
