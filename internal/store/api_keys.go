// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/olegiv/ciledger-go/internal/model"
)

const apiKeyColumns = "id, name, key_hash, key_prefix, role, last_used_at, expires_at, is_active, created_at, updated_at"

// CreateAPIKey stores a new API key record. The raw key never touches the
// database; callers pass its hash.
func (s *Store) CreateAPIKey(ctx context.Context, name, keyHash, keyPrefix, role string) (*model.APIKey, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (name, key_hash, key_prefix, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		name, keyHash, keyPrefix, role, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting api key: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetAPIKey(ctx, id)
}

// GetAPIKey returns the API key record or sql.ErrNoRows.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+apiKeyColumns+" FROM api_keys WHERE id = ?", id)
	return scanAPIKey(row)
}

// GetAPIKeyByHash returns the API key with the given hash, or sql.ErrNoRows.
func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash = ?", keyHash)
	return scanAPIKey(row)
}

// CountAPIKeys returns the number of stored API keys.
func (s *Store) CountAPIKeys(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting api keys: %w", err)
	}
	return count, nil
}

// TouchAPIKey updates the key's last used timestamp.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

func scanAPIKey(r rowScanner) (*model.APIKey, error) {
	var k model.APIKey
	var lastUsed, expires sql.NullTime
	err := r.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role,
		&lastUsed, &expires, &k.IsActive, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	k.LastUsedAt = lastUsed
	k.ExpiresAt = expires
	return &k, nil
}
