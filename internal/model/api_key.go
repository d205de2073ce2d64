// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// API key roles
const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// APIKey represents an API authentication key. The raw key is shown to the
// caller once; only its SHA-256 hash is stored.
type APIKey struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	KeyHash    string       `json:"-"` // Never expose hash in JSON
	KeyPrefix  string       `json:"key_prefix"`
	Role       string       `json:"role"`
	LastUsedAt sql.NullTime `json:"last_used_at,omitempty"`
	ExpiresAt  sql.NullTime `json:"expires_at,omitempty"`
	IsActive   bool         `json:"is_active"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// GenerateAPIKey generates a new random API key.
// Returns the raw key (to show the caller once) and the key prefix.
func GenerateAPIKey() (rawKey string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", err
	}
	rawKey = base64.URLEncoding.EncodeToString(bytes)
	prefix = rawKey[:8]
	return rawKey, prefix, nil
}

// HashAPIKey creates a SHA-256 hash of the API key for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// IsExpired checks if the API key has expired.
func (k *APIKey) IsExpired() bool {
	if !k.ExpiresAt.Valid {
		return false
	}
	return time.Now().After(k.ExpiresAt.Time)
}

// IsValid checks if the API key is active and not expired.
func (k *APIKey) IsValid() bool {
	return k.IsActive && !k.IsExpired()
}

// IsPrivileged reports whether the key may perform mutating operations.
func (k *APIKey) IsPrivileged() bool {
	return k.Role == RoleAdmin
}
