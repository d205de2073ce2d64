// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for API key authentication,
// authorization, and rate limiting.
package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/olegiv/ciledger-go/internal/model"
	"github.com/olegiv/ciledger-go/internal/store"
)

// ContextKey is the type for request context keys set by this package.
type ContextKey string

// ContextKeyAPIKey is the context key for the authenticated API key.
const ContextKeyAPIKey ContextKey = "api_key"

// APIError represents a JSON error response for the API.
type APIError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// WriteAPIError writes a JSON error response.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	apiErr := APIError{}
	apiErr.Error.Code = code
	apiErr.Error.Message = message
	apiErr.Error.Details = details

	_ = json.NewEncoder(w).Encode(apiErr)
}

// APIKeyAuth creates middleware that requires a valid bearer API key. The
// key record is placed in the request context; it is the opaque "current
// principal" for everything downstream.
func APIKeyAuth(st *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := authenticate(w, r, st)
			if !ok {
				return
			}

			touchLastUsed(st, key.ID)

			ctx := context.WithValue(r.Context(), ContextKeyAPIKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin creates middleware that rejects non-privileged keys on
// mutating routes. Must run after APIKeyAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetAPIKey(r)
		if key == nil {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key required", nil)
			return
		}
		if !key.IsPrivileged() {
			WriteAPIError(w, http.StatusForbidden, "forbidden", "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetAPIKey retrieves the authenticated API key from the request context.
// Returns nil if none is present.
func GetAPIKey(r *http.Request) *model.APIKey {
	key, ok := r.Context().Value(ContextKeyAPIKey).(*model.APIKey)
	if !ok {
		return nil
	}
	return key
}

// authenticate parses the Authorization header and validates the key.
// On failure it writes the error response and returns ok=false.
func authenticate(w http.ResponseWriter, r *http.Request, st *store.Store) (*model.APIKey, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header", nil)
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format. Use: Bearer <api_key>", nil)
		return nil, false
	}
	rawKey := parts[1]
	if rawKey == "" {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key is empty", nil)
		return nil, false
	}

	key, err := st.GetAPIKeyByHash(r.Context(), model.HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key", nil)
		} else {
			slog.Error("failed to validate API key", "error", err)
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to validate API key", nil)
		}
		return nil, false
	}

	if !key.IsValid() {
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "API key is inactive or expired", nil)
		return nil, false
	}

	return key, true
}

// touchLastUsed updates the last used timestamp in a background goroutine.
func touchLastUsed(st *store.Store, keyID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.TouchAPIKey(ctx, keyID)
	}()
}

// limiterCache is a per-key rate limiter cache with double-check locking.
type limiterCache struct {
	limiters map[int64]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func newLimiterCache(rps float64, burst int) *limiterCache {
	return &limiterCache{
		limiters: make(map[int64]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (lc *limiterCache) get(key int64) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()
	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// APIRateLimit creates middleware that rate limits requests per API key.
// Must run after APIKeyAuth; requests without a key pass through.
func APIRateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	cache := newLimiterCache(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetAPIKey(r)
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !cache.get(key.ID).Allow() {
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
