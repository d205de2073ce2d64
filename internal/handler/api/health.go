// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
)

// HealthResponse is the JSON shape for the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// Health handles GET /healthz. It reports degraded with a 503 when the
// database does not answer a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: h.version.String(), Database: "ok"}
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		h.logger.Error("health check database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
