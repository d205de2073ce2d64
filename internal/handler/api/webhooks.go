// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/olegiv/ciledger-go/internal/ingest"
)

// webhookBodyLimit caps the accepted webhook payload size.
const webhookBodyLimit = 1 << 20 // 1 MiB

// WebhookHandler serves inbound CI webhook deliveries.
type WebhookHandler struct {
	pipeline *ingest.Pipeline
	handler  *Handler
}

// NewWebhookHandler creates a webhook handler backed by the given pipeline.
func NewWebhookHandler(pipeline *ingest.Pipeline, h *Handler) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, handler: h}
}

// Jenkins handles POST /webhooks/jenkins. A valid delivery is ingested
// synchronously and acknowledged with 202 and the created event.
func (wh *WebhookHandler) Jenkins(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		WriteBadRequest(w, "Failed to read request body", nil)
		return
	}

	event, err := wh.pipeline.Process(r.Context(), body, r.Header.Get(ingest.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrBadSignature):
			WriteUnauthorized(w, "Invalid webhook signature")
		case errors.Is(err, ingest.ErrInvalidPayload):
			WriteBadRequest(w, err.Error(), nil)
		default:
			wh.handler.logger.Error("webhook ingestion failed", "error", err)
			WriteInternalError(w, "Failed to ingest webhook")
		}
		return
	}

	WriteAccepted(w, eventResponse(event))
}
