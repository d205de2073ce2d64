// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/ciledger-go/internal/model"
	"github.com/olegiv/ciledger-go/internal/store"
)

// EventResponse is the JSON shape for a single event with its relations.
type EventResponse struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	EventType   string               `json:"event_type"`
	Severity    string               `json:"severity"`
	Source      string               `json:"source"`
	Metadata    json.RawMessage      `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Agents      []model.AgentSummary `json:"agents"`
	Tools       []model.ToolSummary  `json:"tools"`
	Tags        []model.TagSummary   `json:"tags"`
}

func eventResponse(ev *model.EventWithRelations) EventResponse {
	resp := EventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Timestamp:   ev.Timestamp,
		EventType:   ev.EventType,
		Severity:    ev.Severity,
		Source:      ev.Source,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
		Agents:      ev.Agents,
		Tools:       ev.Tools,
		Tags:        ev.Tags,
	}
	if ev.Metadata != "" {
		resp.Metadata = json.RawMessage(ev.Metadata)
	}
	return resp
}

// CreateEventRequest is the request body for creating an event.
type CreateEventRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Timestamp    *time.Time          `json:"timestamp"`
	EventType    string              `json:"event_type"`
	Severity     string              `json:"severity"`
	Source       string              `json:"source"`
	Metadata     json.RawMessage     `json:"metadata"`
	AgentIDs     []int64             `json:"agent_ids"`
	ToolVersions []model.ToolVersion `json:"tool_versions"`
	TagIDs       []int64             `json:"tag_ids"`
}

func (req *CreateEventRequest) validate() map[string]string {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Title) == "" {
		fieldErrors["title"] = "Title is required"
	}
	if !model.IsValidEventType(req.EventType) {
		fieldErrors["event_type"] = "Unknown event type"
	}
	if !model.IsValidSeverity(req.Severity) {
		fieldErrors["severity"] = "Unknown severity"
	}
	if req.Source != "" && !model.IsValidSource(req.Source) {
		fieldErrors["source"] = "Unknown source"
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		fieldErrors["metadata"] = "Metadata must be valid JSON"
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

// UpdateEventRequest is the request body for a partial event update.
// Absent fields leave the stored value untouched; a present link array
// replaces that link set, even when empty.
type UpdateEventRequest struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	Timestamp    *time.Time           `json:"timestamp"`
	EventType    *string              `json:"event_type"`
	Severity     *string              `json:"severity"`
	Source       *string              `json:"source"`
	Metadata     json.RawMessage      `json:"metadata"`
	AgentIDs     *[]int64             `json:"agent_ids"`
	ToolVersions *[]model.ToolVersion `json:"tool_versions"`
	TagIDs       *[]int64             `json:"tag_ids"`
}

func (req *UpdateEventRequest) validate() map[string]string {
	fieldErrors := make(map[string]string)
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		fieldErrors["title"] = "Title must not be empty"
	}
	if req.EventType != nil && !model.IsValidEventType(*req.EventType) {
		fieldErrors["event_type"] = "Unknown event type"
	}
	if req.Severity != nil && !model.IsValidSeverity(*req.Severity) {
		fieldErrors["severity"] = "Unknown severity"
	}
	if req.Source != nil && !model.IsValidSource(*req.Source) {
		fieldErrors["source"] = "Unknown source"
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		fieldErrors["metadata"] = "Metadata must be valid JSON"
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

// ListEvents handles GET /api/v1/events with filtering and pagination.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, fieldErrors := parseEventFilter(r)
	if fieldErrors != nil {
		WriteValidationError(w, fieldErrors)
		return
	}

	events, err := h.store.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("listing events failed", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}
	total, err := h.store.CountEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("counting events failed", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}

	items := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		items = append(items, eventResponse(ev))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultEventLimit
	} else if limit > store.MaxEventLimit {
		limit = store.MaxEventLimit
	}
	WriteSuccess(w, items, &Meta{Total: total, Skip: filter.Skip, Limit: limit})
}

// GetEvent handles GET /api/v1/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "event")
	if !ok {
		return
	}
	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "event")
		return
	}
	WriteSuccess(w, eventResponse(ev), nil)
}

// CreateEvent handles POST /api/v1/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if fieldErrors := req.validate(); fieldErrors != nil {
		WriteValidationError(w, fieldErrors)
		return
	}

	in := store.EventCreate{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		EventType:    req.EventType,
		Severity:     req.Severity,
		Source:       req.Source,
		AgentIDs:     req.AgentIDs,
		ToolVersions: req.ToolVersions,
		TagIDs:       req.TagIDs,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	if len(req.Metadata) > 0 {
		in.Metadata = string(req.Metadata)
	}
	if in.Source == "" {
		in.Source = model.SourceManual
	}

	ev, err := h.store.CreateEvent(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, err, "event")
		return
	}
	WriteCreated(w, eventResponse(ev))
}

// UpdateEvent handles PUT /api/v1/events/{id}.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "event")
	if !ok {
		return
	}
	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if fieldErrors := req.validate(); fieldErrors != nil {
		WriteValidationError(w, fieldErrors)
		return
	}

	in := store.EventUpdate{
		Title:        req.Title,
		Description:  req.Description,
		Timestamp:    req.Timestamp,
		EventType:    req.EventType,
		Severity:     req.Severity,
		Source:       req.Source,
		AgentIDs:     req.AgentIDs,
		ToolVersions: req.ToolVersions,
		TagIDs:       req.TagIDs,
	}
	if len(req.Metadata) > 0 {
		md := string(req.Metadata)
		in.Metadata = &md
	}

	ev, err := h.store.UpdateEvent(r.Context(), id, in)
	if err != nil {
		h.writeStoreError(w, err, "event")
		return
	}
	WriteSuccess(w, eventResponse(ev), nil)
}

// DeleteEvent handles DELETE /api/v1/events/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "event")
	if !ok {
		return
	}
	if err := h.store.DeleteEvent(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseEventFilter builds an EventFilter from list query parameters.
func parseEventFilter(r *http.Request) (store.EventFilter, map[string]string) {
	q := r.URL.Query()
	fieldErrors := make(map[string]string)
	var filter store.EventFilter

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fieldErrors["start"] = "Must be an RFC 3339 timestamp"
		} else {
			filter.Start = &t
		}
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fieldErrors["end"] = "Must be an RFC 3339 timestamp"
		} else {
			filter.End = &t
		}
	}
	if v := q.Get("agent_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			fieldErrors["agent_id"] = "Must be a positive integer"
		} else {
			filter.AgentID = id
		}
	}
	if v := q.Get("tool_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			fieldErrors["tool_id"] = "Must be a positive integer"
		} else {
			filter.ToolID = id
		}
	}
	if v := q.Get("event_type"); v != "" {
		if !model.IsValidEventType(v) {
			fieldErrors["event_type"] = "Unknown event type"
		} else {
			filter.EventType = v
		}
	}
	if v := q.Get("severity"); v != "" {
		if !model.IsValidSeverity(v) {
			fieldErrors["severity"] = "Unknown severity"
		} else {
			filter.Severity = v
		}
	}
	if v := q.Get("source"); v != "" {
		if !model.IsValidSource(v) {
			fieldErrors["source"] = "Unknown source"
		} else {
			filter.Source = v
		}
	}
	filter.Search = q.Get("search")
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fieldErrors["skip"] = "Must be a non-negative integer"
		} else {
			filter.Skip = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fieldErrors["limit"] = "Must be a positive integer"
		} else {
			filter.Limit = n
		}
	}

	if len(fieldErrors) > 0 {
		return store.EventFilter{}, fieldErrors
	}
	return filter, nil
}
