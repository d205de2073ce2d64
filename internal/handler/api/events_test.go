// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/olegiv/ciledger-go/internal/model"
	"github.com/olegiv/ciledger-go/internal/store"
)

func eventFixtures(t *testing.T, ts *testServer) (agentID, toolID, tagID int64) {
	t.Helper()
	ctx := context.Background()

	agent, err := ts.store.CreateAgent(ctx, store.AgentCreate{Name: "build-01"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	tool, err := ts.store.CreateTool(ctx, store.ToolCreate{Name: "go"})
	if err != nil {
		t.Fatalf("CreateTool: %v", err)
	}
	tag, err := ts.store.CreateTag(ctx, "production")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	return agent.ID, tool.ID, tag.ID
}

func TestCreateEventHandler(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()
	agentID, toolID, tagID := eventFixtures(t, ts)

	resp := ts.request(t, http.MethodPost, "/api/v1/events", ts.adminKey, map[string]any{
		"title":      "go upgraded",
		"event_type": model.EventTypeToolUpdate,
		"severity":   model.SeverityInfo,
		"agent_ids":  []int64{agentID},
		"tool_versions": []map[string]any{
			{"tool_id": toolID, "version_from": "1.24.0", "version_to": "1.25.0"},
		},
		"tag_ids":  []int64{tagID},
		"metadata": map[string]string{"ticket": "OPS-17"},
	})

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %+v", resp.StatusCode, decodeError(t, resp))
	}
	ev := decodeData[EventResponse](t, resp)

	if ev.ID == 0 {
		t.Error("event id should not be 0")
	}
	if ev.Source != model.SourceManual {
		t.Errorf("Source = %q, want default %q", ev.Source, model.SourceManual)
	}
	if len(ev.Agents) != 1 || ev.Agents[0].Name != "build-01" {
		t.Errorf("Agents = %+v", ev.Agents)
	}
	if len(ev.Tools) != 1 || ev.Tools[0].VersionTo != "1.25.0" {
		t.Errorf("Tools = %+v", ev.Tools)
	}
	if len(ev.Tags) != 1 {
		t.Errorf("Tags = %+v", ev.Tags)
	}
	if string(ev.Metadata) == "" {
		t.Error("metadata should round-trip")
	}
}

func TestCreateEventHandler_Validation(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing title", map[string]any{"event_type": model.EventTypePatch, "severity": model.SeverityInfo}, "title"},
		{"blank title", map[string]any{"title": "   ", "event_type": model.EventTypePatch, "severity": model.SeverityInfo}, "title"},
		{"bad event type", map[string]any{"title": "x", "event_type": "bogus", "severity": model.SeverityInfo}, "event_type"},
		{"bad severity", map[string]any{"title": "x", "event_type": model.EventTypePatch, "severity": "loud"}, "severity"},
		{"bad source", map[string]any{"title": "x", "event_type": model.EventTypePatch, "severity": model.SeverityInfo, "source": "carrier-pigeon"}, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.request(t, http.MethodPost, "/api/v1/events", ts.adminKey, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			detail := decodeError(t, resp)
			if _, ok := detail.Details[tt.field]; !ok {
				t.Errorf("details = %v, want field %q", detail.Details, tt.field)
			}
		})
	}
}

func TestCreateEventHandler_MissingReference(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	resp := ts.request(t, http.MethodPost, "/api/v1/events", ts.adminKey, map[string]any{
		"title":      "dangling",
		"event_type": model.EventTypePatch,
		"severity":   model.SeverityInfo,
		"agent_ids":  []int64{9999},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	detail := decodeError(t, resp)
	if detail.Details["agent_id"] != "9999" {
		t.Errorf("details = %v, want agent_id 9999", detail.Details)
	}
}

func TestGetEventHandler(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	created, err := ts.store.CreateEvent(context.Background(), store.EventCreate{
		Title:     "readable",
		EventType: model.EventTypePatch,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	resp := ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/events/%d", created.ID), ts.readerKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	ev := decodeData[EventResponse](t, resp)
	if ev.ID != created.ID || ev.Title != "readable" {
		t.Errorf("event = %+v", ev)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/events/99999", ts.readerKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing event status = %d, want 404", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/events/abc", ts.readerKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateEventHandler_LinkPresence(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()
	agentID, toolID, tagID := eventFixtures(t, ts)

	created, err := ts.store.CreateEvent(context.Background(), store.EventCreate{
		Title:        "linked",
		EventType:    model.EventTypeToolUpdate,
		Severity:     model.SeverityInfo,
		Source:       model.SourceManual,
		AgentIDs:     []int64{agentID},
		ToolVersions: []model.ToolVersion{{ToolID: toolID, VersionTo: "1.0"}},
		TagIDs:       []int64{tagID},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	path := fmt.Sprintf("/api/v1/events/%d", created.ID)

	// Absent link keys leave every set untouched.
	resp := ts.request(t, http.MethodPut, path, ts.adminKey, map[string]any{"title": "renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	ev := decodeData[EventResponse](t, resp)
	if ev.Title != "renamed" {
		t.Errorf("Title = %q", ev.Title)
	}
	if len(ev.Agents) != 1 || len(ev.Tools) != 1 || len(ev.Tags) != 1 {
		t.Errorf("links changed: %d/%d/%d", len(ev.Agents), len(ev.Tools), len(ev.Tags))
	}

	// An explicit empty array clears exactly that kind.
	resp = ts.request(t, http.MethodPut, path, ts.adminKey, map[string]any{"tag_ids": []int64{}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	ev = decodeData[EventResponse](t, resp)
	if len(ev.Tags) != 0 {
		t.Errorf("Tags = %+v, want empty", ev.Tags)
	}
	if len(ev.Agents) != 1 || len(ev.Tools) != 1 {
		t.Errorf("other links changed: %d/%d", len(ev.Agents), len(ev.Tools))
	}
}

func TestDeleteEventHandler(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	created, err := ts.store.CreateEvent(context.Background(), store.EventCreate{
		Title:     "doomed",
		EventType: model.EventTypePatch,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	path := fmt.Sprintf("/api/v1/events/%d", created.ID)

	resp := ts.request(t, http.MethodDelete, path, ts.adminKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodDelete, path, ts.adminKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestListEventsHandler(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	ctx := context.Background()
	for _, in := range []store.EventCreate{
		{Title: "outage", EventType: model.EventTypeOutage, Severity: model.SeverityCritical, Source: model.SourceWebhook},
		{Title: "patch", EventType: model.EventTypePatch, Severity: model.SeverityInfo, Source: model.SourceManual},
	} {
		if _, err := ts.store.CreateEvent(ctx, in); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	resp := ts.request(t, http.MethodGet, "/api/v1/events", ts.readerKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var envelope struct {
		Data []EventResponse `json:"data"`
		Meta Meta            `json:"meta"`
	}
	decodeInto(t, resp, &envelope)
	if len(envelope.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(envelope.Data))
	}
	if envelope.Meta.Total != 2 {
		t.Errorf("meta.total = %d, want 2", envelope.Meta.Total)
	}
	if envelope.Meta.Limit != store.DefaultEventLimit {
		t.Errorf("meta.limit = %d, want %d", envelope.Meta.Limit, store.DefaultEventLimit)
	}

	// Filtered listing.
	resp = ts.request(t, http.MethodGet, "/api/v1/events?event_type=outage", ts.readerKey, nil)
	decodeInto(t, resp, &envelope)
	if len(envelope.Data) != 1 || envelope.Data[0].Title != "outage" {
		t.Errorf("filtered data = %+v", envelope.Data)
	}
	if envelope.Meta.Total != 1 {
		t.Errorf("filtered meta.total = %d, want 1", envelope.Meta.Total)
	}

	// Invalid filter values are rejected, not ignored.
	for _, q := range []string{
		"?event_type=bogus",
		"?severity=loud",
		"?start=yesterday",
		"?agent_id=-2",
		"?limit=0",
		"?skip=-1",
	} {
		resp = ts.request(t, http.MethodGet, "/api/v1/events"+q, ts.readerKey, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET /events%s = %d, want 400", q, resp.StatusCode)
		}
	}
}
