// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ciledger-go/internal/model"
)

// fixtures creates one agent, two tools and one tag for link tests.
func fixtures(t *testing.T, s *Store) (agentID, tool1ID, tool2ID, tagID int64) {
	t.Helper()
	ctx := context.Background()

	agent, err := s.CreateAgent(ctx, AgentCreate{Name: "build-01"})
	require.NoError(t, err)
	tool1, err := s.CreateTool(ctx, ToolCreate{Name: "go", Type: model.ToolTypeBinary, Category: model.ToolCategoryLanguageRuntime})
	require.NoError(t, err)
	tool2, err := s.CreateTool(ctx, ToolCreate{Name: "docker", Type: model.ToolTypeBinary, Category: model.ToolCategoryContainer})
	require.NoError(t, err)
	tag, err := s.CreateTag(ctx, "production")
	require.NoError(t, err)

	return agent.ID, tool1.ID, tool2.ID, tag.ID
}

func TestCreateEvent_WithLinks(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	agentID, tool1ID, _, tagID := fixtures(t, s)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:     "go upgraded",
		EventType: model.EventTypeToolUpdate,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
		AgentIDs:  []int64{agentID},
		ToolVersions: []model.ToolVersion{
			{ToolID: tool1ID, VersionFrom: "1.24.0", VersionTo: "1.25.0"},
		},
		TagIDs: []int64{tagID},
	})
	require.NoError(t, err)

	assert.NotZero(t, ev.ID)
	assert.Equal(t, "go upgraded", ev.Title)
	assert.False(t, ev.Timestamp.IsZero())

	require.Len(t, ev.Agents, 1)
	assert.Equal(t, "build-01", ev.Agents[0].Name)
	require.Len(t, ev.Tools, 1)
	assert.Equal(t, "go", ev.Tools[0].Name)
	assert.Equal(t, "1.24.0", ev.Tools[0].VersionFrom)
	assert.Equal(t, "1.25.0", ev.Tools[0].VersionTo)
	require.Len(t, ev.Tags, 1)
	assert.Equal(t, "production", ev.Tags[0].Name)
}

func TestCreateEvent_NoLinks(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:     "maintenance window",
		EventType: model.EventTypeConfigChange,
		Severity:  model.SeverityWarning,
		Source:    model.SourceManual,
	})
	require.NoError(t, err)

	// Relations must be empty slices, not nil, so JSON stays stable.
	assert.NotNil(t, ev.Agents)
	assert.NotNil(t, ev.Tools)
	assert.NotNil(t, ev.Tags)
	assert.Empty(t, ev.Agents)
	assert.Empty(t, ev.Tools)
	assert.Empty(t, ev.Tags)
}

func TestCreateEvent_MissingReference(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)

	_, err := s.CreateEvent(ctx, EventCreate{
		Title:     "bad link",
		EventType: model.EventTypePatch,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
		AgentIDs:  []int64{9999},
	})
	require.Error(t, err)

	var missing *MissingReferenceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "agent", missing.Kind)
	assert.Equal(t, int64(9999), missing.ID)

	// The failed create must leave no event behind.
	count, err := s.CountEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateEvent_DuplicateToolLastWins(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	_, tool1ID, _, _ := fixtures(t, s)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:     "double entry",
		EventType: model.EventTypeToolUpdate,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
		ToolVersions: []model.ToolVersion{
			{ToolID: tool1ID, VersionTo: "1.0.0"},
			{ToolID: tool1ID, VersionTo: "2.0.0"},
		},
	})
	require.NoError(t, err)

	require.Len(t, ev.Tools, 1)
	assert.Equal(t, "2.0.0", ev.Tools[0].VersionTo)
}

func TestUpdateEvent_Scalars(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:     "original",
		EventType: model.EventTypePatch,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
	})
	require.NoError(t, err)

	title := "renamed"
	severity := model.SeverityCritical
	updated, err := s.UpdateEvent(ctx, ev.ID, EventUpdate{
		Title:    &title,
		Severity: &severity,
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, model.SeverityCritical, updated.Severity)
	// Untouched fields survive.
	assert.Equal(t, model.EventTypePatch, updated.EventType)
	assert.Equal(t, model.SourceManual, updated.Source)
}

func TestUpdateEvent_LinkPresence(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	agentID, tool1ID, tool2ID, tagID := fixtures(t, s)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:        "linked",
		EventType:    model.EventTypeToolUpdate,
		Severity:     model.SeverityInfo,
		Source:       model.SourceManual,
		AgentIDs:     []int64{agentID},
		ToolVersions: []model.ToolVersion{{ToolID: tool1ID, VersionTo: "1.0.0"}},
		TagIDs:       []int64{tagID},
	})
	require.NoError(t, err)

	// An update without link fields leaves every link set alone.
	title := "still linked"
	updated, err := s.UpdateEvent(ctx, ev.ID, EventUpdate{Title: &title})
	require.NoError(t, err)
	assert.Len(t, updated.Agents, 1)
	assert.Len(t, updated.Tools, 1)
	assert.Len(t, updated.Tags, 1)

	// A present empty set clears that kind and only that kind.
	empty := []int64{}
	updated, err = s.UpdateEvent(ctx, ev.ID, EventUpdate{AgentIDs: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.Agents)
	assert.Len(t, updated.Tools, 1)
	assert.Len(t, updated.Tags, 1)

	// A present non-empty set replaces the previous rows wholesale.
	tools := []model.ToolVersion{{ToolID: tool2ID, VersionTo: "27.0"}}
	updated, err = s.UpdateEvent(ctx, ev.ID, EventUpdate{ToolVersions: &tools})
	require.NoError(t, err)
	require.Len(t, updated.Tools, 1)
	assert.Equal(t, "docker", updated.Tools[0].Name)
	assert.Equal(t, "27.0", updated.Tools[0].VersionTo)
}

func TestUpdateEvent_NotFound(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)

	title := "ghost"
	_, err := s.UpdateEvent(ctx, 12345, EventUpdate{Title: &title})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateEvent_MissingReferenceKeepsLinks(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	agentID, _, _, _ := fixtures(t, s)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:     "stable",
		EventType: model.EventTypePatch,
		Severity:  model.SeverityInfo,
		Source:    model.SourceManual,
		AgentIDs:  []int64{agentID},
	})
	require.NoError(t, err)

	bad := []int64{404}
	_, err = s.UpdateEvent(ctx, ev.ID, EventUpdate{AgentIDs: &bad})
	var missing *MissingReferenceError
	require.ErrorAs(t, err, &missing)

	// The rejected update rolls back; the old link survives.
	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, got.Agents, 1)
}

func TestDeleteEvent_CascadesLinks(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	agentID, tool1ID, _, tagID := fixtures(t, s)

	ev, err := s.CreateEvent(ctx, EventCreate{
		Title:        "doomed",
		EventType:    model.EventTypeToolRemoval,
		Severity:     model.SeverityInfo,
		Source:       model.SourceManual,
		AgentIDs:     []int64{agentID},
		ToolVersions: []model.ToolVersion{{ToolID: tool1ID}},
		TagIDs:       []int64{tagID},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, ev.ID))

	_, err = s.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	for _, table := range []string{"event_agents", "event_tools", "event_tags"} {
		var n int64
		err := db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE event_id = ?", ev.ID).Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}

	// The referenced entities themselves are untouched.
	_, err = s.GetAgent(ctx, agentID)
	assert.NoError(t, err)
}

func TestDeleteEvent_NotFound(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	s := New(db)
	err := s.DeleteEvent(context.Background(), 999)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

// seedListEvents creates a spread of events for filter tests and returns
// their ids keyed by title.
func seedListEvents(t *testing.T, s *Store, agentID, toolID int64) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := make(map[string]int64)
	create := func(title string, ts time.Time, eventType, severity, source string, agents []int64, tools []model.ToolVersion) {
		ev, err := s.CreateEvent(ctx, EventCreate{
			Title:        title,
			Timestamp:    ts,
			EventType:    eventType,
			Severity:     severity,
			Source:       source,
			AgentIDs:     agents,
			ToolVersions: tools,
		})
		require.NoError(t, err)
		ids[title] = ev.ID
	}

	create("alpha outage", base, model.EventTypeOutage, model.SeverityCritical, model.SourceWebhook,
		[]int64{agentID}, nil)
	create("beta rollout", base.Add(time.Hour), model.EventTypeRollout, model.SeverityInfo, model.SourceWebhook,
		nil, []model.ToolVersion{{ToolID: toolID, VersionTo: "2.0"}})
	create("gamma patch", base.Add(2*time.Hour), model.EventTypePatch, model.SeverityWarning, model.SourceManual,
		nil, nil)
	create("delta 100% done", base.Add(3*time.Hour), model.EventTypeConfigChange, model.SeverityInfo, model.SourceManual,
		nil, nil)
	return ids
}

func TestListEvents_Filters(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	agentID, toolID, _, _ := fixtures(t, s)
	ids := seedListEvents(t, s, agentID, toolID)

	titles := func(events []*model.EventWithRelations) []string {
		out := make([]string, 0, len(events))
		for _, ev := range events {
			out = append(out, ev.Title)
		}
		return out
	}

	// No filter: newest first.
	all, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"delta 100% done", "gamma patch", "beta rollout", "alpha outage"}, titles(all))

	// Event type.
	got, err := s.ListEvents(ctx, EventFilter{EventType: model.EventTypeOutage})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha outage"}, titles(got))

	// Severity + source combine conjunctively.
	got, err = s.ListEvents(ctx, EventFilter{Severity: model.SeverityInfo, Source: model.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, []string{"delta 100% done"}, titles(got))

	// Agent and tool membership.
	got, err = s.ListEvents(ctx, EventFilter{AgentID: agentID})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha outage"}, titles(got))

	got, err = s.ListEvents(ctx, EventFilter{ToolID: toolID})
	require.NoError(t, err)
	assert.Equal(t, []string{"beta rollout"}, titles(got))

	// Time window is inclusive on both ends.
	start := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	got, err = s.ListEvents(ctx, EventFilter{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma patch", "beta rollout"}, titles(got))

	// Substring search over title and description.
	got, err = s.ListEvents(ctx, EventFilter{Search: "GAMMA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma patch"}, titles(got))

	// LIKE metacharacters in search text are literal.
	got, err = s.ListEvents(ctx, EventFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"delta 100% done"}, titles(got))

	got, err = s.ListEvents(ctx, EventFilter{Search: "100_"})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Count honors the same filter.
	total, err := s.CountEvents(ctx, EventFilter{Source: model.SourceWebhook})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_ = ids
}

func TestListEvents_TimestampTieBreak(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var ids []int64
	for _, title := range []string{"first", "second", "third"} {
		ev, err := s.CreateEvent(ctx, EventCreate{
			Title:     title,
			Timestamp: ts,
			EventType: model.EventTypePatch,
			Severity:  model.SeverityInfo,
			Source:    model.SourceManual,
		})
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	// Equal timestamps order by ascending id, so pagination is stable.
	got, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, ids[i], ev.ID)
	}
}

func TestListEvents_Pagination(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	s := New(db)
	base := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.CreateEvent(ctx, EventCreate{
			Title:     "page item",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			EventType: model.EventTypePatch,
			Severity:  model.SeverityInfo,
			Source:    model.SourceManual,
		})
		require.NoError(t, err)
	}

	page1, err := s.ListEvents(ctx, EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := s.ListEvents(ctx, EventFilter{Limit: 2, Skip: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)

	page3, err := s.ListEvents(ctx, EventFilter{Limit: 2, Skip: 4})
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	// Limits above the cap clamp instead of failing.
	over, err := s.ListEvents(ctx, EventFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, over, 5)
}
