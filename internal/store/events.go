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

// Listing limits
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 200
)

const eventColumns = "id, title, description, timestamp, event_type, severity, source, metadata, created_at, updated_at"

// EventCreate holds the fields and link sets for a new event. Link sets use
// replace-all semantics; a nil slice and an empty slice are equivalent on
// create since there is nothing to replace.
type EventCreate struct {
	Title        string
	Description  string
	Timestamp    time.Time // zero value defaults to now
	EventType    string
	Severity     string
	Source       string
	Metadata     string
	AgentIDs     []int64
	ToolVersions []model.ToolVersion
	TagIDs       []int64
}

// EventUpdate holds a partial update. Nil pointers are no-ops; a non-nil
// pointer to an empty link slice clears that link kind.
type EventUpdate struct {
	Title        *string
	Description  *string
	Timestamp    *time.Time
	EventType    *string
	Severity     *string
	Source       *string
	Metadata     *string
	AgentIDs     *[]int64
	ToolVersions *[]model.ToolVersion
	TagIDs       *[]int64
}

// EventFilter selects events for listing. Zero values mean "no filter";
// all supplied filters combine with AND.
type EventFilter struct {
	Start     *time.Time // inclusive lower bound on timestamp
	End       *time.Time // inclusive upper bound on timestamp
	AgentID   int64      // events with at least one link to this agent
	ToolID    int64      // events with at least one link to this tool
	EventType string
	Severity  string
	Source    string
	Search    string // case-insensitive substring over title or description
	Skip      int
	Limit     int
}

// CreateEvent inserts an event row together with its link sets in one
// transaction. Every referenced id is validated before any row is written.
func (s *Store) CreateEvent(ctx context.Context, in EventCreate) (*model.EventWithRelations, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := validateLinkRefs(ctx, tx, in.AgentIDs, in.ToolVersions, in.TagIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (title, description, timestamp, event_type, severity, source, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, ts, in.EventType, in.Severity, in.Source, in.Metadata, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading event id: %w", err)
	}

	if len(in.AgentIDs) > 0 {
		if err := syncEventAgents(ctx, tx, id, in.AgentIDs); err != nil {
			return nil, err
		}
	}
	if len(in.ToolVersions) > 0 {
		if err := syncEventTools(ctx, tx, id, in.ToolVersions); err != nil {
			return nil, err
		}
	}
	if len(in.TagIDs) > 0 {
		if err := syncEventTags(ctx, tx, id, in.TagIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event create: %w", err)
	}

	return s.GetEvent(ctx, id)
}

// UpdateEvent applies a partial update: only supplied scalar fields are
// written and only supplied link kinds are re-synchronized, all in one
// transaction. Returns sql.ErrNoRows if the event does not exist.
func (s *Store) UpdateEvent(ctx context.Context, id int64, in EventUpdate) (*model.EventWithRelations, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM events WHERE id = ?", id).Scan(&existing); err != nil {
		return nil, err
	}

	var agentIDs []int64
	var toolVersions []model.ToolVersion
	var tagIDs []int64
	if in.AgentIDs != nil {
		agentIDs = *in.AgentIDs
	}
	if in.ToolVersions != nil {
		toolVersions = *in.ToolVersions
	}
	if in.TagIDs != nil {
		tagIDs = *in.TagIDs
	}
	if err := validateLinkRefs(ctx, tx, agentIDs, toolVersions, tagIDs); err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	addSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if in.Title != nil {
		addSet("title", *in.Title)
	}
	if in.Description != nil {
		addSet("description", *in.Description)
	}
	if in.Timestamp != nil {
		addSet("timestamp", *in.Timestamp)
	}
	if in.EventType != nil {
		addSet("event_type", *in.EventType)
	}
	if in.Severity != nil {
		addSet("severity", *in.Severity)
	}
	if in.Source != nil {
		addSet("source", *in.Source)
	}
	if in.Metadata != nil {
		addSet("metadata", *in.Metadata)
	}

	query := "UPDATE events SET " + joinSets(sets) + " WHERE id = ?"
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("updating event: %w", err)
	}

	// Presence, not truthiness, triggers a re-sync: an explicit empty list
	// clears the kind, an absent key leaves it untouched.
	if in.AgentIDs != nil {
		if err := syncEventAgents(ctx, tx, id, *in.AgentIDs); err != nil {
			return nil, err
		}
	}
	if in.ToolVersions != nil {
		if err := syncEventTools(ctx, tx, id, *in.ToolVersions); err != nil {
			return nil, err
		}
	}
	if in.TagIDs != nil {
		if err := syncEventTags(ctx, tx, id, *in.TagIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event update: %w", err)
	}

	return s.GetEvent(ctx, id)
}

// DeleteEvent removes the event row. Link rows go with it via ON DELETE
// CASCADE. Returns sql.ErrNoRows if the event does not exist.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetEvent returns the event with its relation summaries, or sql.ErrNoRows.
func (s *Store) GetEvent(ctx context.Context, id int64) (*model.EventWithRelations, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}

	hydrated := []*model.EventWithRelations{{Event: ev}}
	if err := s.attachRelations(ctx, hydrated); err != nil {
		return nil, err
	}
	return hydrated[0], nil
}

// ListEvents returns the filtered, ordered event page with relation
// summaries attached. Ordering is timestamp descending with ascending id as
// the tie-break so pagination is deterministic.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]*model.EventWithRelations, error) {
	where, args := buildEventFilter(f)

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	query := "SELECT " + eventColumns + " FROM events e" + where +
		" ORDER BY e.timestamp DESC, e.id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*model.EventWithRelations, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, &model.EventWithRelations{Event: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning events: %w", err)
	}

	if err := s.attachRelations(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountEvents returns the number of events matching the filter.
func (s *Store) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	where, args := buildEventFilter(f)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// buildEventFilter composes the conjunctive WHERE clause for a filter.
func buildEventFilter(f EventFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Start != nil {
		conds = append(conds, "e.timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "e.timestamp <= ?")
		args = append(args, *f.End)
	}
	if f.AgentID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM event_agents ea WHERE ea.event_id = e.id AND ea.agent_id = ?)")
		args = append(args, f.AgentID)
	}
	if f.ToolID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM event_tools et WHERE et.event_id = e.id AND et.tool_id = ?)")
		args = append(args, f.ToolID)
	}
	if f.EventType != "" {
		conds = append(conds, "e.event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Severity != "" {
		conds = append(conds, "e.severity = ?")
		args = append(args, f.Severity)
	}
	if f.Source != "" {
		conds = append(conds, "e.source = ?")
		args = append(args, f.Source)
	}
	if f.Search != "" {
		conds = append(conds, "(e.title LIKE ? ESCAPE '\\' OR e.description LIKE ? ESCAPE '\\')")
		like := "%" + escapeLike(f.Search) + "%"
		args = append(args, like, like)
	}

	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

// escapeLike escapes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	r := ""
	for _, c := range s {
		switch c {
		case '%', '_', '\\':
			r += "\\" + string(c)
		default:
			r += string(c)
		}
	}
	return r
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var ev model.Event
	err := r.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Timestamp, &ev.EventType,
		&ev.Severity, &ev.Source, &ev.Metadata, &ev.CreatedAt, &ev.UpdatedAt)
	return ev, err
}

// validateLinkRefs checks that every referenced agent, tool, and tag exists
// before any mutation. All validation happens first so a failure leaves the
// store untouched.
func validateLinkRefs(ctx context.Context, q dbtx, agentIDs []int64, toolVersions []model.ToolVersion, tagIDs []int64) error {
	for _, agentID := range agentIDs {
		if err := refExists(ctx, q, "agents", "agent", agentID); err != nil {
			return err
		}
	}
	for _, tv := range toolVersions {
		if err := refExists(ctx, q, "tools", "tool", tv.ToolID); err != nil {
			return err
		}
	}
	for _, tagID := range tagIDs {
		if err := refExists(ctx, q, "tags", "tag", tagID); err != nil {
			return err
		}
	}
	return nil
}

func refExists(ctx context.Context, q dbtx, table, kind string, id int64) error {
	var found int64
	err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = ?", id).Scan(&found)
	if err == sql.ErrNoRows {
		return &MissingReferenceError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("checking %s %d: %w", kind, id, err)
	}
	return nil
}

// syncEventAgents replaces the event's agent link set: every existing row
// is deleted, then one row is inserted per desired agent. Duplicate entries
// in the desired set collapse to one link.
func syncEventAgents(ctx context.Context, tx *sql.Tx, eventID int64, agentIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_agents WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("clearing agent links: %w", err)
	}
	for _, agentID := range dedupeIDs(agentIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_agents (event_id, agent_id) VALUES (?, ?)", eventID, agentID); err != nil {
			return fmt.Errorf("linking agent %d: %w", agentID, err)
		}
	}
	return nil
}

// syncEventTools replaces the event's tool link set. At most one
// version-transition row survives per (event, tool) pair; the last entry
// for a tool wins.
func syncEventTools(ctx context.Context, tx *sql.Tx, eventID int64, toolVersions []model.ToolVersion) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tools WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("clearing tool links: %w", err)
	}
	byTool := make(map[int64]model.ToolVersion, len(toolVersions))
	order := make([]int64, 0, len(toolVersions))
	for _, tv := range toolVersions {
		if _, seen := byTool[tv.ToolID]; !seen {
			order = append(order, tv.ToolID)
		}
		byTool[tv.ToolID] = tv
	}
	for _, toolID := range order {
		tv := byTool[toolID]
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_tools (event_id, tool_id, version_from, version_to) VALUES (?, ?, ?, ?)",
			eventID, tv.ToolID, tv.VersionFrom, tv.VersionTo); err != nil {
			return fmt.Errorf("linking tool %d: %w", tv.ToolID, err)
		}
	}
	return nil
}

// syncEventTags replaces the event's tag link set.
func syncEventTags(ctx context.Context, tx *sql.Tx, eventID int64, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("clearing tag links: %w", err)
	}
	for _, tagID := range dedupeIDs(tagIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_tags (event_id, tag_id) VALUES (?, ?)", eventID, tagID); err != nil {
			return fmt.Errorf("linking tag %d: %w", tagID, err)
		}
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// attachRelations batch-loads link rows and referenced entities for the
// page and fills in the relation summaries. Two queries per kind, no
// per-event lookups.
func (s *Store) attachRelations(ctx context.Context, events []*model.EventWithRelations) error {
	for _, ev := range events {
		ev.Agents = make([]model.AgentSummary, 0)
		ev.Tools = make([]model.ToolSummary, 0)
		ev.Tags = make([]model.TagSummary, 0)
	}
	if len(events) == 0 {
		return nil
	}

	byID := make(map[int64]*model.EventWithRelations, len(events))
	eventIDs := make([]int64, 0, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
		eventIDs = append(eventIDs, ev.ID)
	}
	ph := placeholders(len(eventIDs))
	args := int64Args(eventIDs)

	// Agents
	agentLinks, err := s.queryAgentLinks(ctx, ph, args)
	if err != nil {
		return err
	}
	agentNames, err := s.entityNames(ctx, "agents", collectIDs(agentLinks, func(l model.EventAgent) int64 { return l.AgentID }))
	if err != nil {
		return err
	}
	for _, link := range agentLinks {
		ev := byID[link.EventID]
		name, ok := agentNames[link.AgentID]
		if ev == nil || !ok {
			continue
		}
		ev.Agents = append(ev.Agents, model.AgentSummary{ID: link.AgentID, Name: name})
	}

	// Tools
	toolLinks, err := s.queryToolLinks(ctx, ph, args)
	if err != nil {
		return err
	}
	toolNames, err := s.entityNames(ctx, "tools", collectIDs(toolLinks, func(l model.EventTool) int64 { return l.ToolID }))
	if err != nil {
		return err
	}
	for _, link := range toolLinks {
		ev := byID[link.EventID]
		name, ok := toolNames[link.ToolID]
		if ev == nil || !ok {
			continue
		}
		ev.Tools = append(ev.Tools, model.ToolSummary{
			ID:          link.ToolID,
			Name:        name,
			VersionFrom: link.VersionFrom,
			VersionTo:   link.VersionTo,
		})
	}

	// Tags
	tagLinks, err := s.queryTagLinks(ctx, ph, args)
	if err != nil {
		return err
	}
	tagNames, err := s.entityNames(ctx, "tags", collectIDs(tagLinks, func(l model.EventTag) int64 { return l.TagID }))
	if err != nil {
		return err
	}
	for _, link := range tagLinks {
		ev := byID[link.EventID]
		name, ok := tagNames[link.TagID]
		if ev == nil || !ok {
			continue
		}
		ev.Tags = append(ev.Tags, model.TagSummary{ID: link.TagID, Name: name})
	}

	return nil
}

func (s *Store) queryAgentLinks(ctx context.Context, ph string, args []any) ([]model.EventAgent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, agent_id FROM event_agents WHERE event_id IN ("+ph+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("loading agent links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.EventAgent
	for rows.Next() {
		var l model.EventAgent
		if err := rows.Scan(&l.ID, &l.EventID, &l.AgentID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) queryToolLinks(ctx context.Context, ph string, args []any) ([]model.EventTool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, tool_id, version_from, version_to FROM event_tools WHERE event_id IN ("+ph+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("loading tool links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.EventTool
	for rows.Next() {
		var l model.EventTool
		if err := rows.Scan(&l.ID, &l.EventID, &l.ToolID, &l.VersionFrom, &l.VersionTo); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) queryTagLinks(ctx context.Context, ph string, args []any) ([]model.EventTag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, tag_id FROM event_tags WHERE event_id IN ("+ph+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("loading tag links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.EventTag
	for rows.Next() {
		var l model.EventTag
		if err := rows.Scan(&l.ID, &l.EventID, &l.TagID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// entityNames loads id -> name for the given table restricted to ids.
func (s *Store) entityNames(ctx context.Context, table string, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name FROM "+table+" WHERE id IN ("+placeholders(len(ids))+")", int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("loading %s names: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func collectIDs[T any](links []T, pick func(T) int64) []int64 {
	seen := make(map[int64]struct{}, len(links))
	out := make([]int64, 0, len(links))
	for _, l := range links {
		id := pick(l)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
