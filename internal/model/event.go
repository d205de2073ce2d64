// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain models and types used throughout the application.
package model

import "time"

// Event types
const (
	EventTypeToolInstall  = "tool_install"
	EventTypeToolUpdate   = "tool_update"
	EventTypeToolRemoval  = "tool_removal"
	EventTypeOutage       = "outage"
	EventTypePatch        = "patch"
	EventTypeRollout      = "rollout"
	EventTypeConfigChange = "config_change"
)

// Event severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event sources
const (
	SourceManual    = "manual"
	SourceAutomated = "automated"
	SourceWebhook   = "webhook"
)

// AllEventTypes returns all valid event types.
func AllEventTypes() []string {
	return []string{
		EventTypeToolInstall,
		EventTypeToolUpdate,
		EventTypeToolRemoval,
		EventTypeOutage,
		EventTypePatch,
		EventTypeRollout,
		EventTypeConfigChange,
	}
}

// AllSeverities returns all valid severities.
func AllSeverities() []string {
	return []string{SeverityInfo, SeverityWarning, SeverityCritical}
}

// AllSources returns all valid event sources.
func AllSources() []string {
	return []string{SourceManual, SourceAutomated, SourceWebhook}
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t string) bool {
	return contains(AllEventTypes(), t)
}

// IsValidSeverity reports whether s is a known severity.
func IsValidSeverity(s string) bool {
	return contains(AllSeverities(), s)
}

// IsValidSource reports whether s is a known event source.
func IsValidSource(s string) bool {
	return contains(AllSources(), s)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Event is a timestamped, typed record of a CI infrastructure change.
// Metadata holds an opaque JSON payload preserved for auditing.
type Event struct {
	ID          int64
	Title       string
	Description string
	Timestamp   time.Time
	EventType   string
	Severity    string
	Source      string
	Metadata    string // JSON string, "" when absent
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventAgent links an event to an agent. At most one row per
// (event_id, agent_id) pair.
type EventAgent struct {
	ID      int64
	EventID int64
	AgentID int64
}

// EventTool links an event to a tool, optionally carrying the version
// transition observed in that event. At most one row per
// (event_id, tool_id) pair.
type EventTool struct {
	ID          int64
	EventID     int64
	ToolID      int64
	VersionFrom string
	VersionTo   string
}

// EventTag links an event to a tag. At most one row per
// (event_id, tag_id) pair.
type EventTag struct {
	ID      int64
	EventID int64
	TagID   int64
}

// ToolVersion is a caller-supplied tool link entry: the tool id plus the
// version transition to record for the event.
type ToolVersion struct {
	ToolID      int64  `json:"tool_id"`
	VersionFrom string `json:"version_from,omitempty"`
	VersionTo   string `json:"version_to,omitempty"`
}

// AgentSummary is the relation summary attached to event read models.
type AgentSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ToolSummary is the tool relation summary attached to event read models,
// carrying the link row's version transition.
type ToolSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	VersionFrom string `json:"version_from,omitempty"`
	VersionTo   string `json:"version_to,omitempty"`
}

// TagSummary is the tag relation summary attached to event read models.
type TagSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EventWithRelations is the fixed read model for an event: the event row
// plus its relation summaries. Relations are always non-nil slices so the
// JSON shape is stable.
type EventWithRelations struct {
	Event
	Agents []AgentSummary
	Tools  []ToolSummary
	Tags   []TagSummary
}
