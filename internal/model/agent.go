// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"
)

// Agent statuses
const (
	AgentStatusActive      = "active"
	AgentStatusInactive    = "inactive"
	AgentStatusMaintenance = "maintenance"
)

// AllAgentStatuses returns all valid agent statuses.
func AllAgentStatuses() []string {
	return []string{AgentStatusActive, AgentStatusInactive, AgentStatusMaintenance}
}

// IsValidAgentStatus reports whether s is a known agent status.
func IsValidAgentStatus(s string) bool {
	return contains(AllAgentStatuses(), s)
}

// Agent represents a CI build agent. Name is conventionally treated as the
// lookup key for webhook resolution.
type Agent struct {
	ID           int64
	Name         string
	VMHostname   string
	Labels       string // JSON array stored as string
	OSType       string
	Architecture string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetLabels parses the JSON labels string into a slice.
func (a *Agent) GetLabels() []string {
	var labels []string
	if a.Labels == "" || a.Labels == "[]" {
		return labels
	}
	_ = json.Unmarshal([]byte(a.Labels), &labels)
	return labels
}

// SetLabels sets the labels from a slice to JSON string.
func (a *Agent) SetLabels(labels []string) {
	a.Labels = LabelsToJSON(labels)
}

// LabelsToJSON converts a slice of labels to a JSON string.
func LabelsToJSON(labels []string) string {
	if len(labels) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(labels)
	return string(data)
}
