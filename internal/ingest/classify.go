// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"strings"

	"github.com/olegiv/ciledger-go/internal/model"
)

// ClassifyStatus maps a CI build status onto an event type and severity.
// Matching is case-insensitive; unrecognized statuses fall back to an
// informational config change.
func ClassifyStatus(status string) (eventType, severity string) {
	switch strings.ToLower(status) {
	case "success", "fixed", "stable":
		return model.EventTypeRollout, model.SeverityInfo
	case "failure", "failed", "broken":
		return model.EventTypeOutage, model.SeverityCritical
	case "aborted", "unstable":
		return model.EventTypeConfigChange, model.SeverityWarning
	default:
		return model.EventTypeConfigChange, model.SeverityInfo
	}
}
