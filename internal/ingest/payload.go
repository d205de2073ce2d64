// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolPayload describes one tool reported by the CI notification, with the
// version transition observed in the build.
type ToolPayload struct {
	Name            string `json:"name"`
	Version         string `json:"version,omitempty"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// BuildPayload is the typed body of an inbound CI build notification.
// JobName, BuildNumber and Status are required; everything else is
// optional context.
type BuildPayload struct {
	JobName     string          `json:"job_name"`
	BuildNumber *int64          `json:"build_number"`
	Status      string          `json:"status"`
	FullURL     string          `json:"full_url,omitempty"`
	Message     string          `json:"message,omitempty"`
	Agent       string          `json:"agent,omitempty"`
	Tools       []ToolPayload   `json:"tools,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// ParsePayload decodes and validates a raw notification body. Failures
// wrap ErrInvalidPayload.
func ParsePayload(body []byte) (*BuildPayload, error) {
	var p BuildPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.JobName == "" {
		return nil, fmt.Errorf("%w: job_name is required", ErrInvalidPayload)
	}
	if p.BuildNumber == nil {
		return nil, fmt.Errorf("%w: build_number is required", ErrInvalidPayload)
	}
	if p.Status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidPayload)
	}
	for i, tool := range p.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: tools[%d].name is required", ErrInvalidPayload, i)
		}
	}
	return &p, nil
}
