// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "testing"

func TestIsValidEventType(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"rollout", EventTypeRollout, true},
		{"outage", EventTypeOutage, true},
		{"config change", EventTypeConfigChange, true},
		{"tool install", EventTypeToolInstall, true},
		{"unknown value", "deploy", false},
		{"empty", "", false},
		{"case sensitive", "Outage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidEventType(tt.value); got != tt.want {
				t.Errorf("IsValidEventType(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestIsValidSeverity(t *testing.T) {
	for _, s := range AllSeverities() {
		if !IsValidSeverity(s) {
			t.Errorf("IsValidSeverity(%q) = false, want true", s)
		}
	}
	if IsValidSeverity("fatal") {
		t.Error("IsValidSeverity(\"fatal\") = true, want false")
	}
}

func TestIsValidSource(t *testing.T) {
	for _, s := range AllSources() {
		if !IsValidSource(s) {
			t.Errorf("IsValidSource(%q) = false, want true", s)
		}
	}
	if IsValidSource("poller") {
		t.Error("IsValidSource(\"poller\") = true, want false")
	}
}

func TestIsValidAgentStatus(t *testing.T) {
	for _, s := range AllAgentStatuses() {
		if !IsValidAgentStatus(s) {
			t.Errorf("IsValidAgentStatus(%q) = false, want true", s)
		}
	}
	if IsValidAgentStatus("retired") {
		t.Error("IsValidAgentStatus(\"retired\") = true, want false")
	}
}

func TestAgentLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"empty", nil, "[]"},
		{"single", []string{"linux"}, `["linux"]`},
		{"multiple", []string{"linux", "amd64"}, `["linux","amd64"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Agent
			a.SetLabels(tt.labels)
			if a.Labels != tt.want {
				t.Errorf("SetLabels(%v): Labels = %q, want %q", tt.labels, a.Labels, tt.want)
			}
			got := a.GetLabels()
			if len(got) != len(tt.labels) {
				t.Fatalf("GetLabels() = %v, want %v", got, tt.labels)
			}
			for i := range got {
				if got[i] != tt.labels[i] {
					t.Errorf("GetLabels()[%d] = %q, want %q", i, got[i], tt.labels[i])
				}
			}
		})
	}
}
