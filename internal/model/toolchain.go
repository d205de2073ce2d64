// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Toolchain groups tools into a named set (for example the tools pinned
// for a release train). Membership lives in toolchain_tools.
type Toolchain struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToolchainTool links a toolchain to a tool. At most one row per
// (toolchain_id, tool_id) pair.
type ToolchainTool struct {
	ID          int64
	ToolchainID int64
	ToolID      int64
}
