// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Tag is a free-form label attached to events. Names are globally unique.
type Tag struct {
	ID   int64
	Name string
}
