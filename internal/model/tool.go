// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Tool types
const (
	ToolTypeDockerImage   = "docker_image"
	ToolTypePythonPackage = "python_package"
	ToolTypeBinary        = "binary"
	ToolTypeSDK           = "sdk"
	ToolTypeOther         = "other"
)

// Tool categories
const (
	ToolCategoryLanguageRuntime = "language_runtime"
	ToolCategoryBuildTool       = "build_tool"
	ToolCategoryContainer       = "container"
	ToolCategoryCustom          = "custom"
	ToolCategoryOther           = "other"
)

// AllToolTypes returns all valid tool types.
func AllToolTypes() []string {
	return []string{
		ToolTypeDockerImage,
		ToolTypePythonPackage,
		ToolTypeBinary,
		ToolTypeSDK,
		ToolTypeOther,
	}
}

// AllToolCategories returns all valid tool categories.
func AllToolCategories() []string {
	return []string{
		ToolCategoryLanguageRuntime,
		ToolCategoryBuildTool,
		ToolCategoryContainer,
		ToolCategoryCustom,
		ToolCategoryOther,
	}
}

// IsValidToolType reports whether t is a known tool type.
func IsValidToolType(t string) bool {
	return contains(AllToolTypes(), t)
}

// IsValidToolCategory reports whether c is a known tool category.
func IsValidToolCategory(c string) bool {
	return contains(AllToolCategories(), c)
}

// Tool represents a tracked piece of CI tooling (runtime, build tool,
// container image and so on).
type Tool struct {
	ID        int64
	Name      string
	Type      string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
