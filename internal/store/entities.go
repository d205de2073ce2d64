// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/olegiv/ciledger-go/internal/model"
)

// ErrDuplicateName is returned when an insert or rename collides with an
// existing entity name. Surfaced to API callers as a conflict.
var ErrDuplicateName = errors.New("name already exists")

const agentColumns = "id, name, vm_hostname, labels, os_type, architecture, status, created_at, updated_at"

// --- Agents ---

// AgentCreate holds the fields for a new agent.
type AgentCreate struct {
	Name         string
	VMHostname   string
	Labels       []string
	OSType       string
	Architecture string
	Status       string // defaults to active
}

// AgentUpdate is a partial agent update; nil pointers are no-ops.
type AgentUpdate struct {
	Name         *string
	VMHostname   *string
	Labels       *[]string
	OSType       *string
	Architecture *string
	Status       *string
}

// CreateAgent inserts a new agent.
func (s *Store) CreateAgent(ctx context.Context, in AgentCreate) (*model.Agent, error) {
	status := in.Status
	if status == "" {
		status = model.AgentStatusActive
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, vm_hostname, labels, os_type, architecture, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.VMHostname, model.LabelsToJSON(in.Labels), in.OSType, in.Architecture, status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetAgent(ctx, id)
}

// GetAgent returns the agent or sql.ErrNoRows.
func (s *Store) GetAgent(ctx context.Context, id int64) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	return scanAgent(row)
}

// GetAgentByName returns the agent with the exact name, or sql.ErrNoRows.
func (s *Store) GetAgentByName(ctx context.Context, name string) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE name = ?", name)
	return scanAgent(row)
}

// ListAgents returns all agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agents := make([]*model.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent applies the supplied fields. Returns sql.ErrNoRows if the
// agent does not exist.
func (s *Store) UpdateAgent(ctx context.Context, id int64, in AgentUpdate) (*model.Agent, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.VMHostname != nil {
		sets = append(sets, "vm_hostname = ?")
		args = append(args, *in.VMHostname)
	}
	if in.Labels != nil {
		sets = append(sets, "labels = ?")
		args = append(args, model.LabelsToJSON(*in.Labels))
	}
	if in.OSType != nil {
		sets = append(sets, "os_type = ?")
		args = append(args, *in.OSType)
	}
	if in.Architecture != nil {
		sets = append(sets, "architecture = ?")
		args = append(args, *in.Architecture)
	}
	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *in.Status)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE agents SET "+joinSets(sets)+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("updating agent: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetAgent(ctx, id)
}

// DeleteAgent removes the agent. Returns sql.ErrNoRows if absent.
func (s *Store) DeleteAgent(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "agents", id)
}

// ResolveAgent looks up an agent by exact name, creating one with default
// attributes on first sight. Safe under concurrent resolution of the same
// unseen name: a UNIQUE-constraint loser re-reads and returns the winner.
func (s *Store) ResolveAgent(ctx context.Context, name string) (*model.Agent, error) {
	agent, err := s.GetAgentByName(ctx, name)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	agent, err = s.CreateAgent(ctx, AgentCreate{Name: name})
	if errors.Is(err, ErrDuplicateName) {
		return s.GetAgentByName(ctx, name)
	}
	return agent, err
}

func scanAgent(r rowScanner) (*model.Agent, error) {
	var a model.Agent
	err := r.Scan(&a.ID, &a.Name, &a.VMHostname, &a.Labels, &a.OSType, &a.Architecture,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Tools ---

const toolColumns = "id, name, type, category, created_at, updated_at"

// ToolCreate holds the fields for a new tool.
type ToolCreate struct {
	Name     string
	Type     string // defaults to other
	Category string // defaults to other
}

// ToolUpdate is a partial tool update; nil pointers are no-ops.
type ToolUpdate struct {
	Name     *string
	Type     *string
	Category *string
}

// CreateTool inserts a new tool.
func (s *Store) CreateTool(ctx context.Context, in ToolCreate) (*model.Tool, error) {
	typ := in.Type
	if typ == "" {
		typ = model.ToolTypeOther
	}
	category := in.Category
	if category == "" {
		category = model.ToolCategoryOther
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tools (name, type, category, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		in.Name, typ, category, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("inserting tool: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetTool(ctx, id)
}

// GetTool returns the tool or sql.ErrNoRows.
func (s *Store) GetTool(ctx context.Context, id int64) (*model.Tool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+toolColumns+" FROM tools WHERE id = ?", id)
	return scanTool(row)
}

// GetToolByName returns the tool with the exact name, or sql.ErrNoRows.
func (s *Store) GetToolByName(ctx context.Context, name string) (*model.Tool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+toolColumns+" FROM tools WHERE name = ?", name)
	return scanTool(row)
}

// ListTools returns all tools ordered by name.
func (s *Store) ListTools(ctx context.Context) ([]*model.Tool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+toolColumns+" FROM tools ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tools := make([]*model.Tool, 0)
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// UpdateTool applies the supplied fields. Returns sql.ErrNoRows if absent.
func (s *Store) UpdateTool(ctx context.Context, id int64, in ToolUpdate) (*model.Tool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *in.Type)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE tools SET "+joinSets(sets)+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("updating tool: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetTool(ctx, id)
}

// DeleteTool removes the tool. Returns sql.ErrNoRows if absent.
func (s *Store) DeleteTool(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "tools", id)
}

// ResolveTool looks up a tool by exact name, creating one with default
// attributes on first sight. Race-safe like ResolveAgent.
func (s *Store) ResolveTool(ctx context.Context, name string) (*model.Tool, error) {
	tool, err := s.GetToolByName(ctx, name)
	if err == nil {
		return tool, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	tool, err = s.CreateTool(ctx, ToolCreate{Name: name})
	if errors.Is(err, ErrDuplicateName) {
		return s.GetToolByName(ctx, name)
	}
	return tool, err
}

func scanTool(r rowScanner) (*model.Tool, error) {
	var t model.Tool
	err := r.Scan(&t.ID, &t.Name, &t.Type, &t.Category, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Tags ---

// CreateTag inserts a new tag. Returns ErrDuplicateName on a name collision.
func (s *Store) CreateTag(ctx context.Context, name string) (*model.Tag, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO tags (name) VALUES (?)", name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("inserting tag: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.Tag{ID: id, Name: name}, nil
}

// GetTag returns the tag or sql.ErrNoRows.
func (s *Store) GetTag(ctx context.Context, id int64) (*model.Tag, error) {
	var t model.Tag
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM tags WHERE id = ?", id).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTagByName returns the tag with the exact name, or sql.ErrNoRows.
func (s *Store) GetTagByName(ctx context.Context, name string) (*model.Tag, error) {
	var t model.Tag
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM tags WHERE name = ?", name).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := make([]*model.Tag, 0)
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// DeleteTag removes the tag. Returns sql.ErrNoRows if absent.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "tags", id)
}

// ResolveTag looks up a tag by exact name, creating it on first sight.
// Tag names carry a database uniqueness constraint, so a losing racer
// re-reads and returns the winner.
func (s *Store) ResolveTag(ctx context.Context, name string) (*model.Tag, error) {
	tag, err := s.GetTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	tag, err = s.CreateTag(ctx, name)
	if errors.Is(err, ErrDuplicateName) {
		return s.GetTagByName(ctx, name)
	}
	return tag, err
}

// --- Toolchains ---

const toolchainColumns = "id, name, description, created_at, updated_at"

// ToolchainCreate holds the fields for a new toolchain.
type ToolchainCreate struct {
	Name        string
	Description string
}

// ToolchainUpdate is a partial toolchain update; nil pointers are no-ops.
type ToolchainUpdate struct {
	Name        *string
	Description *string
}

// CreateToolchain inserts a new toolchain.
func (s *Store) CreateToolchain(ctx context.Context, in ToolchainCreate) (*model.Toolchain, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO toolchains (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)",
		in.Name, in.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting toolchain: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetToolchain(ctx, id)
}

// GetToolchain returns the toolchain or sql.ErrNoRows.
func (s *Store) GetToolchain(ctx context.Context, id int64) (*model.Toolchain, error) {
	var tc model.Toolchain
	err := s.db.QueryRowContext(ctx, "SELECT "+toolchainColumns+" FROM toolchains WHERE id = ?", id).
		Scan(&tc.ID, &tc.Name, &tc.Description, &tc.CreatedAt, &tc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

// ListToolchains returns all toolchains ordered by name.
func (s *Store) ListToolchains(ctx context.Context) ([]*model.Toolchain, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+toolchainColumns+" FROM toolchains ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing toolchains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	toolchains := make([]*model.Toolchain, 0)
	for rows.Next() {
		var tc model.Toolchain
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Description, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
			return nil, err
		}
		toolchains = append(toolchains, &tc)
	}
	return toolchains, rows.Err()
}

// UpdateToolchain applies the supplied fields. Returns sql.ErrNoRows if absent.
func (s *Store) UpdateToolchain(ctx context.Context, id int64, in ToolchainUpdate) (*model.Toolchain, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE toolchains SET "+joinSets(sets)+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating toolchain: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetToolchain(ctx, id)
}

// DeleteToolchain removes the toolchain; membership rows cascade.
func (s *Store) DeleteToolchain(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "toolchains", id)
}

// ListToolchainTools returns the tools belonging to a toolchain.
func (s *Store) ListToolchainTools(ctx context.Context, toolchainID int64) ([]*model.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.type, t.category, t.created_at, t.updated_at
		 FROM tools t
		 JOIN toolchain_tools tt ON tt.tool_id = t.id
		 WHERE tt.toolchain_id = ?
		 ORDER BY tt.id`, toolchainID)
	if err != nil {
		return nil, fmt.Errorf("listing toolchain tools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tools := make([]*model.Tool, 0)
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// SetToolchainTools replaces the toolchain's membership with the desired
// tool set, using the same replace-all semantics as event link sets. Every
// tool id is validated before any row is touched.
func (s *Store) SetToolchainTools(ctx context.Context, toolchainID int64, toolIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM toolchains WHERE id = ?", toolchainID).Scan(&existing); err != nil {
		return err
	}
	for _, toolID := range toolIDs {
		if err := refExists(ctx, tx, "tools", "tool", toolID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM toolchain_tools WHERE toolchain_id = ?", toolchainID); err != nil {
		return fmt.Errorf("clearing toolchain tools: %w", err)
	}
	for _, toolID := range dedupeIDs(toolIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO toolchain_tools (toolchain_id, tool_id) VALUES (?, ?)", toolchainID, toolID); err != nil {
			return fmt.Errorf("adding tool %d: %w", toolID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
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
