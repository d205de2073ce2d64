// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/ciledger-go/internal/model"
	"github.com/olegiv/ciledger-go/internal/store"
)

// --- Agents ---

// AgentResponse is the JSON shape for an agent.
type AgentResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	VMHostname   string    `json:"vm_hostname,omitempty"`
	Labels       []string  `json:"labels"`
	OSType       string    `json:"os_type,omitempty"`
	Architecture string    `json:"architecture,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func agentResponse(a *model.Agent) AgentResponse {
	labels := a.GetLabels()
	if labels == nil {
		labels = []string{}
	}
	return AgentResponse{
		ID:           a.ID,
		Name:         a.Name,
		VMHostname:   a.VMHostname,
		Labels:       labels,
		OSType:       a.OSType,
		Architecture: a.Architecture,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// AgentRequest is the request body for creating an agent.
type AgentRequest struct {
	Name         string   `json:"name"`
	VMHostname   string   `json:"vm_hostname"`
	Labels       []string `json:"labels"`
	OSType       string   `json:"os_type"`
	Architecture string   `json:"architecture"`
	Status       string   `json:"status"`
}

// AgentUpdateRequest is the request body for a partial agent update.
type AgentUpdateRequest struct {
	Name         *string   `json:"name"`
	VMHostname   *string   `json:"vm_hostname"`
	Labels       *[]string `json:"labels"`
	OSType       *string   `json:"os_type"`
	Architecture *string   `json:"architecture"`
	Status       *string   `json:"status"`
}

// ListAgents handles GET /api/v1/agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		h.logger.Error("listing agents failed", "error", err)
		WriteInternalError(w, "Failed to list agents")
		return
	}
	items := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		items = append(items, agentResponse(a))
	}
	WriteSuccess(w, items, nil)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "agent")
	if !ok {
		return
	}
	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "agent")
		return
	}
	WriteSuccess(w, agentResponse(agent), nil)
}

// CreateAgent handles POST /api/v1/agents.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Name) == "" {
		fieldErrors["name"] = "Name is required"
	}
	if req.Status != "" && !model.IsValidAgentStatus(req.Status) {
		fieldErrors["status"] = "Unknown agent status"
	}
	if len(fieldErrors) > 0 {
		WriteValidationError(w, fieldErrors)
		return
	}

	agent, err := h.store.CreateAgent(r.Context(), store.AgentCreate{
		Name:         strings.TrimSpace(req.Name),
		VMHostname:   req.VMHostname,
		Labels:       req.Labels,
		OSType:       req.OSType,
		Architecture: req.Architecture,
		Status:       req.Status,
	})
	if err != nil {
		h.writeStoreError(w, err, "agent")
		return
	}
	WriteCreated(w, agentResponse(agent))
}

// UpdateAgent handles PUT /api/v1/agents/{id}.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "agent")
	if !ok {
		return
	}
	var req AgentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	fieldErrors := make(map[string]string)
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		fieldErrors["name"] = "Name must not be empty"
	}
	if req.Status != nil && !model.IsValidAgentStatus(*req.Status) {
		fieldErrors["status"] = "Unknown agent status"
	}
	if len(fieldErrors) > 0 {
		WriteValidationError(w, fieldErrors)
		return
	}

	agent, err := h.store.UpdateAgent(r.Context(), id, store.AgentUpdate{
		Name:         req.Name,
		VMHostname:   req.VMHostname,
		Labels:       req.Labels,
		OSType:       req.OSType,
		Architecture: req.Architecture,
		Status:       req.Status,
	})
	if err != nil {
		h.writeStoreError(w, err, "agent")
		return
	}
	WriteSuccess(w, agentResponse(agent), nil)
}

// DeleteAgent handles DELETE /api/v1/agents/{id}.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "agent")
	if !ok {
		return
	}
	if err := h.store.DeleteAgent(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tools ---

// ToolResponse is the JSON shape for a tool.
type ToolResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toolResponse(t *model.Tool) ToolResponse {
	return ToolResponse{
		ID:        t.ID,
		Name:      t.Name,
		Type:      t.Type,
		Category:  t.Category,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ToolRequest is the request body for creating a tool.
type ToolRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

// ToolUpdateRequest is the request body for a partial tool update.
type ToolUpdateRequest struct {
	Name     *string `json:"name"`
	Type     *string `json:"type"`
	Category *string `json:"category"`
}

// ListTools handles GET /api/v1/tools.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.store.ListTools(r.Context())
	if err != nil {
		h.logger.Error("listing tools failed", "error", err)
		WriteInternalError(w, "Failed to list tools")
		return
	}
	items := make([]ToolResponse, 0, len(tools))
	for _, t := range tools {
		items = append(items, toolResponse(t))
	}
	WriteSuccess(w, items, nil)
}

// GetTool handles GET /api/v1/tools/{id}.
func (h *Handler) GetTool(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "tool")
	if !ok {
		return
	}
	tool, err := h.store.GetTool(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "tool")
		return
	}
	WriteSuccess(w, toolResponse(tool), nil)
}

// CreateTool handles POST /api/v1/tools.
func (h *Handler) CreateTool(w http.ResponseWriter, r *http.Request) {
	var req ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Name) == "" {
		fieldErrors["name"] = "Name is required"
	}
	if req.Type != "" && !model.IsValidToolType(req.Type) {
		fieldErrors["type"] = "Unknown tool type"
	}
	if req.Category != "" && !model.IsValidToolCategory(req.Category) {
		fieldErrors["category"] = "Unknown tool category"
	}
	if len(fieldErrors) > 0 {
		WriteValidationError(w, fieldErrors)
		return
	}

	tool, err := h.store.CreateTool(r.Context(), store.ToolCreate{
		Name:     strings.TrimSpace(req.Name),
		Type:     req.Type,
		Category: req.Category,
	})
	if err != nil {
		h.writeStoreError(w, err, "tool")
		return
	}
	WriteCreated(w, toolResponse(tool))
}

// UpdateTool handles PUT /api/v1/tools/{id}.
func (h *Handler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "tool")
	if !ok {
		return
	}
	var req ToolUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	fieldErrors := make(map[string]string)
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		fieldErrors["name"] = "Name must not be empty"
	}
	if req.Type != nil && !model.IsValidToolType(*req.Type) {
		fieldErrors["type"] = "Unknown tool type"
	}
	if req.Category != nil && !model.IsValidToolCategory(*req.Category) {
		fieldErrors["category"] = "Unknown tool category"
	}
	if len(fieldErrors) > 0 {
		WriteValidationError(w, fieldErrors)
		return
	}

	tool, err := h.store.UpdateTool(r.Context(), id, store.ToolUpdate{
		Name:     req.Name,
		Type:     req.Type,
		Category: req.Category,
	})
	if err != nil {
		h.writeStoreError(w, err, "tool")
		return
	}
	WriteSuccess(w, toolResponse(tool), nil)
}

// DeleteTool handles DELETE /api/v1/tools/{id}.
func (h *Handler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "tool")
	if !ok {
		return
	}
	if err := h.store.DeleteTool(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "tool")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tags ---

// TagResponse is the JSON shape for a tag.
type TagResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func tagResponse(t *model.Tag) TagResponse {
	return TagResponse{ID: t.ID, Name: t.Name}
}

// TagRequest is the request body for creating a tag.
type TagRequest struct {
	Name string `json:"name"`
}

// ListTags handles GET /api/v1/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.ListTags(r.Context())
	if err != nil {
		h.logger.Error("listing tags failed", "error", err)
		WriteInternalError(w, "Failed to list tags")
		return
	}
	items := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		items = append(items, tagResponse(t))
	}
	WriteSuccess(w, items, nil)
}

// CreateTag handles POST /api/v1/tags.
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		WriteValidationError(w, map[string]string{"name": "Name is required"})
		return
	}
	tag, err := h.store.CreateTag(r.Context(), name)
	if err != nil {
		h.writeStoreError(w, err, "tag")
		return
	}
	WriteCreated(w, tagResponse(tag))
}

// DeleteTag handles DELETE /api/v1/tags/{id}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "tag")
	if !ok {
		return
	}
	if err := h.store.DeleteTag(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Toolchains ---

// ToolchainResponse is the JSON shape for a toolchain with its tools.
type ToolchainResponse struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tools       []ToolResponse `json:"tools"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (h *Handler) toolchainResponse(r *http.Request, tc *model.Toolchain) (ToolchainResponse, error) {
	tools, err := h.store.ListToolchainTools(r.Context(), tc.ID)
	if err != nil {
		return ToolchainResponse{}, err
	}
	items := make([]ToolResponse, 0, len(tools))
	for _, t := range tools {
		items = append(items, toolResponse(t))
	}
	return ToolchainResponse{
		ID:          tc.ID,
		Name:        tc.Name,
		Description: tc.Description,
		Tools:       items,
		CreatedAt:   tc.CreatedAt,
		UpdatedAt:   tc.UpdatedAt,
	}, nil
}

// ToolchainRequest is the request body for creating a toolchain.
type ToolchainRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolchainUpdateRequest is the request body for a partial toolchain update.
type ToolchainUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ToolchainToolsRequest is the request body for replacing a toolchain's
// tool membership.
type ToolchainToolsRequest struct {
	ToolIDs []int64 `json:"tool_ids"`
}

// ListToolchains handles GET /api/v1/toolchains.
func (h *Handler) ListToolchains(w http.ResponseWriter, r *http.Request) {
	toolchains, err := h.store.ListToolchains(r.Context())
	if err != nil {
		h.logger.Error("listing toolchains failed", "error", err)
		WriteInternalError(w, "Failed to list toolchains")
		return
	}
	items := make([]ToolchainResponse, 0, len(toolchains))
	for _, tc := range toolchains {
		resp, err := h.toolchainResponse(r, tc)
		if err != nil {
			h.writeStoreError(w, err, "toolchain")
			return
		}
		items = append(items, resp)
	}
	WriteSuccess(w, items, nil)
}

// GetToolchain handles GET /api/v1/toolchains/{id}.
func (h *Handler) GetToolchain(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "toolchain")
	if !ok {
		return
	}
	tc, err := h.store.GetToolchain(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	resp, err := h.toolchainResponse(r, tc)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	WriteSuccess(w, resp, nil)
}

// CreateToolchain handles POST /api/v1/toolchains.
func (h *Handler) CreateToolchain(w http.ResponseWriter, r *http.Request) {
	var req ToolchainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		WriteValidationError(w, map[string]string{"name": "Name is required"})
		return
	}
	tc, err := h.store.CreateToolchain(r.Context(), store.ToolchainCreate{
		Name:        name,
		Description: req.Description,
	})
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	resp, err := h.toolchainResponse(r, tc)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	WriteCreated(w, resp)
}

// UpdateToolchain handles PUT /api/v1/toolchains/{id}.
func (h *Handler) UpdateToolchain(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "toolchain")
	if !ok {
		return
	}
	var req ToolchainUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		WriteValidationError(w, map[string]string{"name": "Name must not be empty"})
		return
	}
	tc, err := h.store.UpdateToolchain(r.Context(), id, store.ToolchainUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	resp, err := h.toolchainResponse(r, tc)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	WriteSuccess(w, resp, nil)
}

// SetToolchainTools handles PUT /api/v1/toolchains/{id}/tools, replacing
// the toolchain's tool set with the supplied list.
func (h *Handler) SetToolchainTools(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "toolchain")
	if !ok {
		return
	}
	var req ToolchainToolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if err := h.store.SetToolchainTools(r.Context(), id, req.ToolIDs); err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	tc, err := h.store.GetToolchain(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	resp, err := h.toolchainResponse(r, tc)
	if err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	WriteSuccess(w, resp, nil)
}

// DeleteToolchain handles DELETE /api/v1/toolchains/{id}.
func (h *Handler) DeleteToolchain(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "toolchain")
	if !ok {
		return
	}
	if err := h.store.DeleteToolchain(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "toolchain")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
