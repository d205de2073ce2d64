// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest implements the webhook ingestion pipeline: it
// authenticates an inbound CI notification, normalizes its payload,
// classifies the build status into a typed ledger event, resolves the
// referenced agent, tools and tags, and persists the assembled event.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ciledger-go/internal/model"
	"github.com/olegiv/ciledger-go/internal/store"
)

// Terminal pipeline errors. The caller maps these to HTTP statuses; no
// stage retries internally — a failed delivery is retried whole by the
// sender.
var (
	ErrBadSignature   = errors.New("invalid webhook signature")
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Config holds the pipeline's process-wide settings, passed explicitly so
// tests can vary them per case.
type Config struct {
	// Secret enables HMAC verification when non-empty. When empty the
	// pipeline runs in open mode and skips the signature stage.
	Secret string
	// SourceName labels composed event titles. Defaults to "Jenkins".
	SourceName string
}

// Pipeline ingests CI notifications into the ledger.
type Pipeline struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger
}

// NewPipeline creates a pipeline bound to the given store.
func NewPipeline(cfg Config, st *store.Store, logger *slog.Logger) *Pipeline {
	if cfg.SourceName == "" {
		cfg.SourceName = "Jenkins"
	}
	return &Pipeline{cfg: cfg, store: st, logger: logger}
}

// Process runs the full ingestion sequence for one delivery: signature
// check, payload parse, classification, entity resolution, and event
// creation. Each stage short-circuits with a terminal error.
func (p *Pipeline) Process(ctx context.Context, body []byte, signature string) (*model.EventWithRelations, error) {
	deliveryID := uuid.New().String()

	if p.cfg.Secret != "" {
		if signature == "" {
			return nil, fmt.Errorf("%w: missing %s header", ErrBadSignature, SignatureHeader)
		}
		if !VerifySignature(body, signature, p.cfg.Secret) {
			return nil, fmt.Errorf("%w: signature mismatch", ErrBadSignature)
		}
	}

	payload, err := ParsePayload(body)
	if err != nil {
		return nil, err
	}

	eventType, severity := ClassifyStatus(payload.Status)

	agentIDs, toolVersions, tagIDs, err := p.resolveEntities(ctx, payload)
	if err != nil {
		return nil, err
	}

	metadata, err := auditMetadata(deliveryID, body)
	if err != nil {
		return nil, err
	}

	in := store.EventCreate{
		Title:        composeTitle(p.cfg.SourceName, payload),
		Description:  composeDescription(payload),
		Timestamp:    eventTimestamp(payload),
		EventType:    eventType,
		Severity:     severity,
		Source:       model.SourceWebhook,
		Metadata:     metadata,
		AgentIDs:     agentIDs,
		ToolVersions: toolVersions,
		TagIDs:       tagIDs,
	}

	event, err := p.store.CreateEvent(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("persisting webhook event: %w", err)
	}

	p.logger.Info("webhook event ingested",
		"delivery_id", deliveryID,
		"event_id", event.ID,
		"job", payload.JobName,
		"build", *payload.BuildNumber,
		"event_type", eventType,
		"severity", severity,
	)

	return event, nil
}

// resolveEntities resolves or creates every referenced agent, tool and tag
// and returns the link sets for the new event. Resolution is idempotent:
// concurrent deliveries naming the same unseen entity converge on one row.
func (p *Pipeline) resolveEntities(ctx context.Context, payload *BuildPayload) ([]int64, []model.ToolVersion, []int64, error) {
	var agentIDs []int64
	if payload.Agent != "" {
		agent, err := p.store.ResolveAgent(ctx, payload.Agent)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolving agent %q: %w", payload.Agent, err)
		}
		agentIDs = append(agentIDs, agent.ID)
	}

	var toolVersions []model.ToolVersion
	for _, tp := range payload.Tools {
		tool, err := p.store.ResolveTool(ctx, tp.Name)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolving tool %q: %w", tp.Name, err)
		}
		toolVersions = append(toolVersions, model.ToolVersion{
			ToolID:      tool.ID,
			VersionFrom: tp.PreviousVersion,
			VersionTo:   tp.Version,
		})
	}

	var tagIDs []int64
	for _, name := range payload.Tags {
		tag, err := p.store.ResolveTag(ctx, name)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolving tag %q: %w", name, err)
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	return agentIDs, toolVersions, tagIDs, nil
}

// composeTitle builds the event title, e.g. "Jenkins deploy-prod #42 failure".
func composeTitle(source string, payload *BuildPayload) string {
	return fmt.Sprintf("%s %s #%d %s", source, payload.JobName, *payload.BuildNumber,
		strings.ToLower(payload.Status))
}

// composeDescription joins the optional message and build URL, each on its
// own line. Empty when both are absent.
func composeDescription(payload *BuildPayload) string {
	var parts []string
	if payload.Message != "" {
		parts = append(parts, payload.Message)
	}
	if payload.FullURL != "" {
		parts = append(parts, payload.FullURL)
	}
	return strings.Join(parts, "\n")
}

func eventTimestamp(payload *BuildPayload) time.Time {
	if payload.Timestamp != nil {
		return *payload.Timestamp
	}
	return time.Now().UTC()
}

// auditMetadata preserves the full original payload for auditing, keyed by
// the generated delivery id.
func auditMetadata(deliveryID string, body []byte) (string, error) {
	meta := map[string]any{
		"delivery_id": deliveryID,
		"jenkins":     json.RawMessage(body),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding audit metadata: %w", err)
	}
	return string(data), nil
}
