// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package poller runs the optional pull-based ingestion heartbeat. The
// tick currently only reports ledger counters; it is the attachment
// point for polling CI servers that cannot push webhooks.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/ciledger-go/internal/store"
)

// Poller periodically checks in against the ledger.
type Poller struct {
	store    *store.Store
	cron     *cron.Cron
	interval time.Duration
	logger   *slog.Logger
}

// New creates a poller ticking at the given interval.
func New(st *store.Store, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		store:    st,
		cron:     cron.New(),
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the heartbeat job.
func (p *Poller) Start() error {
	spec := fmt.Sprintf("@every %s", p.interval)
	_, err := p.cron.AddFunc(spec, func() {
		if err := p.tick(); err != nil {
			p.logger.Error("poller tick failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info("poller started", "interval", p.interval)
	return nil
}

// Stop gracefully stops the poller, waiting for a running tick.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("poller stopped")
}

// tick is one heartbeat. It reads but never writes the ledger.
func (p *Poller) tick() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	total, err := p.store.CountEvents(ctx, store.EventFilter{})
	if err != nil {
		return fmt.Errorf("counting events: %w", err)
	}

	p.logger.Debug("poller heartbeat", "events", total)
	return nil
}
