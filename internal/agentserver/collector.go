// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package agentserver implements the central agent: it accepts proxy
// connections, aggregates the records they stream into per-log snapshots,
// answers historical content requests by fanning them out to whichever
// proxy connection currently serves a log, and periodically uploads
// snapshots and validates log integrity against the backend.
package agentserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lfbridge/lfbridge/internal/backend"
	"github.com/lfbridge/lfbridge/internal/logmodel"
)

// LogCollector owns the registry of logs this agent is responsible for and
// their in-memory Snapshots. A log enters the registry either at startup,
// rehydrated from the backend's GetLogsForAgent, or the first time a proxy
// reports a record for a name the backend has never seen.
type LogCollector struct {
	backend backend.Client
	logger  *slog.Logger

	mu        sync.Mutex
	snapshots map[string]*logmodel.Snapshot // logName -> snapshot
}

// NewLogCollector creates an empty LogCollector. Call Rehydrate before
// accepting any proxy connections.
func NewLogCollector(client backend.Client, logger *slog.Logger) *LogCollector {
	return &LogCollector{
		backend:   client,
		logger:    logger,
		snapshots: make(map[string]*logmodel.Snapshot),
	}
}

// Rehydrate seeds one Snapshot per log the backend says this agent owns,
// resuming each at the record count the backend has already recorded —
// otherwise a restart would re-upload records the backend already has, or
// worse, fold them into a fingerprint that no longer matches what a
// validator pass computes from record zero.
func (c *LogCollector) Rehydrate(ctx context.Context) error {
	logs, err := c.backend.GetLogsForAgent(ctx)
	if err != nil {
		return fmt.Errorf("rehydrating log registry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range logs {
		c.snapshots[l.Name] = logmodel.NewSnapshot(logmodel.Log{Name: l.Name, ID: l.ID}, l.Records)
		c.logger.Info("rehydrated log", "log", l.Name, "id", l.ID, "resume_at", l.Records)
	}
	return nil
}

// Snapshot returns the Snapshot for logName, registering it with the
// backend and creating a fresh one starting at record 0 if this is the
// first time this agent has seen the name.
func (c *LogCollector) Snapshot(ctx context.Context, logName string) (*logmodel.Snapshot, error) {
	c.mu.Lock()
	snap, ok := c.snapshots[logName]
	c.mu.Unlock()
	if ok {
		return snap, nil
	}

	id, err := c.backend.PostLog(ctx, logName)
	if err != nil {
		return nil, fmt.Errorf("registering new log %q: %w", logName, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap, ok := c.snapshots[logName]; ok {
		return snap, nil // lost a race with another connection registering the same log
	}
	snap = logmodel.NewSnapshot(logmodel.Log{Name: logName, ID: id}, 0)
	c.snapshots[logName] = snap
	c.logger.Info("registered new log", "log", logName, "id", id)
	return snap, nil
}

// All returns every currently registered Snapshot, for the scheduler's
// upload and verification jobs to iterate over.
func (c *LogCollector) All() []*logmodel.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*logmodel.Snapshot, 0, len(c.snapshots))
	for _, s := range c.snapshots {
		out = append(out, s)
	}
	return out
}

// Lookup returns the Snapshot currently registered for logName, if any.
func (c *LogCollector) Lookup(logName string) (*logmodel.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snapshots[logName]
	return s, ok
}
