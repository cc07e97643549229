// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lfbridge/lfbridge/internal/backend"
	"github.com/lfbridge/lfbridge/internal/config"
)

// Scheduler drives the three recurring jobs that keep an agent's view of
// its logs honest: pulling fresh tunables from the backend, uploading
// accumulated snapshots, and validating a log's recorded fingerprints
// against what its proxy actually has on disk. Unlike a fixed set of cron
// entries, the upload job's interval can change at runtime — the backend's
// GetAgentConfig answer is polled by the state job and, when it differs
// from what's currently scheduled, the upload entry is removed and re-added
// rather than mutated, since cron.Cron has no in-place reschedule.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	cfg       *config.AgentConfig
	client    backend.Client
	collector *LogCollector
	registry  *ConnRegistry

	mu              sync.Mutex
	uploadEntry     cron.EntryID
	uploadInterval  int64
	uploadInstalled bool
}

// NewScheduler builds a Scheduler with its state-maintenance and
// per-log-verification jobs registered. The upload job is installed lazily,
// once the first GetAgentConfig call reports an interval.
func NewScheduler(cfg *config.AgentConfig, client backend.Client, collector *LogCollector, registry *ConnRegistry, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
		logger:    logger,
		cfg:       cfg,
		client:    client,
		collector: collector,
		registry:  registry,
	}

	stateSpec := fmt.Sprintf("@every %ds", int(cfg.StateControlInterval.Seconds()))
	if _, err := s.cron.AddFunc(stateSpec, s.runStateMaintenance); err != nil {
		return nil, fmt.Errorf("scheduling state maintenance job: %w", err)
	}

	verifySpec := fmt.Sprintf("@every %ds", int(cfg.LogsControlInterval.Seconds()))
	if _, err := s.cron.AddFunc(verifySpec, s.runVerification); err != nil {
		return nil, fmt.Errorf("scheduling verification job: %w", err)
	}

	return s, nil
}

// Start runs the cron scheduler and performs one synchronous state pull so
// the upload job is installed before Start returns, instead of waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.runStateMaintenance()
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop drains running jobs and stops the cron scheduler.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) runStateMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agentCfg, err := s.client.GetAgentConfig(ctx)
	if err != nil {
		s.logger.Error("pulling agent config from backend", "error", err)
		return
	}

	s.mu.Lock()
	needsReschedule := !s.uploadInstalled || s.uploadInterval != agentCfg.SnapshotIntervalSeconds
	s.mu.Unlock()

	if needsReschedule {
		if err := s.rescheduleUpload(agentCfg.SnapshotIntervalSeconds); err != nil {
			s.logger.Error("rescheduling upload job", "error", err)
		}
	}

	if agentCfg.MaxRecordCount > 0 {
		var total int64
		for _, snap := range s.collector.All() {
			total += snap.LineCount()
		}
		if total > agentCfg.MaxRecordCount {
			s.logger.Info("record count exceeds max_record_count, forcing an immediate upload",
				"total_records", total, "max_record_count", agentCfg.MaxRecordCount)
			s.runUpload()
		}
	}

	s.logger.Debug("state maintenance complete",
		"snapshot_interval_s", agentCfg.SnapshotIntervalSeconds,
		"max_record_count", agentCfg.MaxRecordCount,
	)
}

// rescheduleUpload installs the upload job at intervalSeconds, replacing
// whatever was previously scheduled. A non-positive interval means the
// backend wants the upload job removed entirely rather than run on a timer.
func (s *Scheduler) rescheduleUpload(intervalSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intervalSeconds <= 0 {
		if s.uploadInstalled {
			s.cron.Remove(s.uploadEntry)
			s.uploadInstalled = false
			s.uploadInterval = intervalSeconds
			s.logger.Info("upload job removed", "interval_s", intervalSeconds)
		}
		return nil
	}

	if s.uploadInstalled {
		s.cron.Remove(s.uploadEntry)
	}

	spec := fmt.Sprintf("@every %ds", intervalSeconds)
	id, err := s.cron.AddFunc(spec, s.runUpload)
	if err != nil {
		return fmt.Errorf("adding upload job at %s: %w", spec, err)
	}

	s.uploadEntry = id
	s.uploadInterval = intervalSeconds
	s.uploadInstalled = true
	s.logger.Info("upload job (re)scheduled", "interval_s", intervalSeconds)
	return nil
}

func (s *Scheduler) runUpload() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, snap := range s.collector.All() {
		upload, ok := snap.UploadPrep()
		if !ok {
			continue
		}
		if err := s.client.PostSnapshot(ctx, upload); err != nil {
			s.logger.Error("uploading snapshot", "log_id", upload.LogID, "error", err)
			continue
		}
		s.logger.Debug("snapshot uploaded", "log_id", upload.LogID, "first_line", upload.FirstLine, "last_line", upload.LastLine)
	}
}

func (s *Scheduler) runVerification() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, snap := range s.collector.All() {
		isCorrect, err := Validate(ctx, s.client, s.registry, snap.Log, s.logger)
		if err != nil {
			s.logger.Error("validating log", "log", snap.Log.Name, "error", err)
			continue
		}
		if err := s.client.PostLogVerificationStatus(ctx, snap.Log.ID, isCorrect); err != nil {
			s.logger.Error("reporting verification status", "log", snap.Log.Name, "error", err)
		}
	}
}
