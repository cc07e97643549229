// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/lfbridge/lfbridge/internal/config"
)

func testAgentConfig() *config.AgentConfig {
	return &config.AgentConfig{
		ListenAddr:           "127.0.0.1",
		ListenPort:           9090,
		BackendEndpoint:      "http://backend.invalid",
		BackendToken:         "t",
		StateControlInterval: time.Hour,
		LogsControlInterval:  time.Hour,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

func TestScheduler_RunUpload_SkipsEmptySnapshots(t *testing.T) {
	fb := newFakeBackend()
	collector := NewLogCollector(fb, slog.New(slog.DiscardHandler))
	snap, err := collector.Snapshot(context.Background(), "access.log")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.AddRecord("line")

	s, err := NewScheduler(testAgentConfig(), fb, collector, NewConnRegistry(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.runUpload()
	s.runUpload() // second call must be a no-op since UploadPrep drains the accumulator

	if len(fb.snapshots["1"]) != 1 {
		t.Fatalf("expected exactly one uploaded snapshot batch, got %d", len(fb.snapshots["1"]))
	}
}

func TestScheduler_RescheduleUpload_InstallsOnce(t *testing.T) {
	fb := newFakeBackend()
	collector := NewLogCollector(fb, slog.New(slog.DiscardHandler))
	s, err := NewScheduler(testAgentConfig(), fb, collector, NewConnRegistry(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if err := s.rescheduleUpload(30); err != nil {
		t.Fatalf("rescheduleUpload: %v", err)
	}
	firstEntry := s.uploadEntry
	if !s.uploadInstalled {
		t.Fatal("expected uploadInstalled to be true")
	}

	if err := s.rescheduleUpload(60); err != nil {
		t.Fatalf("rescheduleUpload (second): %v", err)
	}
	if s.uploadEntry == firstEntry {
		t.Error("expected a new cron entry id after rescheduling")
	}
	if s.uploadInterval != 60 {
		t.Errorf("expected uploadInterval 60, got %d", s.uploadInterval)
	}
}
