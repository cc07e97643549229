// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"strconv"
	"sync"

	"github.com/lfbridge/lfbridge/internal/backend"
	"github.com/lfbridge/lfbridge/internal/logmodel"
)

// fakeBackend is an in-memory backend.Client for tests.
type fakeBackend struct {
	mu           sync.Mutex
	logsForAgent []backend.LogForAgent
	nextLogID    int64
	registered   map[string]string
	snapshots    map[string][]logmodel.SnapshotUpload
	verification map[string]bool
	agentCfg     backend.AgentConfig
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		registered:   make(map[string]string),
		snapshots:    make(map[string][]logmodel.SnapshotUpload),
		verification: make(map[string]bool),
		nextLogID:    1,
		agentCfg:     backend.AgentConfig{SnapshotIntervalSeconds: 60, MaxRecordCount: 10000},
	}
}

func (f *fakeBackend) PostLog(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.registered[name]; ok {
		return id, nil
	}
	id := strconv.FormatInt(f.nextLogID, 10)
	f.nextLogID++
	f.registered[name] = id
	return id, nil
}

func (f *fakeBackend) PostSnapshot(ctx context.Context, upload logmodel.SnapshotUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[upload.LogID] = append(f.snapshots[upload.LogID], upload)
	return nil
}

func (f *fakeBackend) PostLogVerificationStatus(ctx context.Context, logID string, isCorrect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verification[logID] = isCorrect
	return nil
}

func (f *fakeBackend) GetLogsForAgent(ctx context.Context) ([]backend.LogForAgent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logsForAgent, nil
}

func (f *fakeBackend) GetSnapshotsForLog(ctx context.Context, logID string) ([]logmodel.SnapshotUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[logID], nil
}

func (f *fakeBackend) GetAgentConfig(ctx context.Context) (backend.AgentConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agentCfg, nil
}
