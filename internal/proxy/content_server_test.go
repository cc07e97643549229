// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/lfbridge/lfbridge/internal/protocol"
)

func newTestManager(t *testing.T, logName, contents string) (*WatchManager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, logName)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fc := &fakeCollector{}
	m, err := NewWatchManager(slog.New(slog.DiscardHandler), fc)
	if err != nil {
		t.Fatalf("NewWatchManager: %v", err)
	}
	if err := m.BeginWatch(path); err != nil {
		t.Fatalf("BeginWatch: %v", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if err := m.InitializeWatch(abs, 0); err != nil {
		t.Fatalf("InitializeWatch: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, abs
}

func TestContentServer_StreamsRequestedRange(t *testing.T) {
	m, logName := newTestManager(t, "access.log", "l0\nl1\nl2\nl3\nl4\n")
	cs := NewContentServer(m, slog.New(slog.DiscardHandler), 0)

	var frames []any
	send := func(msg any) error {
		frames = append(frames, msg)
		return nil
	}

	req := &protocol.GetLogContent{RequestID: 1, LogName: logName, BeginRecord: 1, EndRecord: 3}
	if err := cs.HandleGetLogContent(context.Background(), req, send); err != nil {
		t.Fatalf("HandleGetLogContent: %v", err)
	}

	if len(frames) != 3 {
		t.Fatalf("expected status+data+status, got %d frames", len(frames))
	}
	first, ok := frames[0].(*protocol.LogContentStatus)
	if !ok || first.Status != protocol.StatusFoundAndBeginSend {
		t.Fatalf("expected FOUND_AND_BEGIN_SEND first, got %+v", frames[0])
	}
	data, ok := frames[1].(*protocol.LogContentData)
	if !ok {
		t.Fatalf("expected LogContentData second, got %T", frames[1])
	}
	want := []string{"l1", "l2", "l3"}
	for i, r := range want {
		if data.Records[i] != r {
			t.Errorf("record %d: expected %q, got %q", i, r, data.Records[i])
		}
	}
	last, ok := frames[2].(*protocol.LogContentStatus)
	if !ok || last.Status != protocol.StatusEndSend {
		t.Fatalf("expected END_SEND last, got %+v", frames[2])
	}
}

func TestContentServer_NotFound(t *testing.T) {
	m, _ := newTestManager(t, "access.log", "x\n")
	cs := NewContentServer(m, slog.New(slog.DiscardHandler), 0)

	var frames []any
	send := func(msg any) error {
		frames = append(frames, msg)
		return nil
	}

	req := &protocol.GetLogContent{RequestID: 9, LogName: "missing.log", BeginRecord: 0, EndRecord: 0}
	if err := cs.HandleGetLogContent(context.Background(), req, send); err != nil {
		t.Fatalf("HandleGetLogContent: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected a single NOT_FOUND frame, got %d", len(frames))
	}
	status := frames[0].(*protocol.LogContentStatus)
	if status.Status != protocol.StatusNotFound {
		t.Errorf("expected NOT_FOUND, got %v", status.Status)
	}
}

func TestContentServer_MoreThanOneBatch(t *testing.T) {
	var contents string
	for i := 0; i < 45; i++ {
		contents += fmt.Sprintf("line-%d\n", i)
	}
	m, logName := newTestManager(t, "access.log", contents)
	cs := NewContentServer(m, slog.New(slog.DiscardHandler), 0)

	var dataFrames []*protocol.LogContentData
	send := func(msg any) error {
		if d, ok := msg.(*protocol.LogContentData); ok {
			dataFrames = append(dataFrames, d)
		}
		return nil
	}

	req := &protocol.GetLogContent{RequestID: 1, LogName: logName, BeginRecord: 0, EndRecord: 44}
	if err := cs.HandleGetLogContent(context.Background(), req, send); err != nil {
		t.Fatalf("HandleGetLogContent: %v", err)
	}

	if len(dataFrames) != 3 { // 20 + 20 + 5
		t.Fatalf("expected 3 batches, got %d", len(dataFrames))
	}
	total := 0
	for _, f := range dataFrames {
		total += len(f.Records)
	}
	if total != 45 {
		t.Errorf("expected 45 total records, got %d", total)
	}
}
