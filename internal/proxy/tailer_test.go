// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeCollector struct {
	initRequested []string
	records       []string
	emptyWrites   int
	disappeared   []string
}

func (f *fakeCollector) RequestInitialize(logName string) {
	f.initRequested = append(f.initRequested, logName)
}
func (f *fakeCollector) OnRecordAdded(logName, data string, timestamp int64) {
	f.records = append(f.records, data)
}
func (f *fakeCollector) OnEmptyWrite(logName string) {
	f.emptyWrites++
}
func (f *fakeCollector) OnFileDisappeared(logName string) {
	f.disappeared = append(f.disappeared, logName)
}

func TestTailer_EmitsCompleteLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fc := &fakeCollector{}
	tailer, err := NewTailer(path, "access.log", fc)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	defer tailer.Close()

	if err := tailer.Initialize(0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(fc.records) != 2 || fc.records[0] != "line one" || fc.records[1] != "line two" {
		t.Fatalf("unexpected records: %v", fc.records)
	}
}

func TestTailer_SkipsAlreadyRecordedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	if err := os.WriteFile(path, []byte("old\nnew\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fc := &fakeCollector{}
	tailer, err := NewTailer(path, "access.log", fc)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	defer tailer.Close()

	if err := tailer.Initialize(1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(fc.records) != 1 || fc.records[0] != "new" {
		t.Fatalf("expected only 'new' to be reported, got %v", fc.records)
	}
}

func TestTailer_HoldsPartialLineAcrossWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("partial-"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	fc := &fakeCollector{}
	tailer, err := NewTailer(path, "access.log", fc)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	defer tailer.Close()

	if err := tailer.Initialize(0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(fc.records) != 0 {
		t.Fatalf("expected no complete records yet, got %v", fc.records)
	}

	if _, err := f.WriteString("line\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := tailer.OnWrite(); err != nil {
		t.Fatalf("OnWrite: %v", err)
	}

	if len(fc.records) != 1 || fc.records[0] != "partial-line" {
		t.Fatalf("expected joined record, got %v", fc.records)
	}
}

func TestTailer_OnWrite_NoopBeforeInitialize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fc := &fakeCollector{}
	tailer, err := NewTailer(path, "access.log", fc)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	defer tailer.Close()

	if err := tailer.OnWrite(); err != nil {
		t.Fatalf("OnWrite: %v", err)
	}
	if len(fc.records) != 0 {
		t.Fatalf("expected OnWrite to be a no-op before Initialize, got %v", fc.records)
	}
}
