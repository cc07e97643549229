// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Tailer follows a single log file, turning write-notifications into
// complete records. A record is only emitted once a full line (terminated
// by '\n') has been observed; a line written without its terminator yet is
// held as a pending fragment and completed on the next read.
type Tailer struct {
	logName string
	path    string

	mu          sync.Mutex
	file        *os.File
	pendingLine string
	initialized bool
	toSkip      int64
	collector   RecordCollector
}

// NewTailer opens path for reading and immediately asks the collector to
// resolve the starting record position via RequestInitialize. The Tailer
// does nothing else until Initialize is called with the agent's answer.
func NewTailer(path, logName string, collector RecordCollector) (*Tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	t := &Tailer{
		logName:   logName,
		path:      path,
		file:      f,
		collector: collector,
	}
	collector.RequestInitialize(logName)
	return t, nil
}

// Initialize sets how many already-tailed records to skip before the first
// new record is reported, then performs an initial read so any lines
// written before the watch was established are accounted for.
func (t *Tailer) Initialize(startRecord int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toSkip = startRecord
	if err := t.readRecords(); err != nil {
		return err
	}
	t.initialized = true
	return nil
}

// IsInitialized reports whether Initialize has completed.
func (t *Tailer) IsInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// OnWrite is called when the filesystem watcher observes new data may be
// available. It is a no-op before Initialize completes, matching the
// source model's rule that file events are ignored until a watch has been
// explicitly initialized with a resume position.
func (t *Tailer) OnWrite() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return nil
	}
	return t.readRecords()
}

// Close releases the underlying file handle.
func (t *Tailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// readRecords drains everything currently available from the file's current
// offset, splits it into lines, and reports each complete one. Must be
// called with mu held.
func (t *Tailer) readRecords() error {
	data, err := io.ReadAll(t.file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", t.path, err)
	}
	if len(data) == 0 {
		t.collector.OnEmptyWrite(t.logName)
		return nil
	}

	content := t.pendingLine + string(data)
	t.pendingLine = ""

	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, "\n") {
			if t.pendingLine != "" {
				return fmt.Errorf("tailer: unexpected line splice tailing %s", t.path)
			}
			t.pendingLine = line
			continue
		}
		if t.toSkip > 0 {
			t.toSkip--
			continue
		}
		t.collector.OnRecordAdded(t.logName, strings.TrimRight(line, "\r\n"), time.Now().UnixNano())
	}
	return nil
}
