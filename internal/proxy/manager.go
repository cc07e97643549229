// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchManager watches one or more root paths (files or directories) and
// maintains one Tailer per regular file found under them, using fsnotify in
// place of the platform-specific inotify wrapper the source proxy used —
// events still drive the same initialize/tail state machine per file.
type WatchManager struct {
	logger    *slog.Logger
	collector RecordCollector
	watcher   *fsnotify.Watcher

	mu       sync.Mutex
	tailers  map[string]*Tailer // logName -> tailer
	paths    map[string]string  // absolute file path -> logName
	logPaths map[string]string  // logName -> absolute file path
}

// NewWatchManager creates a WatchManager backed by its own fsnotify watcher.
func NewWatchManager(logger *slog.Logger, collector RecordCollector) (*WatchManager, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &WatchManager{
		logger:    logger,
		collector: collector,
		watcher:   w,
		tailers:   make(map[string]*Tailer),
		paths:     make(map[string]string),
		logPaths:  make(map[string]string),
	}, nil
}

// BeginWatch adds root (a file or a directory, recursively) to the watch
// set. The log name is always the watched file's absolute path — a
// path-like identifier unique per proxy, since two files with the same
// basename in different directories must never collide.
func (m *WatchManager) BeginWatch(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving absolute path for %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stating watch root %s: %w", abs, err)
	}

	if !info.IsDir() {
		return m.watchFile(abs, abs)
	}

	if err := m.watcher.Add(abs); err != nil {
		return fmt.Errorf("watching directory %s: %w", abs, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", abs, err)
	}
	for _, e := range entries {
		full := filepath.Join(abs, e.Name())
		if e.IsDir() {
			if err := m.BeginWatch(full); err != nil {
				return err
			}
			continue
		}
		if err := m.watchFile(full, full); err != nil {
			return err
		}
	}
	return nil
}

func (m *WatchManager) watchFile(path, logName string) error {
	m.mu.Lock()
	if _, exists := m.tailers[logName]; exists {
		m.mu.Unlock()
		return fmt.Errorf("log %q is already watched", logName)
	}
	m.mu.Unlock()

	tailer, err := NewTailer(path, logName, m.collector)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := m.watcher.Add(dir); err != nil {
		tailer.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	m.mu.Lock()
	m.tailers[logName] = tailer
	m.paths[path] = logName
	m.logPaths[logName] = path
	m.mu.Unlock()

	m.logger.Info("watching log", "log", logName, "path", path)
	return nil
}

// EndWatch stops following logName and releases its file handle.
func (m *WatchManager) EndWatch(logName string) {
	m.mu.Lock()
	tailer, ok := m.tailers[logName]
	if ok {
		delete(m.tailers, logName)
		delete(m.logPaths, logName)
		for p, n := range m.paths {
			if n == logName {
				delete(m.paths, p)
			}
		}
	}
	m.mu.Unlock()
	if ok {
		tailer.Close()
	}
}

// ContainsWatch reports whether logName is currently watched.
func (m *WatchManager) ContainsWatch(logName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tailers[logName]
	return ok
}

// Path returns the absolute file path backing logName, if it is watched.
func (m *WatchManager) Path(logName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.logPaths[logName]
	return p, ok
}

// InitializeWatch resolves logName's resume position, delivered
// asynchronously by the agent via a LogPositionResponse frame.
func (m *WatchManager) InitializeWatch(logName string, startRecord int64) error {
	m.mu.Lock()
	tailer, ok := m.tailers[logName]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("initializing watch: log %q is not watched", logName)
	}
	return tailer.Initialize(startRecord)
}

// Listen runs fsnotify's event loop until stop is closed.
func (m *WatchManager) Listen(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("watcher error", "error", err)
		}
	}
}

func (m *WatchManager) handleEvent(ev fsnotify.Event) {
	m.mu.Lock()
	logName, tracked := m.paths[ev.Name]
	tailer := m.tailers[logName]
	m.mu.Unlock()

	switch {
	case ev.Op&fsnotify.Write == fsnotify.Write:
		if !tracked {
			return
		}
		if err := tailer.OnWrite(); err != nil {
			m.logger.Error("tailing log", "log", logName, "error", err)
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if !tracked {
			return
		}
		m.collector.OnFileDisappeared(logName)
		m.EndWatch(logName)
	case ev.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		if err := m.watchFile(ev.Name, ev.Name); err != nil {
			m.logger.Warn("watching newly created file", "path", ev.Name, "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher and every tailer.
func (m *WatchManager) Close() error {
	m.mu.Lock()
	for _, t := range m.tailers {
		t.Close()
	}
	m.mu.Unlock()
	return m.watcher.Close()
}
