// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// statsInterval is how often the agent logs a daemon-health line.
const statsInterval = 5 * time.Minute

// StatsReporter periodically logs host resource usage alongside the
// number of connected proxies and registered logs, so an operator tailing
// the agent's structured log gets a cheap health signal without a separate
// metrics endpoint.
type StatsReporter struct {
	registry  *ConnRegistry
	collector *LogCollector
	logger    *slog.Logger
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStatsReporter creates a reporter over registry and collector.
func NewStatsReporter(registry *ConnRegistry, collector *LogCollector, logger *slog.Logger) *StatsReporter {
	return &StatsReporter{
		registry:  registry,
		collector: collector,
		logger:    logger,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins the periodic reporting goroutine.
func (sr *StatsReporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	sr.cancel = cancel

	go func() {
		defer close(sr.done)
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		sr.report()
		for {
			select {
			case <-ticker.C:
				sr.report()
			case <-ctx.Done():
				return
			}
		}
	}()

	sr.logger.Info("stats reporter started", "interval", statsInterval)
}

// Stop ends the reporting goroutine and waits for it to exit.
func (sr *StatsReporter) Stop() {
	if sr.cancel != nil {
		sr.cancel()
	}
	<-sr.done
}

func (sr *StatsReporter) report() {
	attrs := []any{
		"uptime_seconds", int64(time.Since(sr.startTime).Seconds()),
		"connected_proxies", sr.registry.Len(),
		"registered_logs", len(sr.collector.All()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		attrs = append(attrs, "cpu_percent", percentages[0])
	} else if err != nil {
		sr.logger.Debug("collecting cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "memory_percent", v.UsedPercent)
	} else {
		sr.logger.Debug("collecting memory stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		attrs = append(attrs, "load1", l.Load1)
	} else {
		sr.logger.Debug("collecting load stats", "error", err)
	}

	sr.logger.Info("agent stats", attrs...)
}
