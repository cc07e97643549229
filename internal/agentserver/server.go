// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/lfbridge/lfbridge/internal/backend"
	"github.com/lfbridge/lfbridge/internal/config"
	"github.com/lfbridge/lfbridge/internal/protocol"
)

// Run starts the agent: it rehydrates the log registry from the backend,
// starts the scheduler and stats reporter, and accepts proxy connections on
// cfg.ListenAddr:cfg.ListenPort until ctx is canceled.
func Run(ctx context.Context, cfg *config.AgentConfig, logger *slog.Logger) error {
	client := backend.NewHTTPClient(cfg.BackendEndpoint, cfg.BackendToken)

	collector := NewLogCollector(client, logger)
	if err := collector.Rehydrate(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	registry := NewConnRegistry()

	scheduler, err := NewScheduler(cfg, client, collector, registry, logger)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop(context.Background())

	stats := NewStatsReporter(registry, collector, logger)
	stats.Start()
	defer stats.Stop()

	addr := net.JoinHostPort(cfg.ListenAddr, fmt.Sprintf("%d", cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()
	logger.Info("agent listening", "address", addr)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down agent")
		ln.Close()
	}()

	consecutiveErrors := 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("agent shutdown complete")
				return nil
			default:
				consecutiveErrors++
				logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		conn := protocol.NewConn(nc)
		pc := NewProxyConnection(conn, collector, logger, func(c *ProxyConnection, err error) {
			registry.Remove(c)
			c.Close()
			logger.Info("proxy disconnected", "remote", c.RemoteAddr(), "error", err)
		})
		registry.Add(pc)
		logger.Info("proxy connected", "remote", pc.RemoteAddr())
	}
}
