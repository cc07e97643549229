// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lfbridge/lfbridge/internal/config"
)

// Run wires a WatchManager, ContentServer and AgentClient together per cfg
// and blocks until ctx is canceled. It is the single entry point cmd/lfbridge-proxy
// calls after parsing flags and building a logger.
func Run(ctx context.Context, cfg *config.ProxyConfig, logger *slog.Logger) error {
	client := NewAgentClient(fmt.Sprintf("%s:%d", cfg.AgentAddr, cfg.AgentPort), logger)

	manager, err := NewWatchManager(logger, client)
	if err != nil {
		return fmt.Errorf("creating watch manager: %w", err)
	}
	defer manager.Close()

	content := NewContentServer(manager, logger, cfg.ContentReplayRecordsPerSecond)
	client.SetManager(manager)
	client.SetContentServer(content)

	for _, path := range cfg.WatchPaths {
		if err := manager.BeginWatch(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	stop := make(chan struct{})
	go manager.Listen(stop)
	defer close(stop)

	client.Run(ctx)
	return nil
}
