// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lfbridge/lfbridge/internal/config"
	"github.com/lfbridge/lfbridge/internal/logging"
	"github.com/lfbridge/lfbridge/internal/proxy"
)

func main() {
	cfg, err := config.LoadProxyConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting lfbridge-proxy", "agent_addr", cfg.AgentAddr, "agent_port", cfg.AgentPort, "watch_paths", cfg.WatchPaths)

	if err := proxy.Run(ctx, cfg, logger); err != nil {
		logger.Error("proxy exited with error", "error", err)
		os.Exit(1)
	}
}
