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

	"github.com/lfbridge/lfbridge/internal/agentserver"
	"github.com/lfbridge/lfbridge/internal/config"
	"github.com/lfbridge/lfbridge/internal/logging"
)

func main() {
	cfg, err := config.LoadAgentConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting lfbridge-agent", "listen_addr", cfg.ListenAddr, "listen_port", cfg.ListenPort)

	if err := agentserver.Run(ctx, cfg, logger); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}
