// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config parses the CLI-flags-plus-environment-fallback surface
// both binaries expose: a flag always wins when set explicitly, otherwise
// its matching environment variable is used, otherwise a default applies.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// AgentConfig is the lfbridge-agent process's configuration.
type AgentConfig struct {
	ListenAddr string
	ListenPort int

	BackendEndpoint string
	BackendToken    string

	StateControlInterval time.Duration
	LogsControlInterval  time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

const (
	defaultAgentAddr          = "::"
	defaultAgentPort          = 9090
	defaultStateControlSecs   = 60
	defaultLogsControlSecs    = 300
)

// LoadAgentConfig parses args (normally os.Args[1:]) against the agent's
// flag set, falling back to environment variables via lookupEnv (normally
// os.LookupEnv) for every value not given as a flag.
func LoadAgentConfig(args []string, lookupEnv func(string) (string, bool)) (*AgentConfig, error) {
	fs := flag.NewFlagSet("lfbridge-agent", flag.ContinueOnError)
	addr := fs.String("addr", "", "address to listen on for proxy connections")
	addrShort := fs.String("a", "", "shorthand for --addr")
	port := fs.Int("port", 0, "port to listen on for proxy connections")
	portShort := fs.Int("p", 0, "shorthand for --port")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "log format: json or text")
	logFile := fs.String("log-file", "", "optional file to tee logs to")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing agent flags: %w", err)
	}

	cfg := &AgentConfig{
		ListenAddr: firstNonEmpty(*addr, *addrShort),
		LogLevel:   *logLevel,
		LogFormat:  *logFormat,
		LogFile:    *logFile,
	}
	if p := firstNonZeroInt(*port, *portShort); p != 0 {
		cfg.ListenPort = p
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = envOrDefault(lookupEnv, "AGENT_ADDR", defaultAgentAddr)
	}
	if cfg.ListenPort == 0 {
		portStr := envOrDefault(lookupEnv, "AGENT_PORT", strconv.Itoa(defaultAgentPort))
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("parsing AGENT_PORT %q: %w", portStr, err)
		}
		cfg.ListenPort = p
	}

	cfg.BackendEndpoint = envOrDefault(lookupEnv, "BACKEND_ENDPOINT", "")
	cfg.BackendToken = envOrDefault(lookupEnv, "TOKEN", "")

	stateSecs, err := strconv.Atoi(envOrDefault(lookupEnv, "STATE_CONTROL_INTERVAL", strconv.Itoa(defaultStateControlSecs)))
	if err != nil {
		return nil, fmt.Errorf("parsing STATE_CONTROL_INTERVAL: %w", err)
	}
	cfg.StateControlInterval = time.Duration(stateSecs) * time.Second

	logsSecs, err := strconv.Atoi(envOrDefault(lookupEnv, "LOGS_CONTROL_INTERVAL", strconv.Itoa(defaultLogsControlSecs)))
	if err != nil {
		return nil, fmt.Errorf("parsing LOGS_CONTROL_INTERVAL: %w", err)
	}
	cfg.LogsControlInterval = time.Duration(logsSecs) * time.Second

	if cfg.LogLevel == "" {
		cfg.LogLevel = envOrDefault(lookupEnv, "LOG_LEVEL", "info")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = envOrDefault(lookupEnv, "LOG_FORMAT", "json")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.BackendEndpoint == "" {
		return fmt.Errorf("BACKEND_ENDPOINT must be set")
	}
	if c.BackendToken == "" {
		return fmt.Errorf("TOKEN must be set")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.StateControlInterval <= 0 {
		return fmt.Errorf("STATE_CONTROL_INTERVAL must be positive, got %s", c.StateControlInterval)
	}
	if c.LogsControlInterval <= 0 {
		return fmt.Errorf("LOGS_CONTROL_INTERVAL must be positive, got %s", c.LogsControlInterval)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envOrDefault(lookupEnv func(string) (string, bool), key, def string) string {
	if v, ok := lookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
