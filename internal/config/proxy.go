// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// ProxyConfig is the lfbridge-proxy process's configuration.
type ProxyConfig struct {
	AgentAddr string
	AgentPort int

	WatchPaths []string

	// ContentReplayRecordsPerSecond throttles historical content replay
	// (GetLogContent responses). <= 0 means unthrottled.
	ContentReplayRecordsPerSecond int

	LogLevel  string
	LogFormat string
	LogFile   string
}

const defaultProxyAgentPort = 9090

// LoadProxyConfig parses args (normally os.Args[1:]) against the proxy's
// flag set, falling back to environment variables via lookupEnv for every
// value not given as a flag. --watch/-w may be repeated; its values are
// combined with any ';'-separated paths from FILEPROXY_WATCHED_PATHS.
func LoadProxyConfig(args []string, lookupEnv func(string) (string, bool)) (*ProxyConfig, error) {
	fs := flag.NewFlagSet("lfbridge-proxy", flag.ContinueOnError)
	addr := fs.String("addr", "", "agent address to connect to")
	addrShort := fs.String("a", "", "shorthand for --addr")
	port := fs.Int("port", 0, "agent port to connect to")
	portShort := fs.Int("p", 0, "shorthand for --port")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "log format: json or text")
	logFile := fs.String("log-file", "", "optional file to tee logs to")
	replayRate := fs.Int("content-replay-rate", 0, "max records/second replayed for a GetLogContent request (0 = unthrottled)")

	var watch multiFlag
	fs.Var(&watch, "watch", "path to watch (repeatable)")
	var watchShort multiFlag
	fs.Var(&watchShort, "w", "shorthand for --watch")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing proxy flags: %w", err)
	}

	cfg := &ProxyConfig{
		AgentAddr: firstNonEmpty(*addr, *addrShort),
		LogLevel:  *logLevel,
		LogFormat: *logFormat,
		LogFile:   *logFile,
	}
	if p := firstNonZeroInt(*port, *portShort); p != 0 {
		cfg.AgentPort = p
	}

	if cfg.AgentAddr == "" {
		cfg.AgentAddr = envOrDefault(lookupEnv, "AGENT_ADDR", "")
	}
	if cfg.AgentPort == 0 {
		portStr := envOrDefault(lookupEnv, "AGENT_PORT", strconv.Itoa(defaultProxyAgentPort))
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("parsing AGENT_PORT %q: %w", portStr, err)
		}
		cfg.AgentPort = p
	}

	cfg.WatchPaths = append(cfg.WatchPaths, watch...)
	cfg.WatchPaths = append(cfg.WatchPaths, watchShort...)
	if envPaths, ok := lookupEnv("FILEPROXY_WATCHED_PATHS"); ok && envPaths != "" {
		for _, p := range strings.Split(envPaths, ";") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.WatchPaths = append(cfg.WatchPaths, p)
			}
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = envOrDefault(lookupEnv, "LOG_LEVEL", "info")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = envOrDefault(lookupEnv, "LOG_FORMAT", "json")
	}

	cfg.ContentReplayRecordsPerSecond = *replayRate
	if cfg.ContentReplayRecordsPerSecond == 0 {
		rateStr := envOrDefault(lookupEnv, "CONTENT_REPLAY_RATE", "0")
		r, err := strconv.Atoi(rateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing CONTENT_REPLAY_RATE %q: %w", rateStr, err)
		}
		cfg.ContentReplayRecordsPerSecond = r
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ProxyConfig) validate() error {
	if c.AgentAddr == "" {
		return fmt.Errorf("agent address must be set via --addr or AGENT_ADDR")
	}
	if c.AgentPort <= 0 || c.AgentPort > 65535 {
		return fmt.Errorf("invalid agent port %d", c.AgentPort)
	}
	if len(c.WatchPaths) == 0 {
		return fmt.Errorf("at least one watch path must be set via --watch or FILEPROXY_WATCHED_PATHS")
	}
	return nil
}

// multiFlag implements flag.Value to accumulate a flag given more than once.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
