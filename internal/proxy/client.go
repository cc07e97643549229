// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/lfbridge/lfbridge/internal/protocol"
)

// Connection state constants: the coarse states AgentClient.State reports
// for the outbound connection to the agent.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// minBackoff and maxBackoff bound the exponential reconnect delay.
const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// AgentClient owns the single outbound connection from this proxy to its
// agent. It implements RecordCollector by turning tailer events into
// AddRecord/GetLogPosition frames, and dispatches the frames the agent sends
// back (LogPositionResponse, GetLogContent) to the WatchManager and
// ContentServer. It reconnects with exponential backoff if the agent goes
// away, matching the source proxy's "never give up" reconnect behavior.
type AgentClient struct {
	addr    string
	logger  *slog.Logger
	manager *WatchManager
	content *ContentServer

	conn  atomic.Pointer[protocol.Conn]
	state atomic.Value // string

	stopCh chan struct{}
}

// NewAgentClient creates a client that will dial addr once Run is called.
// SetManager and SetContentServer must be called before Run since both
// BeginWatch-discovered logs and incoming GetLogContent requests depend on
// them.
func NewAgentClient(addr string, logger *slog.Logger) *AgentClient {
	c := &AgentClient{
		addr:   addr,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	c.state.Store(StateDisconnected)
	return c
}

// SetManager wires the WatchManager this client dispatches
// LogPositionResponse frames into.
func (c *AgentClient) SetManager(m *WatchManager) { c.manager = m }

// SetContentServer wires the ContentServer this client dispatches
// GetLogContent requests into.
func (c *AgentClient) SetContentServer(cs *ContentServer) { c.content = cs }

// State reports the client's current connection state.
func (c *AgentClient) State() string {
	return c.state.Load().(string)
}

// Run dials the agent and serves the connection until ctx is canceled,
// reconnecting with exponential backoff on every disconnect.
func (c *AgentClient) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.state.Store(StateConnecting)
		nc, err := net.Dial("tcp", c.addr)
		if err != nil {
			attempt++
			delay := backoffDelay(attempt)
			c.logger.Warn("dialing agent failed", "addr", c.addr, "attempt", attempt, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		attempt = 0
		c.state.Store(StateConnected)
		c.logger.Info("connected to agent", "addr", c.addr)

		conn := protocol.NewConn(nc)
		c.conn.Store(conn)
		done := make(chan error, 1)
		conn.Serve(func(t protocol.MessageType, msg any) error {
			return c.dispatch(ctx, t, msg)
		}, func(err error) {
			done <- err
		})

		select {
		case <-ctx.Done():
			conn.Close()
			return
		case err := <-done:
			c.state.Store(StateDisconnected)
			c.conn.Store(nil)
			c.logger.Warn("agent connection lost", "error", err)
		}
	}
}

// Stop ends a running Run loop.
func (c *AgentClient) Stop() {
	close(c.stopCh)
}

func backoffDelay(attempt int) time.Duration {
	d := minBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// dispatch routes an inbound frame to the component that owns it. It never
// sends a reply of its own; a GetLogContent answer is a stream of frames
// produced by the ContentServer and written straight back over conn.
func (c *AgentClient) dispatch(ctx context.Context, t protocol.MessageType, msg any) error {
	switch m := msg.(type) {
	case *protocol.LogPositionResponse:
		if c.manager == nil {
			return nil
		}
		if err := c.manager.InitializeWatch(m.LogName, m.Position); err != nil {
			c.logger.Error("initializing watch from agent response", "log", m.LogName, "error", err)
		}
		return nil
	case *protocol.GetLogContent:
		if c.content == nil {
			return nil
		}
		conn := c.conn.Load()
		if conn == nil {
			return nil
		}
		return c.content.HandleGetLogContent(ctx, m, func(frame any) error {
			return conn.Send(frame)
		})
	default:
		return fmt.Errorf("proxy client: unexpected frame type %d", t)
	}
}

// RequestInitialize implements RecordCollector.
func (c *AgentClient) RequestInitialize(logName string) {
	c.send(&protocol.GetLogPosition{LogName: logName})
}

// OnRecordAdded implements RecordCollector.
func (c *AgentClient) OnRecordAdded(logName, data string, timestamp int64) {
	c.send(&protocol.AddRecord{LogName: logName, Data: data, Timestamp: timestamp})
}

// OnEmptyWrite implements RecordCollector.
func (c *AgentClient) OnEmptyWrite(logName string) {
	c.logger.Debug("empty write notification", "log", logName)
}

// OnFileDisappeared implements RecordCollector.
func (c *AgentClient) OnFileDisappeared(logName string) {
	c.logger.Warn("watched file disappeared", "log", logName)
}

func (c *AgentClient) send(msg any) {
	conn := c.conn.Load()
	if conn == nil {
		c.logger.Debug("dropping frame, not connected", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err := conn.Send(msg); err != nil {
		c.logger.Error("sending frame to agent", "error", err)
	}
}
