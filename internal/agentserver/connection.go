// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lfbridge/lfbridge/internal/logmodel"
	"github.com/lfbridge/lfbridge/internal/protocol"
)

// ProxyConnection is one accepted proxy connection. It answers the proxy's
// AddRecord/GetLogPosition traffic directly against the LogCollector, and
// tracks every GetLogContent this agent has asked it to serve so inbound
// LogContentStatus/LogContentData frames can be routed back to the request
// that triggered them.
type ProxyConnection struct {
	id        string
	conn      *protocol.Conn
	collector *LogCollector
	logger    *slog.Logger

	nextRequestID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*logmodel.ContentRequest
}

// NewProxyConnection wraps nc (already accepted) and starts serving it. onDone
// is invoked once, with the terminating error, when the connection's read
// loop exits.
func NewProxyConnection(nc *protocol.Conn, collector *LogCollector, logger *slog.Logger, onDone func(*ProxyConnection, error)) *ProxyConnection {
	id := uuid.NewString()
	pc := &ProxyConnection{
		id:        id,
		conn:      nc,
		collector: collector,
		logger:    logger.With("conn", shortID(id)),
		pending:   make(map[uint32]*logmodel.ContentRequest),
	}
	nc.Serve(func(t protocol.MessageType, msg any) error {
		return pc.dispatch(context.Background(), t, msg)
	}, func(err error) {
		onDone(pc, err)
	})
	return pc
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ID uniquely identifies this connection for the lifetime of the process.
func (pc *ProxyConnection) ID() string { return pc.id }

// RemoteAddr returns the peer address for logging.
func (pc *ProxyConnection) RemoteAddr() string { return pc.conn.RemoteAddr() }

func (pc *ProxyConnection) dispatch(ctx context.Context, t protocol.MessageType, msg any) error {
	switch m := msg.(type) {
	case *protocol.AddRecord:
		snap, err := pc.collector.Snapshot(ctx, m.LogName)
		if err != nil {
			return fmt.Errorf("resolving snapshot for %s: %w", m.LogName, err)
		}
		snap.AddRecord(m.Data)
		pc.logger.Debug("record added", "log", m.LogName, "timestamp", m.Timestamp)
		return nil

	case *protocol.GetLogPosition:
		snap, err := pc.collector.Snapshot(ctx, m.LogName)
		if err != nil {
			return fmt.Errorf("resolving snapshot for %s: %w", m.LogName, err)
		}
		return pc.conn.Send(&protocol.LogPositionResponse{
			LogName:  m.LogName,
			Position: snap.NextLine(),
		})

	case *protocol.LogContentStatus:
		pc.mu.Lock()
		req := pc.pending[m.RequestID]
		pc.mu.Unlock()
		if req == nil {
			return nil
		}
		switch m.Status {
		case protocol.StatusFoundAndBeginSend:
			req.SetStatus(logmodel.StatusReceiving)
		case protocol.StatusEndSend:
			req.SetStatus(logmodel.StatusClosed)
		case protocol.StatusNotFound:
			req.SetStatus(logmodel.StatusNotFound)
		}
		return nil

	case *protocol.LogContentData:
		if err := m.Validate(); err != nil {
			return fmt.Errorf("invalid content batch from %s: %w", pc.RemoteAddr(), err)
		}
		pc.mu.Lock()
		req := pc.pending[m.RequestID]
		pc.mu.Unlock()
		if req == nil {
			return nil
		}
		if err := req.AddRecords(m.BeginRecord, m.Records); err != nil {
			return fmt.Errorf("content batch from %s out of order: %w", pc.RemoteAddr(), err)
		}
		return nil

	default:
		return fmt.Errorf("proxy connection: unexpected frame type %d", t)
	}
}

// RequestContent asks this connection to replay [begin, end] of logName and
// returns the ContentRequest tracking the reply. The caller is responsible
// for eventually calling forget once it no longer needs the entry.
func (pc *ProxyConnection) RequestContent(logName string, begin, end int64) (*logmodel.ContentRequest, error) {
	id := pc.nextRequestID.Add(1)
	req := logmodel.NewContentRequest(id, logName, begin, end)

	pc.mu.Lock()
	pc.pending[id] = req
	pc.mu.Unlock()

	if err := pc.conn.Send(&protocol.GetLogContent{
		RequestID:   id,
		LogName:     logName,
		BeginRecord: begin,
		EndRecord:   end,
	}); err != nil {
		pc.forget(id)
		return nil, fmt.Errorf("requesting content from %s: %w", pc.RemoteAddr(), err)
	}
	return req, nil
}

// forget drops a completed or abandoned content request.
func (pc *ProxyConnection) forget(requestID uint32) {
	pc.mu.Lock()
	delete(pc.pending, requestID)
	pc.mu.Unlock()
}

// Close closes the underlying wire connection.
func (pc *ProxyConnection) Close() error {
	return pc.conn.Close()
}
