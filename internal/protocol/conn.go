// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"net"
	"sync"
)

// Conn wraps a net.Conn with a single reader goroutine and a mutex-guarded
// writer. The source protocol this one was distilled from drove I/O with a
// non-blocking socket and a 10ms busy-poll loop; a per-connection reader
// goroutine (see Serve) is the idiomatic Go equivalent and preserves the same
// ordering guarantee (frames are read and handled strictly in arrival
// order, and writes never interleave two partial frames).
type Conn struct {
	nc net.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an already-established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// RemoteAddr returns the address of the peer, or "" if the underlying
// connection has none.
func (c *Conn) RemoteAddr() string {
	if c.nc == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// Send writes msg as a single frame. Safe for concurrent use.
func (c *Conn) Send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.nc, msg); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// Recv blocks until the next frame arrives and decodes it. Callers that want
// a dedicated read loop should call Recv in a loop from a single goroutine;
// Recv itself is not safe to call concurrently from multiple goroutines
// since the underlying reader has no buffering of its own beyond what
// ReadFrame performs per call.
func (c *Conn) Recv() (MessageType, any, error) {
	t, msg, err := ReadFrame(c.nc)
	if err != nil {
		return 0, nil, err
	}
	return t, msg, nil
}

// Close closes the underlying connection exactly once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// Serve runs a read loop on its own goroutine, invoking handle for every
// frame received, until Recv returns an error (EOF, reset, or a protocol
// violation) or the connection is closed. The error that ended the loop is
// delivered to onDone, mirroring the accept-loop / per-connection goroutine
// shape used for inbound connections elsewhere in this codebase.
func (c *Conn) Serve(handle func(t MessageType, msg any) error, onDone func(err error)) {
	go func() {
		for {
			t, msg, err := c.Recv()
			if err != nil {
				onDone(err)
				return
			}
			if err := handle(t, msg); err != nil {
				onDone(err)
				return
			}
		}
	}()
}
