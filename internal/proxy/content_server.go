// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package proxy

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"github.com/lfbridge/lfbridge/internal/protocol"
)

// batchSize caps how many records a single LogContentData frame carries.
const batchSize = 20

// ContentServer answers GetLogContent requests by replaying a record range
// straight from disk, independent of whatever the live Tailer is doing.
type ContentServer struct {
	manager *WatchManager
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewContentServer builds a ContentServer over manager. If recordsPerSecond
// is <= 0, historical replay is unthrottled.
func NewContentServer(manager *WatchManager, logger *slog.Logger, recordsPerSecond int) *ContentServer {
	var limiter *rate.Limiter
	if recordsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(recordsPerSecond), batchSize)
	}
	return &ContentServer{manager: manager, logger: logger, limiter: limiter}
}

// Send delivers one frame to the requesting agent connection.
type Send func(msg any) error

// HandleGetLogContent streams [req.BeginRecord, req.EndRecord] for
// req.LogName in batches of batchSize. A found log's stream is always
// terminated by an END_SEND status, even when the file ends before
// req.EndRecord; a log that isn't watched gets a single NOT_FOUND status
// and nothing else. Either way the agent's content request state machine
// reaches a terminal state.
func (c *ContentServer) HandleGetLogContent(ctx context.Context, req *protocol.GetLogContent, send Send) error {
	path, ok := c.manager.Path(req.LogName)
	if !ok {
		return send(&protocol.LogContentStatus{
			RequestID: req.RequestID,
			LogName:   req.LogName,
			Status:    protocol.StatusNotFound,
		})
	}

	if err := send(&protocol.LogContentStatus{
		RequestID: req.RequestID,
		LogName:   req.LogName,
		Status:    protocol.StatusFoundAndBeginSend,
	}); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for content replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var skipped int64
	for skipped < req.BeginRecord && scanner.Scan() {
		skipped++
	}

	cur := req.BeginRecord
	for cur <= req.EndRecord {
		batchEnd := cur + batchSize - 1
		if batchEnd > req.EndRecord {
			batchEnd = req.EndRecord
		}

		var records []string
		for i := cur; i <= batchEnd; i++ {
			if !scanner.Scan() {
				break
			}
			records = append(records, strings.TrimRight(scanner.Text(), "\r\n"))
		}
		if len(records) == 0 {
			break
		}

		if c.limiter != nil {
			if err := c.limiter.WaitN(ctx, len(records)); err != nil {
				return fmt.Errorf("throttling content replay: %w", err)
			}
		}

		last := cur + int64(len(records)) - 1
		if err := send(&protocol.LogContentData{
			RequestID:   req.RequestID,
			BeginRecord: cur,
			EndRecord:   last,
			Records:     records,
		}); err != nil {
			return err
		}
		c.logger.Debug("sent content batch", "log", req.LogName, "begin", cur, "end", last)

		if len(records) < int(batchEnd-cur+1) {
			break // ran out of file before the requested range was satisfied
		}
		cur = last + 1
	}

	return send(&protocol.LogContentStatus{
		RequestID: req.RequestID,
		LogName:   req.LogName,
		Status:    protocol.StatusEndSend,
	})
}
