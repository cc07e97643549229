// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lfbridge/lfbridge/internal/logmodel"
)

// pollInterval is how often AgentContentRequest re-checks every member's
// status while waiting for a lead to emerge or finish. Content replay is a
// cold-path operation (validator catch-up, not the hot tailing path), so a
// short poll is simpler than threading a notification channel through
// logmodel.ContentRequest for a handful of callers.
const pollInterval = 25 * time.Millisecond

// ErrContentNotFound is returned when every connection that was asked for a
// range reported the log as not watched.
var ErrContentNotFound = errors.New("agentserver: no connected proxy has the requested log")

// member pairs a connection with the ContentRequest it was asked to serve.
type member struct {
	conn *ProxyConnection
	req  *logmodel.ContentRequest
}

// AgentContentRequest broadcasts one logical [begin, end] content request
// for logName across every connected proxy and elects exactly one winner,
// so a log watched redundantly by more than one proxy never has its
// records delivered — and folded into a validator's fingerprint — twice.
func AgentContentRequest(ctx context.Context, registry *ConnRegistry, logName string, begin, end int64) ([]string, error) {
	conns := registry.Snapshot()
	if len(conns) == 0 {
		return nil, ErrContentNotFound
	}

	members := make([]*member, 0, len(conns))
	for _, c := range conns {
		req, err := c.RequestContent(logName, begin, end)
		if err != nil {
			continue
		}
		members = append(members, &member{conn: c, req: req})
	}
	if len(members) == 0 {
		return nil, ErrContentNotFound
	}
	defer func() {
		for _, m := range members {
			m.conn.forget(m.req.RequestID)
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lead *member
	for {
		if lead == nil {
			lead = electLead(members)
		}
		if lead != nil {
			switch {
			case lead.req.Status() == logmodel.StatusNotFound:
				lead = nil // this member turned out not to have it either; keep looking
			case lead.req.IsFinished():
				return drain(lead.req), nil
			case lead.req.Status() == logmodel.StatusClosed:
				// The proxy sent its end-of-stream status, and frames are
				// handled in arrival order, so every record it sent is already
				// queued. This also finishes a stream that ended before [begin,
				// end] was complete — e.g. the file ended early; the caller sees
				// fewer records than requested and a validator comparing
				// fingerprints reports a mismatch rather than this call hanging
				// until ctx expires.
				return drain(lead.req), nil
			}
		}

		if allTerminalNotFound(members) {
			return nil, ErrContentNotFound
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for content from %s: %w", logName, ctx.Err())
		case <-ticker.C:
		}
	}
}

// electLead scans members newest-to-oldest (the registry snapshot order)
// and picks the first one that has confirmed it has the range, dropping
// every other member — including any still StatusPending — so none of them
// delivers a duplicate. If no member has confirmed yet, nothing is dropped
// and nil is returned, so a pending member might still become the lead.
func electLead(members []*member) *member {
	for _, m := range members {
		switch m.req.Status() {
		case logmodel.StatusReceiving, logmodel.StatusClosed:
			for _, other := range members {
				if other != m {
					other.req.SetStatus(logmodel.StatusDropped)
				}
			}
			return m
		}
	}
	return nil
}

func allTerminalNotFound(members []*member) bool {
	for _, m := range members {
		if m.req.Status() != logmodel.StatusNotFound {
			return false
		}
	}
	return true
}

func drain(req *logmodel.ContentRequest) []string {
	var out []string
	for {
		rec, ok := req.PopRecord()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}
