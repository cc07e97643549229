// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logmodel

import (
	"errors"
	"sync"
)

// RequestStatus is the state of a ContentRequest.
type RequestStatus int

const (
	StatusPending   RequestStatus = iota // sent, awaiting the proxy's LogContentStatus
	StatusReceiving                      // proxy confirmed the range exists and is streaming it
	StatusClosed                         // proxy sent the terminal end-of-stream status
	StatusNotFound                       // proxy reported the log is not watched
	StatusDropped                        // superseded by another request for the same range, never chosen as lead
)

// IsTerminal reports whether status ends the request's lifecycle.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusNotFound || s == StatusDropped
}

var ErrRecordOutOfOrder = errors.New("logmodel: record begin index does not match next expected index")

// ContentRequest tracks one outstanding GetLogContent against a single
// proxy connection: the records that have arrived so far, and whether the
// proxy has finished sending (or ever will).
type ContentRequest struct {
	RequestID   uint32
	LogName     string
	BeginRecord int64
	EndRecord   int64

	mu            sync.Mutex
	status        RequestStatus
	queue         []string
	nextRecordIdx int64
}

// NewContentRequest creates a ContentRequest awaiting the proxy's response.
func NewContentRequest(requestID uint32, logName string, begin, end int64) *ContentRequest {
	return &ContentRequest{
		RequestID:     requestID,
		LogName:       logName,
		BeginRecord:   begin,
		EndRecord:     end,
		status:        StatusPending,
		nextRecordIdx: begin,
	}
}

// SetStatus transitions the request. Terminal statuses are sticky: once set,
// further calls are ignored, matching how the source model deletes a
// terminated request from its handler map instead of letting it flip state
// again.
func (r *ContentRequest) SetStatus(status RequestStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.IsTerminal() {
		return
	}
	r.status = status
}

// Status returns the current status.
func (r *ContentRequest) Status() RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AddRecords appends a contiguous batch starting at begin. It returns
// ErrRecordOutOfOrder if begin does not equal the next expected index —
// the proxy must stream records to the agent in order, without gaps or
// repeats.
func (r *ContentRequest) AddRecords(begin int64, records []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if begin != r.nextRecordIdx {
		return ErrRecordOutOfOrder
	}
	r.queue = append(r.queue, records...)
	r.nextRecordIdx += int64(len(records))
	return nil
}

// PopRecord removes and returns the oldest buffered record, or ok=false if
// the queue is currently empty.
func (r *ContentRequest) PopRecord() (rec string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return "", false
	}
	rec = r.queue[0]
	r.queue = r.queue[1:]
	return rec, true
}

// gotAllRequestedRecords reports whether every record in [BeginRecord,
// EndRecord] has been received (queued or already popped).
func (r *ContentRequest) gotAllRequestedRecords() bool {
	return r.nextRecordIdx == r.EndRecord+1
}

// IsFinished reports whether the request both received everything it was
// promised and the consumer has drained the queue — the point at which this
// request no longer has any work left to contribute.
func (r *ContentRequest) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gotAllRequestedRecords() && len(r.queue) == 0
}

// QueueLen reports how many records are currently buffered.
func (r *ContentRequest) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
