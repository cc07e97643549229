// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package proxy implements the host-side log proxy: it watches local log
// files, streams new lines to the agent as they are written, and answers
// the agent's historical content requests by replaying a record range from
// disk.
package proxy

// RecordCollector receives tailer events and is responsible for getting
// them onto the wire. A Tailer never talks to the agent connection
// directly — it only knows how to read files.
type RecordCollector interface {
	// RequestInitialize asks the agent where logName should resume from.
	// The agent's answer arrives asynchronously and is delivered back to
	// the watch manager via InitializeWatch.
	RequestInitialize(logName string)
	// OnRecordAdded is called once per complete line tailed from logName,
	// with the local time (UnixNano) the line was observed.
	OnRecordAdded(logName, data string, timestamp int64)
	// OnEmptyWrite is called when a write-notify event fired but no new
	// bytes were actually available to read — seen on some filesystems
	// when multiple writes coalesce into one notification.
	OnEmptyWrite(logName string)
	// OnFileDisappeared is called when a watched file is removed or
	// moved away while still under watch.
	OnFileDisappeared(logName string)
}
