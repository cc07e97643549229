// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package logmodel holds the Log/Record/Snapshot types and the cumulative
// fingerprint they maintain, independent of how records arrive (wire
// protocol, local tail) or where snapshots are uploaded to (the backend
// client).
package logmodel

// Log identifies one watched log file as known to the backend. ID is the
// backend's path-like or opaque identifier for the log — never assumed to
// be numeric, since a backend is free to hand out any string.
type Log struct {
	Name string
	ID   string
}

// Record is a single line observed in a log, as it is exchanged on the
// wire or folded into a Snapshot's fingerprint. Timestamp is advisory —
// when observed it is the tailing proxy's local clock reading taken the
// moment the line was read, carried end-to-end but never folded into the
// fingerprint.
type Record struct {
	Data      string
	Timestamp int64
}
