// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// emptyFingerprint is the fingerprint of an empty accumulation: sha256("").
var emptyFingerprint = hashFold("", "")

// Snapshot accumulates records for one log between uploads. cumHash folds
// every record's data into a single running SHA-256 hex digest; firstLine is
// the absolute index of the first record folded into the current
// accumulation, and lineCount is how many records have been folded since
// the last reset.
//
// All mutating methods are guarded by mu so a proxy connection goroutine
// adding records and a scheduler goroutine uploading the snapshot never race.
type Snapshot struct {
	Log Log

	mu        sync.Mutex
	cumHash   string
	firstLine int64
	lineCount int64
}

// NewSnapshot creates a Snapshot for log, resuming from firstLine — the
// absolute index of the next record to accept.
func NewSnapshot(log Log, firstLine int64) *Snapshot {
	return &Snapshot{
		Log:       log,
		cumHash:   emptyFingerprint,
		firstLine: firstLine,
	}
}

// hashFold folds data into prev the same way for every record: the new
// digest is sha256(prev + data), hex-encoded. Starting prev from
// emptyFingerprint and folding every record's data in order makes the final
// digest depend on the
// exact sequence of records, not just their multiset.
func hashFold(prev, data string) string {
	h := sha256.Sum256([]byte(prev + data))
	return hex.EncodeToString(h[:])
}

// FoldFingerprint folds records in order starting from the empty
// fingerprint, the same way a Snapshot folds them as they arrive. A
// validator uses this to recompute the fingerprint an uploaded snapshot
// claims over a historical record range, independent of any live Snapshot.
func FoldFingerprint(records []string) string {
	h := emptyFingerprint
	for _, r := range records {
		h = hashFold(h, r)
	}
	return h
}

// AddRecord folds data into the running fingerprint and advances LineCount.
func (s *Snapshot) AddRecord(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cumHash = hashFold(s.cumHash, data)
	s.lineCount++
}

// NextLine returns the absolute index the next accepted record will occupy.
func (s *Snapshot) NextLine() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstLine + s.lineCount
}

// LineCount returns how many records have been folded since the last reset.
func (s *Snapshot) LineCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineCount
}

// SnapshotUpload is the data a Snapshot hands to the backend client on
// upload: the record range it covers and the fingerprint over that range.
type SnapshotUpload struct {
	LogID       string
	FirstLine   int64
	LastLine    int64
	Fingerprint string
}

// UploadPrep atomically captures the current accumulation as a
// SnapshotUpload and resets the accumulator, so a record arriving between
// the capture and the reset can never be lost or double-counted. If no
// records have been folded since the last reset, ok is false and callers
// must skip the upload — an empty snapshot carries no information.
func (s *Snapshot) UploadPrep() (upload SnapshotUpload, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lineCount == 0 {
		return SnapshotUpload{}, false
	}

	upload = SnapshotUpload{
		LogID:       s.Log.ID,
		FirstLine:   s.firstLine,
		LastLine:    s.firstLine + s.lineCount - 1,
		Fingerprint: s.cumHash,
	}

	s.firstLine += s.lineCount
	s.lineCount = 0
	s.cumHash = emptyFingerprint

	return upload, true
}
