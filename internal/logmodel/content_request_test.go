// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logmodel

import "testing"

func TestContentRequest_AddRecords_InOrder(t *testing.T) {
	r := NewContentRequest(1, "access.log", 10, 14)

	if err := r.AddRecords(10, []string{"a", "b"}); err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if err := r.AddRecords(12, []string{"c", "d", "e"}); err != nil {
		t.Fatalf("AddRecords: %v", err)
	}

	if !r.gotAllRequestedRecords() {
		t.Error("expected all requested records to be received")
	}
	if r.IsFinished() {
		t.Error("expected request not finished until the queue is drained")
	}

	for _, want := range []string{"a", "b", "c", "d", "e"} {
		got, ok := r.PopRecord()
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}
	if !r.IsFinished() {
		t.Error("expected request finished after queue drained")
	}
}

func TestContentRequest_AddRecords_OutOfOrder(t *testing.T) {
	r := NewContentRequest(1, "access.log", 10, 14)

	if err := r.AddRecords(11, []string{"x"}); err != ErrRecordOutOfOrder {
		t.Fatalf("expected ErrRecordOutOfOrder, got %v", err)
	}
}

func TestContentRequest_SetStatus_TerminalIsSticky(t *testing.T) {
	r := NewContentRequest(1, "access.log", 0, 0)
	r.SetStatus(StatusNotFound)
	r.SetStatus(StatusReceiving) // must be ignored

	if r.Status() != StatusNotFound {
		t.Errorf("expected terminal status to stick, got %v", r.Status())
	}
}

func TestContentRequest_PopRecord_EmptyQueue(t *testing.T) {
	r := NewContentRequest(1, "access.log", 0, 0)
	if _, ok := r.PopRecord(); ok {
		t.Error("expected PopRecord to report empty queue")
	}
}
