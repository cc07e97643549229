// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/lfbridge/lfbridge/internal/logmodel"
	"github.com/lfbridge/lfbridge/internal/protocol"
)

// fakeProxy answers every GetLogContent it receives with the given records.
func fakeProxy(t *testing.T, registry *ConnRegistry, records []string) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	collector := NewLogCollector(newFakeBackend(), slog.New(slog.DiscardHandler))
	pc := NewProxyConnection(protocol.NewConn(serverSide), collector, slog.New(slog.DiscardHandler), func(*ProxyConnection, error) {})
	registry.Add(pc)
	t.Cleanup(func() { pc.Close() })

	client := protocol.NewConn(clientSide)
	t.Cleanup(func() { client.Close() })

	go func() {
		_, msg, err := client.Recv()
		if err != nil {
			return
		}
		req := msg.(*protocol.GetLogContent)
		client.Send(&protocol.LogContentStatus{RequestID: req.RequestID, LogName: req.LogName, Status: protocol.StatusFoundAndBeginSend})
		client.Send(&protocol.LogContentData{RequestID: req.RequestID, BeginRecord: req.BeginRecord, EndRecord: req.EndRecord, Records: records})
		client.Send(&protocol.LogContentStatus{RequestID: req.RequestID, LogName: req.LogName, Status: protocol.StatusEndSend})
	}()
}

func TestValidate_MatchingFingerprint(t *testing.T) {
	fb := newFakeBackend()
	records := []string{"one", "two"}
	fb.snapshots["1"] = []logmodel.SnapshotUpload{
		{LogID: "1", FirstLine: 0, LastLine: 1, Fingerprint: logmodel.FoldFingerprint(records)},
	}

	registry := NewConnRegistry()
	fakeProxy(t, registry, records)

	ok, err := Validate(context.Background(), fb, registry, logmodel.Log{Name: "access.log", ID: "1"}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Error("expected a matching fingerprint to validate as correct")
	}
}

func TestValidate_MismatchedFingerprint(t *testing.T) {
	fb := newFakeBackend()
	fb.snapshots["1"] = []logmodel.SnapshotUpload{
		{LogID: "1", FirstLine: 0, LastLine: 1, Fingerprint: "not-the-real-fingerprint"},
	}

	registry := NewConnRegistry()
	fakeProxy(t, registry, []string{"one", "two"})

	ok, err := Validate(context.Background(), fb, registry, logmodel.Log{Name: "access.log", ID: "1"}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Error("expected a mismatched fingerprint to validate as incorrect")
	}
}
