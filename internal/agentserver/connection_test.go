// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/lfbridge/lfbridge/internal/logmodel"
	"github.com/lfbridge/lfbridge/internal/protocol"
)

func newTestPair(t *testing.T) (*protocol.Conn, *ProxyConnection, chan error) {
	t.Helper()
	serverSide, clientSide := net.Pipe()

	fb := newFakeBackend()
	collector := NewLogCollector(fb, slog.New(slog.DiscardHandler))

	done := make(chan error, 1)
	pc := NewProxyConnection(protocol.NewConn(serverSide), collector, slog.New(slog.DiscardHandler), func(_ *ProxyConnection, err error) {
		done <- err
	})
	t.Cleanup(func() { pc.Close() })

	client := protocol.NewConn(clientSide)
	t.Cleanup(func() { client.Close() })
	return client, pc, done
}

func TestProxyConnection_AddRecordThenGetLogPosition(t *testing.T) {
	client, _, _ := newTestPair(t)

	if err := client.Send(&protocol.AddRecord{LogName: "x", Data: "hello"}); err != nil {
		t.Fatalf("Send AddRecord: %v", err)
	}
	if err := client.Send(&protocol.GetLogPosition{LogName: "x"}); err != nil {
		t.Fatalf("Send GetLogPosition: %v", err)
	}

	_, msg, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	resp, ok := msg.(*protocol.LogPositionResponse)
	if !ok {
		t.Fatalf("expected LogPositionResponse, got %T", msg)
	}
	if resp.Position != 1 {
		t.Errorf("expected resume position 1 after one AddRecord, got %d", resp.Position)
	}
}

func TestProxyConnection_RequestContent_RoundTrip(t *testing.T) {
	client, pc, _ := newTestPair(t)

	go func() {
		_, msg, err := client.Recv()
		if err != nil {
			return
		}
		req := msg.(*protocol.GetLogContent)
		client.Send(&protocol.LogContentStatus{RequestID: req.RequestID, LogName: req.LogName, Status: protocol.StatusFoundAndBeginSend})
		client.Send(&protocol.LogContentData{RequestID: req.RequestID, BeginRecord: 0, EndRecord: 1, Records: []string{"a", "b"}})
		client.Send(&protocol.LogContentStatus{RequestID: req.RequestID, LogName: req.LogName, Status: protocol.StatusEndSend})
	}()

	contentReq, err := pc.RequestContent("access.log", 0, 1)
	if err != nil {
		t.Fatalf("RequestContent: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for contentReq.Status() != logmodel.StatusClosed {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for content stream to close")
		case <-time.After(5 * time.Millisecond):
		}
	}

	first, _ := contentReq.PopRecord()
	second, _ := contentReq.PopRecord()
	if first != "a" || second != "b" {
		t.Errorf("expected records a,b, got %s,%s", first, second)
	}
}
