// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package backend implements the agent's client for the external backend
// service: log registration, snapshot upload, verification reporting, and
// the pull endpoints for the agent's log list (startup rehydration), a
// log's snapshot history (the validator) and the agent's tunables (the
// scheduler's state-maintenance job).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lfbridge/lfbridge/internal/logmodel"
)

// AgentConfig is the tunable state the backend hands back from GET
// /agent/config: how often snapshots should be uploaded, and the maximum
// number of records all snapshots together may accumulate before an
// out-of-band upload is forced.
type AgentConfig struct {
	SnapshotIntervalSeconds int64 `json:"snapshotInterval"`
	MaxRecordCount          int64 `json:"maxRecordCount"`
}

// LogForAgent is one entry of GET /log/for_agent: a log this agent is
// responsible for, and how many records the backend has already recorded
// for it — the position the agent's Snapshot must resume from.
type LogForAgent struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Records int64  `json:"records"`
}

// Client is everything the agent side needs from the backend. It is an
// interface so the scheduler, collector and validator can be tested against
// an in-memory fake instead of a real HTTP server.
type Client interface {
	// PostLog registers a newly observed log name and returns its backend-assigned ID.
	PostLog(ctx context.Context, name string) (string, error)
	// PostSnapshot uploads a completed accumulation range. A zero-length
	// range (LastLine < FirstLine) must never be called — callers check
	// Snapshot.UploadPrep's ok return first.
	PostSnapshot(ctx context.Context, upload logmodel.SnapshotUpload) error
	// PostLogVerificationStatus reports whether a validator's pass over a
	// log's records matched the fingerprints recorded in its snapshots.
	PostLogVerificationStatus(ctx context.Context, logID string, isCorrect bool) error
	// GetLogsForAgent returns every log this agent currently owns.
	GetLogsForAgent(ctx context.Context) ([]LogForAgent, error)
	// GetSnapshotsForLog returns the ordered snapshot history backing a log's verification.
	GetSnapshotsForLog(ctx context.Context, logID string) ([]logmodel.SnapshotUpload, error)
	// GetAgentConfig returns the current tunables for this agent.
	GetAgentConfig(ctx context.Context) (AgentConfig, error)
}

// ErrBackend is returned for any non-2xx response or a response body whose
// success field is false. Only startup rehydration treats it as fatal: Run
// returns the error and the agent process exits. After startup it does not
// stop the process: the scheduler's jobs log it and skip that run or that
// log, and a failed log registration ends the proxy connection whose record
// triggered it.
type ErrBackend struct {
	Op      string
	Status  int
	Message string
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("backend: %s: status=%d message=%q", e.Op, e.Status, e.Message)
}

// HTTPClient is the concrete Client backed by net/http and a bearer token.
type HTTPClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewHTTPClient builds an HTTPClient against endpoint (e.g.
// "https://backend.internal") authenticating every request with token.
func NewHTTPClient(endpoint, token string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: performing request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode/100 != 2 {
		return &ErrBackend{Op: op, Status: resp.StatusCode, Message: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%s: decoding envelope: %w", op, err)
	}
	if !env.Success {
		return &ErrBackend{Op: op, Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decoding data: %w", op, err)
		}
	}
	return nil
}

func (c *HTTPClient) PostLog(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "post_log", http.MethodPost, "/log", map[string]string{"name": name}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) PostSnapshot(ctx context.Context, upload logmodel.SnapshotUpload) error {
	if upload.LastLine < upload.FirstLine {
		return fmt.Errorf("post_snapshot: empty range [%d,%d] must not be uploaded", upload.FirstLine, upload.LastLine)
	}
	body := map[string]any{
		"logId":       upload.LogID,
		"firstLine":   upload.FirstLine,
		"lastLine":    upload.LastLine,
		"fingerprint": upload.Fingerprint,
	}
	return c.do(ctx, "post_snapshot", http.MethodPost, "/snapshot", body, nil)
}

func (c *HTTPClient) PostLogVerificationStatus(ctx context.Context, logID string, isCorrect bool) error {
	path := fmt.Sprintf("/log/%s/verification", logID)
	return c.do(ctx, "post_log_verification", http.MethodPost, path, map[string]bool{"isCorrect": isCorrect}, nil)
}

func (c *HTTPClient) GetLogsForAgent(ctx context.Context) ([]LogForAgent, error) {
	var out []LogForAgent
	if err := c.do(ctx, "get_logs_for_agent", http.MethodGet, "/log/for_agent", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetSnapshotsForLog(ctx context.Context, logID string) ([]logmodel.SnapshotUpload, error) {
	var out []struct {
		FirstLine   int64  `json:"firstLine"`
		LastLine    int64  `json:"lastLine"`
		Fingerprint string `json:"fingerprint"`
	}
	path := fmt.Sprintf("/snapshot/agent_for_log/%s", logID)
	if err := c.do(ctx, "get_snapshots_for_log", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	snaps := make([]logmodel.SnapshotUpload, 0, len(out))
	for _, s := range out {
		snaps = append(snaps, logmodel.SnapshotUpload{
			LogID:       logID,
			FirstLine:   s.FirstLine,
			LastLine:    s.LastLine,
			Fingerprint: s.Fingerprint,
		})
	}
	return snaps, nil
}

func (c *HTTPClient) GetAgentConfig(ctx context.Context) (AgentConfig, error) {
	var out AgentConfig
	if err := c.do(ctx, "get_agent_config", http.MethodGet, "/agent/config", nil, &out); err != nil {
		return AgentConfig{}, err
	}
	return out, nil
}
