// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import "sync"

// ConnRegistry tracks every currently connected proxy. More than one proxy
// can legitimately watch the same log name — redundant hosts tailing a
// shared mount, for instance — so a content request must be able to reach
// all of them and let AgentContentRequest pick a winner.
type ConnRegistry struct {
	mu    sync.Mutex
	conns []*ProxyConnection // newest connection last
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{}
}

// Add registers a newly accepted connection.
func (r *ConnRegistry) Add(c *ProxyConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, c)
}

// Remove drops a connection that has disconnected.
func (r *ConnRegistry) Remove(c *ProxyConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.conns {
		if cur.ID() == c.ID() {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// Snapshot returns the currently connected proxies, newest-first — the
// order AgentContentRequest elects a lead in, since the most recently
// connected proxy is the most likely to be the live owner of a log.
func (r *ConnRegistry) Snapshot() []*ProxyConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ProxyConnection, len(r.conns))
	for i, c := range r.conns {
		out[len(r.conns)-1-i] = c
	}
	return out
}

// Len reports how many proxies are currently connected.
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
