// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package clipboard keeps the shared clipboard history and fans new entries
// out to connected sessions.
package clipboard

import (
	"errors"
	"sync"
	"time"

	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/protocol"
)

// DefaultCapacity is the number of entries kept in history.
const DefaultCapacity = 50

// Source tells where an entry came from.
type Source string

const (
	SourceHost   Source = "Host"
	SourceClient Source = "Client"
)

// ErrEmpty is returned when publishing empty content.
var ErrEmpty = errors.New("clipboard content is empty")

// Entry is one clipboard history item.
type Entry struct {
	Content   string
	Timestamp time.Time
	Source    Source
}

// Broadcaster enqueues an encoded message on every session except exclude.
// It must not block.
type Broadcaster interface {
	Broadcast(exclude string, payload []byte) int
}

// Hub holds the history, newest first. History mutation and the broadcast
// of the new entry happen in one critical section so the order sessions
// observe matches the history order.
type Hub struct {
	mu       sync.Mutex
	history  []Entry
	capacity int
	bcast    Broadcaster
	now      func() time.Time
}

// NewHub creates a hub that fans out through b.
func NewHub(b Broadcaster, capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		history:  make([]Entry, 0, capacity),
		capacity: capacity,
		bcast:    b,
		now:      time.Now,
	}
}

// Publish records content and broadcasts a clipboard_history notification to
// every session except sender. Host pushes pass an empty sender and reach
// everyone.
func (h *Hub) Publish(sender, content string, source Source) (Entry, error) {
	if content == "" {
		return Entry{}, ErrEmpty
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	e := Entry{Content: content, Timestamp: h.now(), Source: source}
	if len(h.history) == h.capacity {
		h.history = h.history[:h.capacity-1]
	}
	h.history = append(h.history, Entry{})
	copy(h.history[1:], h.history)
	h.history[0] = e

	payload, err := protocol.Encode(protocol.NewClipboardHistory(e.Content, e.Timestamp, string(e.Source)))
	if err != nil {
		return e, err
	}
	metrics.RecordClipboardPublish(string(source))
	if h.bcast != nil {
		h.bcast.Broadcast(sender, payload)
	}
	return e, nil
}

// History returns a snapshot, newest first.
func (h *Hub) History() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.history))
	copy(out, h.history)
	return out
}

// Len returns the number of entries held.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}
