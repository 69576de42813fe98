// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package clipboard

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

type sent struct {
	exclude string
	payload []byte
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeBroadcaster) Broadcast(exclude string, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{exclude: exclude, payload: payload})
	return 1
}

func TestHistoryBoundedNewestFirst(t *testing.T) {
	h := NewHub(&fakeBroadcaster{}, DefaultCapacity)
	for i := 0; i < 120; i++ {
		if _, err := h.Publish("A", fmt.Sprintf("item-%d", i), SourceClient); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		if h.Len() > DefaultCapacity {
			t.Fatalf("history length %d exceeds %d", h.Len(), DefaultCapacity)
		}
	}
	hist := h.History()
	if len(hist) != DefaultCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultCapacity, len(hist))
	}
	for i, e := range hist {
		want := fmt.Sprintf("item-%d", 119-i)
		if e.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, e.Content, want)
		}
	}
}

func TestPublishExcludesSender(t *testing.T) {
	b := &fakeBroadcaster{}
	h := NewHub(b, 5)
	if _, err := h.Publish("session-a", "hello", SourceClient); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := h.Publish("", "from host", SourceHost); err != nil {
		t.Fatalf("host publish: %v", err)
	}
	if len(b.sent) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(b.sent))
	}
	if b.sent[0].exclude != "session-a" {
		t.Fatalf("client publish excluded %q, want session-a", b.sent[0].exclude)
	}
	if b.sent[1].exclude != "" {
		t.Fatalf("host publish excluded %q, want nobody", b.sent[1].exclude)
	}

	var msg struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(b.sent[1].payload, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Type != "clipboard_history" || msg.Content != "from host" || msg.Source != "Host" {
		t.Fatalf("unexpected payload %+v", msg)
	}
}

func TestPublishRejectsEmpty(t *testing.T) {
	b := &fakeBroadcaster{}
	h := NewHub(b, 5)
	if _, err := h.Publish("A", "", SourceClient); err != ErrEmpty {
		t.Fatalf("error = %v, want ErrEmpty", err)
	}
	if h.Len() != 0 || len(b.sent) != 0 {
		t.Fatal("empty publish must not record or broadcast")
	}
}

func TestBroadcastOrderMatchesHistory(t *testing.T) {
	b := &fakeBroadcaster{}
	h := NewHub(b, DefaultCapacity)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.Publish(fmt.Sprintf("s%d", i), fmt.Sprintf("c%d", i), SourceClient)
		}(i)
	}
	wg.Wait()

	hist := h.History()
	if len(hist) != len(b.sent) {
		t.Fatalf("history %d vs broadcasts %d", len(hist), len(b.sent))
	}
	for i, s := range b.sent {
		var msg struct {
			Content string `json:"content"`
		}
		_ = json.Unmarshal(s.payload, &msg)
		// broadcasts are oldest first, history is newest first
		if want := hist[len(hist)-1-i].Content; msg.Content != want {
			t.Fatalf("broadcast %d = %q, history says %q", i, msg.Content, want)
		}
	}
}
