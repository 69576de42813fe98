// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ddoffy/mobile-trackpad/internal/clipboard"
	"github.com/ddoffy/mobile-trackpad/internal/device"
	"github.com/ddoffy/mobile-trackpad/internal/filestore"
	"github.com/ddoffy/mobile-trackpad/internal/protocol"
)

// nopBackend is a device.Backend that records what it is asked to emit.
type nopBackend struct {
	mu     sync.Mutex
	events []string
}

func (b *nopBackend) rec(ev string) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}
func (b *nopBackend) MoveRelative(dx, dy int32) error { return b.rec(fmt.Sprintf("move %d %d", dx, dy)) }
func (b *nopBackend) Wheel(h bool, d int32) error     { return b.rec(fmt.Sprintf("wheel %v %d", h, d)) }
func (b *nopBackend) ButtonDown(btn device.Button) error {
	return b.rec("down " + btn.String())
}
func (b *nopBackend) ButtonUp(btn device.Button) error { return b.rec("up " + btn.String()) }
func (b *nopBackend) KeyDown(k device.Key) error       { return b.rec("kdown " + k.String()) }
func (b *nopBackend) KeyUp(k device.Key) error         { return b.rec("kup " + k.String()) }
func (b *nopBackend) Close() error                     { return nil }

func (b *nopBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type fakeFiles map[string]filestore.FileRecord

func (f fakeFiles) Lookup(id string) (filestore.FileRecord, error) {
	rec, ok := f[id]
	if !ok {
		return filestore.FileRecord{}, filestore.ErrNotFound
	}
	return rec, nil
}

func setup(t *testing.T, opts Options) (*Manager, *nopBackend) {
	t.Helper()
	be := &nopBackend{}
	m := NewManager(device.NewWriter(be, device.Options{}), opts)
	m.UseClipboard(clipboard.NewHub(m, clipboard.DefaultCapacity))
	return m, be
}

func drain(s *Session) []map[string]any {
	var out []map[string]any
	for {
		select {
		case p := <-s.Outbound():
			var msg map[string]any
			_ = json.Unmarshal(p, &msg)
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestClipboardExcludesSender(t *testing.T) {
	m, _ := setup(t, Options{})
	a := m.Register("a")
	b := m.Register("b")

	if err := m.Dispatch(a.ID(), protocol.Clipboard{Content: "hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := drain(a); len(got) != 0 {
		t.Fatalf("sender received its own clipboard: %v", got)
	}
	got := drain(b)
	if len(got) != 1 || got[0]["type"] != "clipboard_history" || got[0]["content"] != "hi" || got[0]["source"] != "Client" {
		t.Fatalf("b received %v", got)
	}
}

func TestDragConflictNotifiesRequester(t *testing.T) {
	m, be := setup(t, Options{})
	a := m.Register("a")
	b := m.Register("b")

	if err := m.Dispatch(a.ID(), protocol.DragStart{}); err != nil {
		t.Fatalf("a drag_start: %v", err)
	}
	if err := m.Dispatch(b.ID(), protocol.DragStart{}); !errors.Is(err, device.ErrDragConflict) {
		t.Fatalf("b drag_start = %v, want ErrDragConflict", err)
	}
	got := drain(b)
	if len(got) != 1 || got[0]["type"] != "error" || got[0]["code"] != protocol.CodeDragConflict {
		t.Fatalf("b notices = %v", got)
	}
	if len(drain(a)) != 0 {
		t.Fatal("owner was notified of the conflict")
	}

	if err := m.Dispatch(a.ID(), protocol.Move{DX: 5, DY: 5}); !errors.Is(err, device.ErrDragActive) {
		t.Fatalf("plain move during drag = %v", err)
	}
	if err := m.Dispatch(a.ID(), protocol.DragMove{DX: 5, DY: 5}); err != nil {
		t.Fatalf("drag_move: %v", err)
	}
	if err := m.Dispatch(a.ID(), protocol.DragEnd{}); err != nil {
		t.Fatalf("drag_end: %v", err)
	}
	if err := m.Dispatch(b.ID(), protocol.DragStart{}); err != nil {
		t.Fatalf("b drag_start after release: %v", err)
	}

	want := []string{"down left", "move 5 5", "up left", "down left"}
	got2 := be.snapshot()
	if fmt.Sprint(got2) != fmt.Sprint(want) {
		t.Fatalf("device events = %v, want %v", got2, want)
	}
}

func TestUnregisterReleasesDrag(t *testing.T) {
	m, be := setup(t, Options{})
	a := m.Register("a")
	b := m.Register("b")
	_ = m.Dispatch(a.ID(), protocol.DragStart{})

	m.Unregister(a.ID())
	m.Unregister(a.ID())

	select {
	case <-a.Done():
	default:
		t.Fatal("session not closed")
	}
	if !errors.Is(a.Err(), ErrClosed) {
		t.Fatalf("reason = %v", a.Err())
	}
	if err := m.Dispatch(b.ID(), protocol.DragStart{}); err != nil {
		t.Fatalf("drag still held after owner left: %v", err)
	}
	if ev := be.snapshot(); ev[1] != "up left" {
		t.Fatalf("device events = %v", ev)
	}
	if err := m.Dispatch(a.ID(), protocol.Move{DX: 1}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("dispatch after unregister = %v", err)
	}
}

func TestSlowConsumerIsolation(t *testing.T) {
	m, _ := setup(t, Options{QueueSize: 2})
	a := m.Register("a")
	b := m.Register("b")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			m.Broadcast("", []byte(`{"type":"tick"}`))
			// a keeps up, b never reads
			<-a.Outbound()
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow session")
	}

	select {
	case <-b.Done():
	default:
		t.Fatal("slow session was not disconnected")
	}
	if !errors.Is(b.Err(), ErrSlowConsumer) {
		t.Fatalf("b reason = %v", b.Err())
	}
	if _, ok := m.Get(a.ID()); !ok {
		t.Fatal("healthy session was dropped")
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}
	if m.Broadcast("", []byte("x")) != 1 {
		t.Fatal("disconnected session still receives broadcasts")
	}
}

func TestFileNotification(t *testing.T) {
	m, _ := setup(t, Options{})
	m.UseFiles(fakeFiles{"f1": {ID: "f1", Filename: "notes.txt", Size: 12}})
	a := m.Register("a")
	b := m.Register("b")

	if err := m.Dispatch(a.ID(), protocol.FileNotification{FileID: "f1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(drain(a)) != 0 {
		t.Fatal("sender notified of its own file")
	}
	got := drain(b)
	if len(got) != 1 || got[0]["type"] != "file_uploaded" || got[0]["id"] != "f1" {
		t.Fatalf("b received %v", got)
	}

	if err := m.Dispatch(a.ID(), protocol.FileNotification{FileID: "nope"}); !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("unknown file = %v", err)
	}
	if got := drain(a); len(got) != 1 || got[0]["code"] != protocol.CodeNotFound {
		t.Fatalf("a notices = %v", got)
	}
}

func TestAnnounceUploadPolicy(t *testing.T) {
	rec := filestore.FileRecord{ID: "f1", Filename: "a.txt", Size: 3}

	m, _ := setup(t, Options{})
	a, b := m.Register("a"), m.Register("b")
	if n := m.AnnounceUpload(a.ID(), rec); n != 1 || len(drain(a)) != 0 || len(drain(b)) != 1 {
		t.Fatalf("default policy should skip uploader, delivered %d", n)
	}

	m, _ = setup(t, Options{NotifyUploader: true})
	a, b = m.Register("a"), m.Register("b")
	if n := m.AnnounceUpload(a.ID(), rec); n != 2 || len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatalf("notify_uploader should reach everyone, delivered %d", n)
	}
}

func TestMotionRateLimit(t *testing.T) {
	m, be := setup(t, Options{InputRate: 1, InputBurst: 2})
	a := m.Register("a")

	var dropped int
	for i := 0; i < 5; i++ {
		if err := m.Dispatch(a.ID(), protocol.Move{DX: 1, DY: 0}); errors.Is(err, ErrRateLimited) {
			dropped++
		}
	}
	if dropped != 3 {
		t.Fatalf("dropped %d moves, want 3", dropped)
	}
	// clicks are never limited
	if err := m.Dispatch(a.ID(), protocol.Click{Button: protocol.ButtonLeft}); err != nil {
		t.Fatalf("click limited: %v", err)
	}
	if n := len(be.snapshot()); n != 4 {
		t.Fatalf("device saw %d events, want 4", n)
	}
}

func TestSwipeAndArrowMapping(t *testing.T) {
	m, be := setup(t, Options{})
	a := m.Register("a")
	_ = m.Dispatch(a.ID(), protocol.Swipe{Direction: protocol.DirectionRight})
	_ = m.Dispatch(a.ID(), protocol.ArrowKey{Key: protocol.ArrowDown})
	_ = m.Dispatch(a.ID(), protocol.Click{Button: protocol.ButtonMiddle})

	want := "[kdown leftalt kdown right kup right kup leftalt kdown down kup down down middle up middle]"
	if got := fmt.Sprint(be.snapshot()); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestShutdownClosesAll(t *testing.T) {
	m, _ := setup(t, Options{})
	a, b := m.Register("a"), m.Register("b")
	m.Shutdown()
	for _, s := range []*Session{a, b} {
		if !errors.Is(s.Err(), ErrShutdown) {
			t.Fatalf("session %s reason = %v", s.ID(), s.Err())
		}
	}
	if m.Count() != 0 {
		t.Fatal("sessions left after shutdown")
	}
}
