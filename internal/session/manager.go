// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package session tracks connected trackpad clients, routes their intents
// to the shared resources and fans notifications back out.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ddoffy/mobile-trackpad/internal/clipboard"
	"github.com/ddoffy/mobile-trackpad/internal/device"
	"github.com/ddoffy/mobile-trackpad/internal/filestore"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/protocol"
)

const DefaultQueueSize = 64

var (
	// ErrUnknownSession is returned for ids that are not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrRateLimited is returned when pointer motion is dropped.
	ErrRateLimited = errors.New("pointer motion rate limited")
)

// Device is the part of the device writer sessions drive.
type Device interface {
	Move(dx, dy float64) error
	Click(b device.Button) error
	Scroll(dx, dy float64) error
	DragStart(session string) error
	DragMove(session string, dx, dy float64) error
	DragEnd(session string) error
	ReleaseSession(session string) error
	ArrowKey(k device.Key) error
	Navigate(dir device.NavDirection) error
}

// Clipboard records and fans out clipboard content.
type Clipboard interface {
	Publish(sender, content string, source clipboard.Source) (clipboard.Entry, error)
}

// FileIndex resolves file ids named in notifications.
type FileIndex interface {
	Lookup(id string) (filestore.FileRecord, error)
}

// Options configures a Manager.
type Options struct {
	QueueSize int
	// InputRate limits move, scroll and drag_move per session, in events
	// per second. Zero disables the limit.
	InputRate  float64
	InputBurst int
	// NotifyUploader includes the uploading session in file_uploaded
	// broadcasts.
	NotifyUploader bool
}

// Manager owns the live sessions. Its lock is never held while calling the
// device, the clipboard or a session's connection.
type Manager struct {
	opts   Options
	device Device

	mu       sync.RWMutex
	sessions map[string]*Session
	clip     Clipboard
	files    FileIndex
}

// NewManager creates a manager driving dev.
func NewManager(dev Device, opts Options) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.InputRate > 0 && opts.InputBurst <= 0 {
		opts.InputBurst = int(opts.InputRate)
		if opts.InputBurst < 1 {
			opts.InputBurst = 1
		}
	}
	return &Manager{
		opts:     opts,
		device:   dev,
		sessions: make(map[string]*Session),
	}
}

// UseClipboard wires the clipboard hub. The hub itself broadcasts through
// the manager, so it is attached after construction.
func (m *Manager) UseClipboard(c Clipboard) {
	m.mu.Lock()
	m.clip = c
	m.mu.Unlock()
}

// UseFiles wires the file index used by file_notification.
func (m *Manager) UseFiles(f FileIndex) {
	m.mu.Lock()
	m.files = f
	m.mu.Unlock()
}

// Register creates a session with a bounded outbound queue.
func (m *Manager) Register(remote string) *Session {
	var limiter *rate.Limiter
	if m.opts.InputRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.opts.InputRate), m.opts.InputBurst)
	}
	s := newSession(uuid.NewString(), remote, m.opts.QueueSize, limiter)

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetSessionsActive(n)
	logging.Info("session registered", zap.String("session", s.id), zap.String("remote", remote))
	return s
}

// Unregister removes id and releases a drag it holds. Safe to call more
// than once.
func (m *Manager) Unregister(id string) {
	m.remove(id, ErrClosed)
}

func (m *Manager) remove(id string, reason error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close(reason)
	metrics.SetSessionsActive(n)
	if err := m.device.ReleaseSession(id); err != nil {
		logging.Error("release drag on disconnect failed", zap.String("session", id), zap.Error(err))
	}
	logging.Info("session unregistered", zap.String("session", id), zap.NamedError("reason", reason))
}

// Get returns the live session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Broadcast enqueues payload on every session except exclude and returns
// how many sessions accepted it. A session whose queue is full is
// disconnected; nobody else waits for it.
func (m *Manager) Broadcast(exclude string, payload []byte) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if id != exclude {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	delivered := 0
	var slow []*Session
	for _, s := range targets {
		if s.enqueue(payload) {
			delivered++
		} else {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		m.dropSlow(s)
	}
	metrics.RecordBroadcast(delivered)
	return delivered
}

// SendTo enqueues payload on one session.
func (m *Manager) SendTo(id string, payload []byte) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	if !s.enqueue(payload) {
		m.dropSlow(s)
		return ErrSlowConsumer
	}
	return nil
}

func (m *Manager) dropSlow(s *Session) {
	select {
	case <-s.done:
		// already gone, nothing was lost to backpressure
		m.remove(s.id, s.Err())
		return
	default:
	}
	metrics.RecordSlowConsumer()
	logging.Warn("disconnecting slow consumer", zap.String("session", s.id))
	m.remove(s.id, ErrSlowConsumer)
}

// AnnounceUpload tells sessions about a stored file. The uploader is
// skipped unless NotifyUploader is set.
func (m *Manager) AnnounceUpload(uploader string, rec filestore.FileRecord) int {
	payload, err := protocol.Encode(protocol.NewFileUploaded(rec.ID, rec.Filename, rec.Size))
	if err != nil {
		logging.Error("encode file_uploaded failed", zap.Error(err))
		return 0
	}
	exclude := uploader
	if m.opts.NotifyUploader {
		exclude = ""
	}
	return m.Broadcast(exclude, payload)
}

// Dispatch applies one intent from session id. Resource-local failures are
// reported to that session as an error notice and returned; a
// *device.FatalError is returned untouched.
func (m *Manager) Dispatch(id string, in protocol.Intent) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	kind := string(in.Kind())

	err := m.apply(s, in)
	switch {
	case err == nil:
		metrics.RecordIntent(kind, "ok")
		return nil
	case errors.Is(err, ErrRateLimited):
		metrics.RecordIntent(kind, "dropped")
		return err
	}

	var fatal *device.FatalError
	if errors.As(err, &fatal) {
		metrics.RecordIntent(kind, "error")
		return err
	}

	metrics.RecordIntent(kind, "rejected")
	code, msg := noticeFor(err)
	if payload, encErr := protocol.Encode(protocol.NewErrorNotice(code, msg)); encErr == nil {
		_ = m.SendTo(id, payload)
	}
	return err
}

func noticeFor(err error) (code, msg string) {
	switch {
	case errors.Is(err, device.ErrDragConflict):
		return protocol.CodeDragConflict, "another session is dragging"
	case errors.Is(err, device.ErrNotDragOwner):
		return protocol.CodeNotDragOwner, "this session does not own the drag"
	case errors.Is(err, device.ErrDragActive):
		return protocol.CodeDragActive, "use drag_move while a drag is held"
	case errors.Is(err, filestore.ErrNotFound):
		return protocol.CodeNotFound, "file not found"
	}
	return protocol.CodeProtocolError, err.Error()
}

func (m *Manager) apply(s *Session, in protocol.Intent) error {
	switch v := in.(type) {
	case protocol.Move:
		if !s.allowMotion() {
			return ErrRateLimited
		}
		return m.device.Move(v.DX, v.DY)
	case protocol.Scroll:
		if !s.allowMotion() {
			return ErrRateLimited
		}
		return m.device.Scroll(v.DX, v.DY)
	case protocol.DragMove:
		if !s.allowMotion() {
			return ErrRateLimited
		}
		return m.device.DragMove(s.id, v.DX, v.DY)
	case protocol.Click:
		return m.device.Click(deviceButton(v.Button))
	case protocol.DragStart:
		return m.device.DragStart(s.id)
	case protocol.DragEnd:
		return m.device.DragEnd(s.id)
	case protocol.Swipe:
		dir := device.NavBack
		if v.Direction == protocol.DirectionRight {
			dir = device.NavForward
		}
		return m.device.Navigate(dir)
	case protocol.ArrowKey:
		return m.device.ArrowKey(deviceKey(v.Key))
	case protocol.Clipboard:
		m.mu.RLock()
		clip := m.clip
		m.mu.RUnlock()
		if clip == nil {
			return errors.New("clipboard is not available")
		}
		_, err := clip.Publish(s.id, v.Content, clipboard.SourceClient)
		return err
	case protocol.FileNotification:
		m.mu.RLock()
		files := m.files
		m.mu.RUnlock()
		if files == nil {
			return errors.New("file exchange is not available")
		}
		rec, err := files.Lookup(v.FileID)
		if err != nil {
			return err
		}
		payload, err := protocol.Encode(protocol.NewFileUploaded(rec.ID, rec.Filename, rec.Size))
		if err != nil {
			return err
		}
		m.Broadcast(s.id, payload)
		return nil
	}
	return fmt.Errorf("unhandled intent %T", in)
}

func deviceButton(b protocol.Button) device.Button {
	switch b {
	case protocol.ButtonRight:
		return device.ButtonRight
	case protocol.ButtonMiddle:
		return device.ButtonMiddle
	}
	return device.ButtonLeft
}

func deviceKey(a protocol.Arrow) device.Key {
	switch a {
	case protocol.ArrowDown:
		return device.KeyDown
	case protocol.ArrowLeft:
		return device.KeyLeft
	case protocol.ArrowRight:
		return device.KeyRight
	}
	return device.KeyUp
}

// Shutdown disconnects every session. Queued messages are dropped.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.remove(id, ErrShutdown)
	}
}
