// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package session

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrSlowConsumer closes a session whose outbound queue overflowed.
	ErrSlowConsumer = errors.New("outbound queue full")
	// ErrClosed is the reason recorded for a normal disconnect.
	ErrClosed = errors.New("session closed")
	// ErrShutdown closes every session when the manager shuts down.
	ErrShutdown = errors.New("server shutting down")
)

// Session is one connected client. The send channel is never closed;
// Done signals the end of the session instead, so a late enqueue can not
// panic.
type Session struct {
	id          string
	remote      string
	connectedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error

	limiter *rate.Limiter
}

func newSession(id, remote string, queue int, limiter *rate.Limiter) *Session {
	return &Session{
		id:          id,
		remote:      remote,
		connectedAt: time.Now(),
		send:        make(chan []byte, queue),
		done:        make(chan struct{}),
		limiter:     limiter,
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Remote() string         { return s.remote }
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Outbound is drained by the connection's writer.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil while it is live.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// enqueue never blocks. It reports false if the session is gone or its
// queue is full.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) close(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// allowMotion applies the per-session pointer rate limit.
func (s *Session) allowMotion() bool {
	return s.limiter == nil || s.limiter.Allow()
}
