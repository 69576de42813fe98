// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package device

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrDragConflict is returned by DragStart while another session holds the drag.
	ErrDragConflict = errors.New("drag is owned by another session")
	// ErrNotDragOwner is returned by drag-scoped calls from a session that does not hold the drag.
	ErrNotDragOwner = errors.New("session does not own the drag")
	// ErrDragActive is returned by Move while a drag is held: plain moves
	// would otherwise drag with someone else's button.
	ErrDragActive = errors.New("plain move rejected while a drag is held")
)

// FatalError means the virtual device stopped accepting events. The device
// is acquired once at startup, so there is no way back from this.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("virtual device failed during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NavStyle selects how back/forward navigation is expressed on the host.
type NavStyle string

const (
	NavAltArrow    NavStyle = "alt-arrow"
	NavBrowserKeys NavStyle = "browser-keys"
)

// ParseNavStyle validates a configured navigation style.
func ParseNavStyle(s string) (NavStyle, error) {
	switch NavStyle(s) {
	case NavAltArrow, "":
		return NavAltArrow, nil
	case NavBrowserKeys:
		return NavBrowserKeys, nil
	}
	return "", fmt.Errorf("unknown navigation style %q", s)
}

// NavDirection is a history navigation step.
type NavDirection int

const (
	NavBack NavDirection = iota
	NavForward
)

// scrollDeadZone drops wheel components too small to be intentional.
const scrollDeadZone = 0.1

// Tuning adjusts how client deltas are scaled onto the device.
type Tuning struct {
	PointerSpeed  float64
	ScrollDivisor float64
}

// DefaultTuning matches raw client deltas for the pointer and ten client
// units per wheel notch.
func DefaultTuning() Tuning {
	return Tuning{PointerSpeed: 1.0, ScrollDivisor: 10.0}
}

// Validate rejects values that would stall or invert the device.
func (t Tuning) Validate() error {
	if !(t.PointerSpeed > 0) || math.IsInf(t.PointerSpeed, 0) {
		return fmt.Errorf("pointer speed must be positive, got %v", t.PointerSpeed)
	}
	if !(t.ScrollDivisor > 0) || math.IsInf(t.ScrollDivisor, 0) {
		return fmt.Errorf("scroll divisor must be positive, got %v", t.ScrollDivisor)
	}
	return nil
}

// Options configures a Writer.
type Options struct {
	Nav    NavStyle
	Tuning Tuning
	// OnFatal is called once, outside the device lock, when the backend fails.
	OnFatal func(error)
}

// Writer is the single owner of the host input device. Every action runs
// under one mutex so concurrent sessions never interleave half-emitted
// actions such as a press without its release.
type Writer struct {
	mu        sync.Mutex
	backend   Backend
	nav       NavStyle
	tuning    Tuning
	dragOwner string
	// fractional wheel travel carried between scroll intents
	wheelRestX float64
	wheelRestY float64
	failed     error
	onFatal    func(error)
}

// NewWriter takes ownership of backend.
func NewWriter(backend Backend, opts Options) *Writer {
	if opts.Nav == "" {
		opts.Nav = NavAltArrow
	}
	if opts.Tuning.Validate() != nil {
		opts.Tuning = DefaultTuning()
	}
	return &Writer{
		backend: backend,
		nav:     opts.Nav,
		tuning:  opts.Tuning,
		onFatal: opts.OnFatal,
	}
}

// apply runs fn under the device lock. Backend errors surface as
// *FatalError; once one occurs every later call fails with it.
func (w *Writer) apply(fn func() error) error {
	w.mu.Lock()
	if w.failed != nil {
		err := w.failed
		w.mu.Unlock()
		return err
	}
	err := fn()
	var fatal *FatalError
	first := false
	if errors.As(err, &fatal) {
		w.failed = fatal
		first = true
	}
	w.mu.Unlock()
	if first && w.onFatal != nil {
		w.onFatal(fatal)
	}
	return err
}

func emit(op string, err error) error {
	if err != nil {
		return &FatalError{Op: op, Err: err}
	}
	return nil
}

// Move emits a relative pointer displacement.
func (w *Writer) Move(dx, dy float64) error {
	return w.apply(func() error {
		if w.dragOwner != "" {
			return ErrDragActive
		}
		return w.moveLocked("move", dx, dy)
	})
}

func (w *Writer) moveLocked(op string, dx, dy float64) error {
	x, y := scale(dx*w.tuning.PointerSpeed), scale(dy*w.tuning.PointerSpeed)
	if x == 0 && y == 0 {
		return nil
	}
	return emit(op, w.backend.MoveRelative(x, y))
}

// Click emits a press immediately followed by a release.
func (w *Writer) Click(b Button) error {
	return w.apply(func() error {
		if err := emit("click", w.backend.ButtonDown(b)); err != nil {
			return err
		}
		return emit("click", w.backend.ButtonUp(b))
	})
}

// Scroll emits wheel motion. Vertical and horizontal components drive
// independent axes and keep their sign: the client has already applied any
// natural-scroll inversion.
func (w *Writer) Scroll(dx, dy float64) error {
	return w.apply(func() error {
		div := w.tuning.ScrollDivisor
		if math.Abs(dy) > scrollDeadZone {
			w.wheelRestY += dy / div
			if notches := clamp32(math.Trunc(w.wheelRestY)); notches != 0 {
				w.wheelRestY -= float64(notches)
				if err := emit("scroll", w.backend.Wheel(false, notches)); err != nil {
					return err
				}
			}
		}
		if math.Abs(dx) > scrollDeadZone {
			w.wheelRestX += dx / div
			if notches := clamp32(math.Trunc(w.wheelRestX)); notches != 0 {
				w.wheelRestX -= float64(notches)
				if err := emit("scroll", w.backend.Wheel(true, notches)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DragStart grants session exclusive drag ownership and holds the left
// button down. Fails with ErrDragConflict, without touching the device,
// if any session already owns the drag.
func (w *Writer) DragStart(session string) error {
	return w.apply(func() error {
		if w.dragOwner != "" {
			return ErrDragConflict
		}
		if err := emit("drag_start", w.backend.ButtonDown(ButtonLeft)); err != nil {
			return err
		}
		w.dragOwner = session
		return nil
	})
}

// DragMove moves the pointer while the button stays held. Only the drag
// owner may call it; anyone else gets ErrNotDragOwner and no device effect.
func (w *Writer) DragMove(session string, dx, dy float64) error {
	return w.apply(func() error {
		if w.dragOwner == "" || w.dragOwner != session {
			return ErrNotDragOwner
		}
		return w.moveLocked("drag_move", dx, dy)
	})
}

// DragEnd releases the button and clears ownership. A call from a session
// that does not own the drag is a no-op reported as ErrNotDragOwner.
func (w *Writer) DragEnd(session string) error {
	return w.apply(func() error {
		if w.dragOwner == "" || w.dragOwner != session {
			return ErrNotDragOwner
		}
		w.dragOwner = ""
		return emit("drag_end", w.backend.ButtonUp(ButtonLeft))
	})
}

// ReleaseSession ends the drag if session owns it. Used when a session goes
// away so the button is never left held.
func (w *Writer) ReleaseSession(session string) error {
	err := w.DragEnd(session)
	if errors.Is(err, ErrNotDragOwner) {
		return nil
	}
	return err
}

// DragOwner reports the session currently holding the drag.
func (w *Writer) DragOwner() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dragOwner, w.dragOwner != ""
}

// ArrowKey emits a key press immediately followed by its release.
func (w *Writer) ArrowKey(k Key) error {
	return w.apply(func() error {
		return w.tapLocked("arrow_key", k)
	})
}

func (w *Writer) tapLocked(op string, k Key) error {
	if err := emit(op, w.backend.KeyDown(k)); err != nil {
		return err
	}
	return emit(op, w.backend.KeyUp(k))
}

// Navigate emits the host's back or forward combination.
func (w *Writer) Navigate(dir NavDirection) error {
	return w.apply(func() error {
		if w.nav == NavBrowserKeys {
			if dir == NavForward {
				return w.tapLocked("navigate", KeyForward)
			}
			return w.tapLocked("navigate", KeyBack)
		}
		arrow := KeyLeft
		if dir == NavForward {
			arrow = KeyRight
		}
		if err := emit("navigate", w.backend.KeyDown(KeyLeftAlt)); err != nil {
			return err
		}
		if err := w.tapLocked("navigate", arrow); err != nil {
			return err
		}
		return emit("navigate", w.backend.KeyUp(KeyLeftAlt))
	})
}

// Tuning returns the current scaling parameters.
func (w *Writer) Tuning() Tuning {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tuning
}

// SetTuning replaces the scaling parameters for subsequent intents.
func (w *Writer) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	w.tuning = t
	w.wheelRestX, w.wheelRestY = 0, 0
	w.mu.Unlock()
	return nil
}

// Close releases a held drag and destroys the virtual device.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.dragOwner != "" && w.failed == nil {
		errs = append(errs, w.backend.ButtonUp(ButtonLeft))
		w.dragOwner = ""
	}
	errs = append(errs, w.backend.Close())
	return errors.Join(errs...)
}

// scale rounds a delta to the nearest device unit, clamped to int32.
func scale(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp32(math.Round(v))
}

func clamp32(v float64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
