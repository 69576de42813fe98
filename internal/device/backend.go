// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package device owns the host's virtual pointer/keyboard and applies
// trackpad intents to it as one serialized stream.
package device

// Button is a pointer button on the virtual device.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	}
	return "unknown"
}

// Key is a keyboard key the virtual device can emit.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyLeft
	KeyRight
	KeyLeftAlt
	KeyBack
	KeyForward
)

func (k Key) String() string {
	return [...]string{"up", "down", "left", "right", "leftalt", "back", "forward"}[k]
}

// Backend is the raw host input device. Each call emits one synchronized
// report. Implementations need not be safe for concurrent use; Writer
// serializes every call.
type Backend interface {
	MoveRelative(dx, dy int32) error
	Wheel(horizontal bool, delta int32) error
	ButtonDown(b Button) error
	ButtonUp(b Button) error
	KeyDown(k Key) error
	KeyUp(k Key) error
	Close() error
}
