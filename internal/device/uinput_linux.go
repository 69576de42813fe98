// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

//go:build linux

package device

import (
	"errors"
	"fmt"

	"github.com/bendahl/uinput"
)

// DefaultPath is the uinput control node on Linux.
const DefaultPath = "/dev/uinput"

// uinputBackend drives a virtual mouse and a virtual keyboard created
// through /dev/uinput. Works under both X11 and Wayland since events enter
// the kernel input stack.
type uinputBackend struct {
	mouse    uinput.Mouse
	keyboard uinput.Keyboard
}

// OpenUinput creates the virtual devices. The caller owns the returned
// Backend and must Close it.
func OpenUinput(path, name string) (Backend, error) {
	if path == "" {
		path = DefaultPath
	}
	mouse, err := uinput.CreateMouse(path, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("create virtual mouse on %s: %w", path, err)
	}
	keyboard, err := uinput.CreateKeyboard(path, []byte(name+" Keyboard"))
	if err != nil {
		mouse.Close()
		return nil, fmt.Errorf("create virtual keyboard on %s: %w", path, err)
	}
	return &uinputBackend{mouse: mouse, keyboard: keyboard}, nil
}

func (b *uinputBackend) MoveRelative(dx, dy int32) error {
	return b.mouse.Move(dx, dy)
}

func (b *uinputBackend) Wheel(horizontal bool, delta int32) error {
	return b.mouse.Wheel(horizontal, delta)
}

func (b *uinputBackend) ButtonDown(btn Button) error {
	switch btn {
	case ButtonRight:
		return b.mouse.RightPress()
	case ButtonMiddle:
		return b.mouse.MiddlePress()
	}
	return b.mouse.LeftPress()
}

func (b *uinputBackend) ButtonUp(btn Button) error {
	switch btn {
	case ButtonRight:
		return b.mouse.RightRelease()
	case ButtonMiddle:
		return b.mouse.MiddleRelease()
	}
	return b.mouse.LeftRelease()
}

func (b *uinputBackend) KeyDown(k Key) error {
	return b.keyboard.KeyDown(keyCode(k))
}

func (b *uinputBackend) KeyUp(k Key) error {
	return b.keyboard.KeyUp(keyCode(k))
}

func (b *uinputBackend) Close() error {
	return errors.Join(b.mouse.Close(), b.keyboard.Close())
}

func keyCode(k Key) int {
	switch k {
	case KeyUp:
		return uinput.KeyUp
	case KeyDown:
		return uinput.KeyDown
	case KeyLeft:
		return uinput.KeyLeft
	case KeyRight:
		return uinput.KeyRight
	case KeyLeftAlt:
		return uinput.KeyLeftalt
	case KeyBack:
		return uinput.KeyBack
	case KeyForward:
		return uinput.KeyForward
	}
	return 0
}
