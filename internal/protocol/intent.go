// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package protocol decodes inbound trackpad messages into intents and
// encodes the notifications sent back to sessions.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the value of the "type" tag of an inbound message.
type Kind string

const (
	KindMove             Kind = "move"
	KindClick            Kind = "click"
	KindScroll           Kind = "scroll"
	KindDragStart        Kind = "drag_start"
	KindDragMove         Kind = "drag_move"
	KindDragEnd          Kind = "drag_end"
	KindSwipe            Kind = "swipe"
	KindArrowKey         Kind = "arrow_key"
	KindClipboard        Kind = "clipboard"
	KindFileNotification Kind = "file_notification"
)

// Intent is a classified user action. The set of implementations is closed:
// only the types in this file satisfy it.
type Intent interface {
	Kind() Kind
	isIntent()
}

// Button names a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Direction is the horizontal direction of a swipe.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Arrow names an arrow key.
type Arrow string

const (
	ArrowUp    Arrow = "up"
	ArrowDown  Arrow = "down"
	ArrowLeft  Arrow = "left"
	ArrowRight Arrow = "right"
)

type Move struct{ DX, DY float64 }
type Click struct{ Button Button }
type Scroll struct{ DX, DY float64 }
type DragStart struct{}
type DragMove struct{ DX, DY float64 }
type DragEnd struct{}
type Swipe struct{ Direction Direction }
type ArrowKey struct{ Key Arrow }
type Clipboard struct{ Content string }
type FileNotification struct{ FileID string }

func (Move) Kind() Kind             { return KindMove }
func (Click) Kind() Kind            { return KindClick }
func (Scroll) Kind() Kind           { return KindScroll }
func (DragStart) Kind() Kind        { return KindDragStart }
func (DragMove) Kind() Kind         { return KindDragMove }
func (DragEnd) Kind() Kind          { return KindDragEnd }
func (Swipe) Kind() Kind            { return KindSwipe }
func (ArrowKey) Kind() Kind         { return KindArrowKey }
func (Clipboard) Kind() Kind        { return KindClipboard }
func (FileNotification) Kind() Kind { return KindFileNotification }

func (Move) isIntent()             {}
func (Click) isIntent()            {}
func (Scroll) isIntent()           {}
func (DragStart) isIntent()        {}
func (DragMove) isIntent()         {}
func (DragEnd) isIntent()          {}
func (Swipe) isIntent()            {}
func (ArrowKey) isIntent()         {}
func (Clipboard) isIntent()        {}
func (FileNotification) isIntent() {}

// Error reports a malformed or unrecognized inbound message.
type Error struct {
	Type   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Type == "" {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error (%s): %s", e.Type, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// envelope is the union of all inbound fields. Pointers mark fields that are
// required for some kinds so absence can be told apart from zero.
type envelope struct {
	Type      string   `json:"type"`
	DX        *float64 `json:"dx"`
	DY        *float64 `json:"dy"`
	Button    string   `json:"button"`
	Direction string   `json:"direction"`
	Key       string   `json:"key"`
	Content   *string  `json:"content"`
	FileID    string   `json:"file_id"`
}

// Decode parses one inbound text frame. Every failure is a *Error.
func Decode(data []byte) (Intent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &Error{Reason: "invalid json", Err: err}
	}
	kind := Kind(env.Type)
	switch kind {
	case KindMove, KindScroll, KindDragMove:
		if env.DX == nil || env.DY == nil {
			return nil, &Error{Type: env.Type, Reason: "dx and dy are required"}
		}
		switch kind {
		case KindMove:
			return Move{DX: *env.DX, DY: *env.DY}, nil
		case KindScroll:
			return Scroll{DX: *env.DX, DY: *env.DY}, nil
		default:
			return DragMove{DX: *env.DX, DY: *env.DY}, nil
		}
	case KindClick:
		switch b := Button(env.Button); b {
		case ButtonLeft, ButtonRight, ButtonMiddle:
			return Click{Button: b}, nil
		}
		return nil, &Error{Type: env.Type, Reason: fmt.Sprintf("unknown button %q", env.Button)}
	case KindDragStart:
		return DragStart{}, nil
	case KindDragEnd:
		return DragEnd{}, nil
	case KindSwipe:
		switch d := Direction(env.Direction); d {
		case DirectionLeft, DirectionRight:
			return Swipe{Direction: d}, nil
		}
		return nil, &Error{Type: env.Type, Reason: fmt.Sprintf("unknown direction %q", env.Direction)}
	case KindArrowKey:
		switch k := Arrow(env.Key); k {
		case ArrowUp, ArrowDown, ArrowLeft, ArrowRight:
			return ArrowKey{Key: k}, nil
		}
		return nil, &Error{Type: env.Type, Reason: fmt.Sprintf("unknown key %q", env.Key)}
	case KindClipboard:
		if env.Content == nil || *env.Content == "" {
			return nil, &Error{Type: env.Type, Reason: "content is required"}
		}
		return Clipboard{Content: *env.Content}, nil
	case KindFileNotification:
		id := strings.TrimSpace(env.FileID)
		if id == "" {
			return nil, &Error{Type: env.Type, Reason: "file_id is required"}
		}
		return FileNotification{FileID: id}, nil
	case "":
		return nil, &Error{Reason: "missing type"}
	}
	return nil, &Error{Type: env.Type, Reason: "unknown message type"}
}
