// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeValid(t *testing.T) {
	cases := []struct {
		in   string
		want Intent
	}{
		{`{"type":"move","dx":3.5,"dy":-2}`, Move{DX: 3.5, DY: -2}},
		{`{"type":"scroll","dx":0,"dy":12}`, Scroll{DX: 0, DY: 12}},
		{`{"type":"drag_move","dx":1,"dy":1}`, DragMove{DX: 1, DY: 1}},
		{`{"type":"click","button":"left"}`, Click{Button: ButtonLeft}},
		{`{"type":"click","button":"right"}`, Click{Button: ButtonRight}},
		{`{"type":"click","button":"middle"}`, Click{Button: ButtonMiddle}},
		{`{"type":"drag_start"}`, DragStart{}},
		{`{"type":"drag_end"}`, DragEnd{}},
		{`{"type":"swipe","direction":"left"}`, Swipe{Direction: DirectionLeft}},
		{`{"type":"arrow_key","key":"down"}`, ArrowKey{Key: ArrowDown}},
		{`{"type":"clipboard","content":"hello"}`, Clipboard{Content: "hello"}},
		{`{"type":"file_notification","file_id":" abc "}`, FileNotification{FileID: "abc"}},
	}
	for _, tc := range cases {
		got, err := Decode([]byte(tc.in))
		if err != nil {
			t.Fatalf("Decode(%s) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Decode(%s) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		in     string
		reason string
	}{
		{`not json`, "invalid json"},
		{`{"dx":1}`, "missing type"},
		{`{"type":"teleport"}`, "unknown message type"},
		{`{"type":"move","dx":1}`, "dx and dy are required"},
		{`{"type":"click","button":"back"}`, "unknown button"},
		{`{"type":"swipe","direction":"up"}`, "unknown direction"},
		{`{"type":"arrow_key","key":"home"}`, "unknown key"},
		{`{"type":"clipboard"}`, "content is required"},
		{`{"type":"clipboard","content":""}`, "content is required"},
		{`{"type":"file_notification"}`, "file_id is required"},
	}
	for _, tc := range cases {
		_, err := Decode([]byte(tc.in))
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("Decode(%s) error = %v, want *Error", tc.in, err)
		}
		if !strings.Contains(perr.Reason, tc.reason) {
			t.Fatalf("Decode(%s) reason = %q, want %q", tc.in, perr.Reason, tc.reason)
		}
	}
}

func TestEncodeClipboardHistory(t *testing.T) {
	at := time.Unix(1700000000, 0)
	b, err := Encode(NewClipboardHistory("hi", at, "Client"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"clipboard_history","content":"hi","timestamp":1700000000,"source":"Client"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}
