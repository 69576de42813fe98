// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"time"
)

// Outbound message types.
const (
	TypeConnected        = "connected"
	TypeClipboardHistory = "clipboard_history"
	TypeFileUploaded     = "file_uploaded"
	TypeError            = "error"
)

// Error codes carried by ErrorNotice.
const (
	CodeProtocolError = "protocol_error"
	CodeDragConflict  = "drag_conflict"
	CodeNotDragOwner  = "not_drag_owner"
	CodeDragActive    = "drag_active"
	CodeNotFound      = "not_found"
)

// Connected greets a session right after the upgrade.
type Connected struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ClipboardHistory announces a new clipboard entry.
type ClipboardHistory struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// FileUploaded announces a stored file.
type FileUploaded struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ErrorNotice is sent only to the session whose intent failed.
type ErrorNotice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewConnected(sessionID string) Connected {
	return Connected{Type: TypeConnected, Message: "Trackpad connected successfully", SessionID: sessionID}
}

func NewClipboardHistory(content string, at time.Time, source string) ClipboardHistory {
	return ClipboardHistory{Type: TypeClipboardHistory, Content: content, Timestamp: at.Unix(), Source: source}
}

func NewFileUploaded(id, filename string, size int64) FileUploaded {
	return FileUploaded{Type: TypeFileUploaded, ID: id, Filename: filename, Size: size}
}

func NewErrorNotice(code, message string) ErrorNotice {
	return ErrorNotice{Type: TypeError, Code: code, Message: message}
}

// Encode serializes an outbound message once so it can be fanned out as-is.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
