// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/clipboard"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/util"
)

// maxClipboardBody bounds host pushes.
const maxClipboardBody = 1 << 20

type clipboardEntry struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// ClipboardHandler serves the clipboard history on GET and accepts host
// clipboard pushes on POST. A push reaches every session.
// @Summary Clipboard history and host push
// @ID clipboard
// @Tags clipboard
// @Accept json
// @Produce json
// @Success 200 {array} clipboardEntry
// @Router /api/clipboard [get]
// @Router /api/clipboard [post]
func ClipboardHandler(hub *clipboard.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			hist := hub.History()
			out := make([]clipboardEntry, 0, len(hist))
			for _, e := range hist {
				out = append(out, toClipboardEntry(e))
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodPost:
			var req struct {
				Content string `json:"content"`
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxClipboardBody)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			e, err := hub.Publish("", req.Content, clipboard.SourceHost)
			if errors.Is(err, clipboard.ErrEmpty) {
				http.Error(w, "content is required", http.StatusBadRequest)
				return
			}
			if err != nil {
				logging.Error("host clipboard push failed", zap.Error(err))
				http.Error(w, "failed to publish", http.StatusInternalServerError)
				return
			}
			util.WriteAuditLog("Host clipboard push (%d bytes) from %s", len(req.Content), r.RemoteAddr)
			writeJSON(w, http.StatusOK, toClipboardEntry(e))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func toClipboardEntry(e clipboard.Entry) clipboardEntry {
	return clipboardEntry{Content: e.Content, Timestamp: e.Timestamp.Unix(), Source: string(e.Source)}
}
