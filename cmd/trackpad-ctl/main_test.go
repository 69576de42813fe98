// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"f1","filename":"notes.txt","size":12,"uploaded_at":1700000000}]`)
	})
	mux.HandleFunc("GET /download/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "f1" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "hello world!")
	})
	mux.HandleFunc("POST /api/clipboard", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"content": req["content"], "source": "Host"})
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, _ := io.Copy(io.Discard, f)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "f2", "filename": hdr.Filename, "size": n})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestFilesAndDownload(t *testing.T) {
	ts := fakeDaemon(t)
	var out bytes.Buffer

	if err := run([]string{"--server", ts.URL, "files"}, &out); err != nil {
		t.Fatalf("files: %v", err)
	}
	if !strings.Contains(out.String(), "notes.txt") || !strings.Contains(out.String(), "f1") {
		t.Fatalf("files output = %q", out.String())
	}

	dest := filepath.Join(t.TempDir(), "notes.txt")
	if err := run([]string{"--server", ts.URL, "download", "f1", dest}, &out); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "hello world!" {
		t.Fatalf("downloaded %q, %v", data, err)
	}

	if err := run([]string{"--server", ts.URL, "download", "gone", dest}, &out); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUploadAndClip(t *testing.T) {
	ts := fakeDaemon(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(src, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run([]string{"--server", ts.URL, "upload", src}, &out); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out.String(), `"filename":"a.txt"`) || !strings.Contains(out.String(), `"size":3`) {
		t.Fatalf("upload output = %q", out.String())
	}

	out.Reset()
	if err := run([]string{"--server", ts.URL, "clip", "hello", "there"}, &out); err != nil {
		t.Fatalf("clip: %v", err)
	}
	if !strings.Contains(out.String(), "hello there") {
		t.Fatalf("clip output = %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"teleport"}, io.Discard); err == nil {
		t.Fatal("expected error")
	}
}
