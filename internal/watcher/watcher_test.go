// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReportsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"abc", ".upload-1.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	removed := make(chan string, 4)
	s, err := New(dir, func(name string) { removed <- name })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := os.Remove(filepath.Join(dir, ".upload-1.tmp")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "abc")); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-removed:
		if name != "abc" {
			t.Fatalf("reported %q, want abc", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no remove event")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir(), func(string) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()
}
