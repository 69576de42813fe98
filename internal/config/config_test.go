// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Port != 9999 || cfg.Host != "0.0.0.0" {
		t.Fatalf("unexpected listen defaults %s", cfg.Addr())
	}
	if cfg.FileTTL.Duration != time.Hour || cfg.ReapInterval.Duration != time.Minute {
		t.Fatalf("unexpected timing defaults %v %v", cfg.FileTTL, cfg.ReapInterval)
	}
}

func TestUploadDirLivesUnderStateDir(t *testing.T) {
	cfg := DefaultConfig()
	if want := filepath.Join(cfg.StateDir, "uploads"); cfg.UploadDir != want {
		t.Fatalf("upload dir %q, want %q", cfg.UploadDir, want)
	}

	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	p := writeFile(t, dir, "config.toml", "state_dir = \""+filepath.ToSlash(state)+"\"\n")
	cfg, _, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(state, "uploads"); cfg.UploadDir != want {
		t.Fatalf("upload dir %q, want %q", cfg.UploadDir, want)
	}
}

func TestAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 9999, "0.0.0.0:9999"},
		{"::", 9999, "[::]:9999"},
		{"fe80::1", 8080, "[fe80::1]:8080"},
		{"", 9999, ":9999"},
	}
	for _, tt := range tests {
		cfg := &Config{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.toml", `
port = 8080
file_ttl = "30m"
reap_interval = "15s"
notify_uploader = true
nav_style = "browser-keys"
upload_dir = "~/uploads"
`)
	cfg, used, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != p {
		t.Fatalf("used %q, want %q", used, p)
	}
	if cfg.Port != 8080 || cfg.FileTTL.Duration != 30*time.Minute || cfg.ReapInterval.Duration != 15*time.Second {
		t.Fatalf("values not applied: %+v", cfg)
	}
	if !cfg.NotifyUploader || cfg.NavStyle != "browser-keys" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if strings.HasPrefix(cfg.UploadDir, "~") {
		t.Fatalf("home not expanded: %s", cfg.UploadDir)
	}
	// untouched keys keep defaults
	if cfg.SessionQueueSize != 64 || cfg.ClipboardHistory != 50 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad duration": `file_ttl = "soon"`,
		"unknown key":  `colour = "red"`,
		"bad syntax":   `port = `,
	}
	for name, body := range cases {
		p := writeFile(t, dir, strings.ReplaceAll(name, " ", "_")+".toml", body)
		if _, _, err := Load(p); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing explicit file should fail")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReapInterval = Duration{}
	cfg.SessionQueueSize = 0
	cfg.NavStyle = "swirl"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"reap_interval", "session_queue_size", "nav_style"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestTuningRoundTrip(t *testing.T) {
	path := TuningPath(t.TempDir())

	got, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning missing file: %v", err)
	}
	if *got != *DefaultTuning() {
		t.Fatalf("missing file should give defaults, got %+v", got)
	}

	if err := SaveTuning(path, &TuningSettings{PointerSpeed: 1.5}); err != nil {
		t.Fatalf("SaveTuning: %v", err)
	}
	got, err = LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if got.PointerSpeed != 1.5 || got.ScrollDivisor != 10 {
		t.Fatalf("loaded %+v", got)
	}
}
