// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration read from strings such as "60s" or "1h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the application configuration.
type Config struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
	// StateDir holds tuning.json and audit.log.
	StateDir  string `toml:"state_dir"`
	UploadDir string `toml:"upload_dir"`

	FileTTL        Duration `toml:"file_ttl"`
	ReapInterval   Duration `toml:"reap_interval"`
	DownloadGrace  Duration `toml:"download_grace"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	MinFreeBytes   uint64   `toml:"min_free_bytes"`
	NotifyUploader bool     `toml:"notify_uploader"`

	SessionQueueSize int     `toml:"session_queue_size"`
	ClipboardHistory int     `toml:"clipboard_history"`
	InputRate        float64 `toml:"input_rate"`
	InputBurst       int     `toml:"input_burst"`

	NavStyle   string `toml:"nav_style"`
	DevicePath string `toml:"device_path"`
	DeviceName string `toml:"device_name"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Metrics   bool   `toml:"metrics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	state := "/var/lib/mobile-trackpad"
	if home, err := os.UserHomeDir(); err == nil {
		state = filepath.Join(home, ".mobile-trackpad")
	}
	return &Config{
		Host:             "0.0.0.0",
		Port:             9999,
		StateDir:         state,
		UploadDir:        filepath.Join(state, "uploads"),
		FileTTL:          Duration{time.Hour},
		ReapInterval:     Duration{60 * time.Second},
		DownloadGrace:    Duration{10 * time.Minute},
		MaxUploadBytes:   50 << 20,
		MinFreeBytes:     64 << 20,
		SessionQueueSize: 64,
		ClipboardHistory: 50,
		InputRate:        250,
		InputBurst:       50,
		NavStyle:         "alt-arrow",
		DevicePath:       "/dev/uinput",
		DeviceName:       "Mobile Trackpad",
		LogLevel:         "info",
		LogFormat:        "console",
		Metrics:          true,
	}
}

// Load reads the configuration. An explicit path must exist. Without one
// the standard locations are tried in order:
// 1. ~/.mobile-trackpad/config.toml
// 2. /etc/mobile-trackpad/config.toml
//
// It returns the config (defaults for missing keys) and the file it came
// from, which is empty when no file was found.
func Load(path string) (*Config, string, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := parseFile(path, cfg); err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates := []string{"/etc/mobile-trackpad/config.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append([]string{filepath.Join(home, ".mobile-trackpad", "config.toml")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			if err := parseFile(p, cfg); err != nil {
				return nil, "", err
			}
			return cfg, p, nil
		}
	}
	return cfg, "", nil
}

func parseFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.StaticDir = expandHome(cfg.StaticDir)
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.UploadDir = expandHome(cfg.UploadDir)
	// uploads follow a relocated state dir unless placed explicitly
	if meta.IsDefined("state_dir") && !meta.IsDefined("upload_dir") {
		cfg.UploadDir = filepath.Join(cfg.StateDir, "uploads")
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("upload_dir is required"))
	}
	if c.FileTTL.Duration <= 0 {
		errs = append(errs, errors.New("file_ttl must be positive"))
	}
	if c.ReapInterval.Duration <= 0 {
		errs = append(errs, errors.New("reap_interval must be positive"))
	}
	if c.DownloadGrace.Duration <= 0 {
		errs = append(errs, errors.New("download_grace must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	if c.SessionQueueSize <= 0 {
		errs = append(errs, errors.New("session_queue_size must be positive"))
	}
	if c.ClipboardHistory <= 0 {
		errs = append(errs, errors.New("clipboard_history must be positive"))
	}
	if c.InputRate < 0 || c.InputBurst < 0 {
		errs = append(errs, errors.New("input_rate and input_burst must not be negative"))
	}
	switch c.NavStyle {
	case "", "alt-arrow", "browser-keys":
	default:
		errs = append(errs, fmt.Errorf("nav_style %q is not alt-arrow or browser-keys", c.NavStyle))
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not console or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
