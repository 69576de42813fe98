// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// TuningSettings are the runtime-adjustable pointer settings persisted to
// tuning.json.
type TuningSettings struct {
	PointerSpeed  float64 `json:"pointer_speed"`
	ScrollDivisor float64 `json:"scroll_divisor"`
}

// DefaultTuning returns the default tuning.
func DefaultTuning() *TuningSettings {
	return &TuningSettings{
		PointerSpeed:  1.0,
		ScrollDivisor: 10.0,
	}
}

// TuningPath is the location of tuning.json under stateDir.
func TuningPath(stateDir string) string {
	return filepath.Join(stateDir, "tuning.json")
}

var settingsMu sync.Mutex

// LoadTuning loads tuning from the given path.
// If the file does not exist, it returns the defaults.
func LoadTuning(path string) (*TuningSettings, error) {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	defaults := DefaultTuning()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults, nil
	}
	if err != nil {
		return defaults, err
	}

	var s TuningSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return defaults, err
	}

	// Merge with defaults (in case of missing fields)
	if s.PointerSpeed == 0 {
		s.PointerSpeed = defaults.PointerSpeed
	}
	if s.ScrollDivisor == 0 {
		s.ScrollDivisor = defaults.ScrollDivisor
	}

	return &s, nil
}

// SaveTuning writes tuning to the given path, replacing the old file in
// one rename.
func SaveTuning(path string, s *TuningSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tuning-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
