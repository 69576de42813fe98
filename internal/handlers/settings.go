// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ddoffy/mobile-trackpad/internal/config"
	"github.com/ddoffy/mobile-trackpad/internal/device"
)

// TuningHandler handles reading and writing pointer tuning.
// GET: Returns the tuning in effect.
// POST: Applies a partial update to the device writer and persists it.
// @Summary Get or update pointer tuning
// @Description Returns or updates pointer speed and scroll divisor.
// @ID tuningHandler
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} config.TuningSettings
// @Router /api/tuning [get]
// @Router /api/tuning [post]
func TuningHandler(w *device.Writer, settingsPath string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		current := w.Tuning()
		settings := &config.TuningSettings{
			PointerSpeed:  current.PointerSpeed,
			ScrollDivisor: current.ScrollDivisor,
		}

		switch r.Method {
		case http.MethodGet:
			writeJSON(rw, http.StatusOK, settings)
		case http.MethodPost:
			// JSON decoder will only update fields present in the request body
			if err := json.NewDecoder(r.Body).Decode(settings); err != nil {
				http.Error(rw, "invalid json", http.StatusBadRequest)
				return
			}
			next := device.Tuning{PointerSpeed: settings.PointerSpeed, ScrollDivisor: settings.ScrollDivisor}
			if err := w.SetTuning(next); err != nil {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			if settingsPath != "" {
				if err := config.SaveTuning(settingsPath, settings); err != nil {
					http.Error(rw, "failed to save settings: "+err.Error(), http.StatusInternalServerError)
					return
				}
			}
			writeJSON(rw, http.StatusOK, settings)
		default:
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
