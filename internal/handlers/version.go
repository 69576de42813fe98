// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"net/http"
)

// VersionHandler returns version compatibility information.
// @Summary Get version info
// @Description Returns service version and session protocol version.
// @ID getVersion
// @Tags system
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/version [get]
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  Version,
		"protocol": ProtocolVersion,
	})
}
