// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"net/http"
	"time"

	"github.com/ddoffy/mobile-trackpad/internal/util"
)

type healthResp struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Hostname   string `json:"hostname,omitempty"`
	OS         string `json:"os"`
	HostUptime uint64 `json:"host_uptime,omitempty"`
	Uptime     int64  `json:"uptime"`
	Sessions   int    `json:"sessions"`
	Files      int    `json:"files"`
}

// Counter reports a live count.
type Counter interface {
	Count() int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func() int

func (f CounterFunc) Count() int { return f() }

// HealthHandler returns basic health info.
func HealthHandler(sessions, files Counter) http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResp{
			Status:   "ok",
			Version:  Version,
			Uptime:   int64(time.Since(started).Seconds()),
			Sessions: sessions.Count(),
			Files:    files.Count(),
		}
		info := util.DescribeHost(r.Context())
		resp.Hostname = info.Hostname
		resp.OS = info.OS
		resp.HostUptime = info.Uptime
		writeJSON(w, http.StatusOK, resp)
	}
}
