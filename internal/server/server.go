// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/clipboard"
	"github.com/ddoffy/mobile-trackpad/internal/device"
	"github.com/ddoffy/mobile-trackpad/internal/filestore"
	"github.com/ddoffy/mobile-trackpad/internal/handlers"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/session"
)

// Deps are the components the routes serve.
type Deps struct {
	Sessions  *session.Manager
	Clipboard *clipboard.Hub
	Files     *filestore.Store
	Device    *device.Writer
	// TuningPath is where POST /api/tuning persists; empty skips saving.
	TuningPath     string
	MaxUploadBytes int64
	StaticDir      string
	Metrics        bool
}

// Server represents the HTTP server configuration and mux.
type Server struct {
	Mux        *http.ServeMux
	deps       Deps
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server for deps. Call Routes before Start.
func New(deps Deps) *Server {
	return &Server{
		Mux:  http.NewServeMux(),
		deps: deps,
	}
}

// Routes registers all HTTP handlers on the server mux.
func (s *Server) Routes() {
	d := s.deps
	s.Mux.Handle("GET /ws", handlers.TrackpadHandler(d.Sessions))

	s.Mux.Handle("GET /files", handlers.FilesHandler(d.Files))
	s.Mux.Handle("POST /upload", handlers.UploadHandler(d.Files, d.Sessions, d.MaxUploadBytes))
	s.Mux.Handle("GET /download/{id}", handlers.DownloadHandler(d.Files))

	s.Mux.Handle("/api/clipboard", handlers.ClipboardHandler(d.Clipboard))
	s.Mux.Handle("/api/tuning", handlers.TuningHandler(d.Device, d.TuningPath))
	s.Mux.HandleFunc("GET /api/version", handlers.VersionHandler)
	s.Mux.Handle("GET /health", handlers.HealthHandler(d.Sessions, handlers.CounterFunc(d.Files.Len)))

	if d.Metrics {
		s.Mux.Handle("GET /metrics", metrics.Handler())
	}

	// Static client page
	if d.StaticDir != "" {
		abs, err := filepath.Abs(d.StaticDir)
		if err == nil {
			s.Mux.Handle("/", http.FileServer(http.Dir(abs)))
			logging.Info("serving static files", zap.String("dir", abs))
		}
	} else {
		s.Mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body><h1>Mobile Trackpad</h1><p>Set static_dir to serve the touch client.</p></body></html>"))
		})
	}
}

// Handler returns the mux wrapped in the request metrics middleware.
func (s *Server) Handler() http.Handler {
	return metrics.Middleware(s.Mux)
}

// Start listens on addr and serves in a goroutine. It returns the bound
// port, which differs from the requested one when addr asks for port 0.
func (s *Server) Start(addr string) (int, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	port := ln.Addr().(*net.TCPAddr).Port
	logging.Info("server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("server error", zap.Error(err))
		}
	}()
	return port, nil
}

// Shutdown stops accepting connections, disconnects every trackpad
// session and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	// hijacked websocket connections are not tracked by http.Server
	s.deps.Sessions.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
