// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/clipboard"
	"github.com/ddoffy/mobile-trackpad/internal/config"
	"github.com/ddoffy/mobile-trackpad/internal/device"
	"github.com/ddoffy/mobile-trackpad/internal/filestore"
	"github.com/ddoffy/mobile-trackpad/internal/handlers"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/server"
	"github.com/ddoffy/mobile-trackpad/internal/session"
	"github.com/ddoffy/mobile-trackpad/internal/util"
	"github.com/ddoffy/mobile-trackpad/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var showVersion bool
	flags := pflag.NewFlagSet("trackpad", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to config.toml (default ~/.mobile-trackpad/config.toml, then /etc/mobile-trackpad/config.toml)")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	host := flags.String("host", "", "interface to listen on")
	port := flags.IntP("port", "p", 0, "port to listen on")
	staticDir := flags.String("static-dir", "", "directory with the touch client")
	uploadDir := flags.String("upload-dir", "", "directory for shared files")
	stateDir := flags.String("state-dir", "", "directory for tuning.json and audit.log")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	logFormat := flags.String("log-format", "", "console or json")
	navStyle := flags.String("nav-style", "", "alt-arrow or browser-keys")
	notifyUploader := flags.Bool("notify-uploader", false, "also send file_uploaded to the uploading session")
	noMetrics := flags.Bool("no-metrics", false, "disable /metrics")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Println(handlers.Version)
		return nil
	}

	cfg, cfgFile, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// flags override the file
	if flags.Changed("host") {
		cfg.Host = *host
	}
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = *staticDir
	}
	if flags.Changed("upload-dir") {
		cfg.UploadDir = *uploadDir
	}
	if flags.Changed("state-dir") {
		if cfg.UploadDir == filepath.Join(cfg.StateDir, "uploads") && !flags.Changed("upload-dir") {
			cfg.UploadDir = filepath.Join(*stateDir, "uploads")
		}
		cfg.StateDir = *stateDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if flags.Changed("nav-style") {
		cfg.NavStyle = *navStyle
	}
	if flags.Changed("notify-uploader") {
		cfg.NotifyUploader = *notifyUploader
	}
	if *noMetrics {
		cfg.Metrics = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()
	logging.Info("mobile trackpad starting", zap.String("version", handlers.Version), zap.String("config", cfgFile))

	util.SetAuditLogDir(cfg.StateDir)

	nav, err := device.ParseNavStyle(cfg.NavStyle)
	if err != nil {
		return err
	}
	tuningPath := config.TuningPath(cfg.StateDir)
	saved, err := config.LoadTuning(tuningPath)
	if err != nil {
		logging.Warn("ignoring unreadable tuning file", zap.String("path", tuningPath), zap.Error(err))
	}

	backend, err := device.OpenUinput(cfg.DevicePath, cfg.DeviceName)
	if err != nil {
		// without the virtual device there is nothing to serve
		logging.Fatal("cannot create virtual input device", zap.Error(err))
	}
	writer := device.NewWriter(backend, device.Options{
		Nav:    nav,
		Tuning: device.Tuning{PointerSpeed: saved.PointerSpeed, ScrollDivisor: saved.ScrollDivisor},
		OnFatal: func(err error) {
			logging.Fatal("virtual input device failed", zap.Error(err))
		},
	})
	defer writer.Close()

	store, err := filestore.New(filestore.Options{
		Dir:      cfg.UploadDir,
		TTL:      cfg.FileTTL.Duration,
		Grace:    cfg.DownloadGrace.Duration,
		MaxBytes: cfg.MaxUploadBytes,
		MinFree:  cfg.MinFreeBytes,
	})
	if err != nil {
		return err
	}

	mgr := session.NewManager(writer, session.Options{
		QueueSize:      cfg.SessionQueueSize,
		InputRate:      cfg.InputRate,
		InputBurst:     cfg.InputBurst,
		NotifyUploader: cfg.NotifyUploader,
	})
	hub := clipboard.NewHub(mgr, cfg.ClipboardHistory)
	mgr.UseClipboard(hub)
	mgr.UseFiles(store)

	w, err := watcher.New(store.Dir(), func(name string) {
		if store.Forget(name) {
			logging.Warn("payload removed outside the store", zap.String("id", name))
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		logging.Warn("upload dir watcher disabled", zap.Error(err))
	}
	defer w.Stop()

	srv := server.New(server.Deps{
		Sessions:       mgr,
		Clipboard:      hub,
		Files:          store,
		Device:         writer,
		TuningPath:     tuningPath,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      cfg.StaticDir,
		Metrics:        cfg.Metrics,
	})
	srv.Routes()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go store.Run(ctx, cfg.ReapInterval.Duration)

	actualPort, err := srv.Start(cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	for _, u := range accessURLs(cfg.Host, actualPort) {
		logging.Info("open on your phone", zap.String("url", u))
	}

	<-ctx.Done()
	logging.Info("shutdown signal received, shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

// accessURLs lists the addresses a phone on the LAN can reach.
func accessURLs(host string, port int) []string {
	if host != "0.0.0.0" && host != "" && host != "::" {
		return []string{fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(port)))}
	}
	var urls []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{fmt.Sprintf("http://localhost:%d", port)}
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		urls = append(urls, fmt.Sprintf("http://%s:%d", ipnet.IP, port))
	}
	if len(urls) == 0 {
		urls = append(urls, fmt.Sprintf("http://localhost:%d", port))
	}
	return urls
}
