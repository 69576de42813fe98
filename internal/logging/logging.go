// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package logging provides structured logging with zap.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init initializes the global logger.
func Init(cfg Config) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	globalLevel.SetLevel(level)
	config.Level = globalLevel
	if cfg.OutputPath != "" {
		config.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalLogger.Store(logger)
	return nil
}

// InitDefault initializes with default development settings.
func InitDefault() {
	logger, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
	globalLogger.CompareAndSwap(nil, logger)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if l := globalLogger.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return
	}
	globalLevel.SetLevel(l)
}

// L returns the global logger.
func L() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	InitDefault()
	return globalLogger.Load()
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Fatal logs and terminates the process.
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }
