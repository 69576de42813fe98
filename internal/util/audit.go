// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	auditMu  sync.Mutex
	auditDir string
)

// SetAuditLogDir selects where audit.log is written. An empty dir turns
// audit logging off.
func SetAuditLogDir(dir string) {
	auditMu.Lock()
	auditDir = dir
	auditMu.Unlock()
}

// WriteAuditLog appends a timestamped line to audit.log in the audit dir.
func WriteAuditLog(format string, v ...interface{}) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditDir == "" {
		return
	}
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return
	}

	f, err := os.OpenFile(filepath.Join(auditDir, "audit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	msg := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(f, "[%s] %s\n", timestamp, msg)
}
