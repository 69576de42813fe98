// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package util

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// HostInfo is what the health endpoint reports about the machine.
type HostInfo struct {
	Hostname string
	OS       string
	Uptime   uint64
}

// DescribeHost identifies the host and its OS distribution using gopsutil.
func DescribeHost(ctx context.Context) HostInfo {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{OS: runtime.GOOS}
	}
	return HostInfo{
		Hostname: info.Hostname,
		OS:       distroName(info),
		Uptime:   info.Uptime,
	}
}

func distroName(info *host.InfoStat) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Windows %s (%s)", info.Platform, info.PlatformVersion)
	case "darwin":
		return fmt.Sprintf("macOS %s", info.PlatformVersion)
	case "linux":
		if info.Platform != "" {
			if info.PlatformVersion != "" {
				return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
			}
			return info.Platform
		}
	}
	return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
}
