// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package util

import (
	"path"
	"strings"
	"unicode"
)

// maxFilenameLen bounds names echoed back in listings and headers.
const maxFilenameLen = 255

// SafeFilename reduces a client supplied name to something that can be
// listed and placed in a Content-Disposition header. Directory parts are
// dropped (both separators), control characters, quotes and backslashes are
// removed. An empty result becomes "file".
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return "file"
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || r == '"' || r == '\\' || r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	if clean == "" {
		return "file"
	}
	if len(clean) > maxFilenameLen {
		// cut on a rune boundary
		cut := clean[:maxFilenameLen]
		for len(cut) > 0 && !utf8Start(clean[len(cut)]) {
			cut = cut[:len(cut)-1]
		}
		clean = cut
	}
	return clean
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
