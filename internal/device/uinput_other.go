// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

//go:build !linux

package device

import "errors"

const DefaultPath = ""

// OpenUinput is only available on Linux.
func OpenUinput(path, name string) (Backend, error) {
	return nil, errors.New("virtual input device requires linux uinput")
}
