// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

// Version is the current version of the service.
const Version = "0.4.0"

// ProtocolVersion is bumped when session messages change incompatibly.
const ProtocolVersion = 1
