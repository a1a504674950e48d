// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// groupOrOtherRead covers the group and world read bits.
const groupOrOtherRead fs.FileMode = 0o044

// WarnInsecurePermissions logs a warning when the file at path is group- or
// world-readable. Config files and the account database both hold provider
// API keys. The check never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		// No file in use (defaults only).
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	if mode := info.Mode(); mode.Perm()&groupOrOtherRead != 0 {
		slog.Warn("file has insecure permissions, provider API keys may be readable by other users",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
