//go:build !darwin

package keychain

import "log/slog"

// NewSystemBackend returns a MemoryBackend on non-darwin platforms.
// The Keychain is not available outside of Apple platforms; items are
// kept in memory only and will not persist across restarts. Use the
// encrypted preferences file for persistence there.
func NewSystemBackend() Backend {
	slog.Warn("keychain unavailable on this platform, using in-memory backend")
	return NewMemoryBackend()
}
