package mcpwire

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// The command allowlist is process-wide state: set at most once, then read-only for
// the remainder of the process lifetime. Transports consult it before launching
// anything, and with no allowlist configured every launch is denied.
var (
	allowlistMu  sync.RWMutex
	allowlist    []string
	allowlistSet bool
)

// SetAllowedCommands installs the process-wide list of commands permitted to be
// launched as protocol peers. Each entry is either an absolute executable path or a
// bare command basename. The allowlist can be set only once; a second call fails.
func SetAllowedCommands(commands []string) error {
	allowlistMu.Lock()
	defer allowlistMu.Unlock()

	if allowlistSet {
		return fmt.Errorf("command allowlist already set")
	}

	cleaned := make([]string, 0, len(commands))
	for _, c := range commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cleaned = append(cleaned, c)
	}

	allowlist = cleaned
	allowlistSet = true
	return nil
}

// ParseAllowedCommands splits a colon-delimited list of executable paths into
// allowlist entries, skipping empty segments.
func ParseAllowedCommands(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ":") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// CommandAllowed reports whether command may be launched. An absolute allowlist entry
// must match the command path exactly; a basename entry matches any command whose
// basename equals it.
func CommandAllowed(command string) bool {
	allowlistMu.RLock()
	defer allowlistMu.RUnlock()

	if !allowlistSet {
		return false
	}
	for _, entry := range allowlist {
		if filepath.IsAbs(entry) {
			if entry == command {
				return true
			}
			continue
		}
		if entry == filepath.Base(command) {
			return true
		}
	}
	return false
}

// resetAllowlist reopens the allowlist. Test hook only; see export_test.go.
func resetAllowlist() {
	allowlistMu.Lock()
	defer allowlistMu.Unlock()
	allowlist = nil
	allowlistSet = false
}
