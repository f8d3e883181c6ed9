package mcpwire

// ResetAllowlist reopens the process-wide command allowlist so tests can install
// their own entries.
func ResetAllowlist() {
	resetAllowlist()
}
