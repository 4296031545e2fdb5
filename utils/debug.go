package utils

import "strings"

// DebugEnabled reports whether verbose logging should be on: LOG_LEVEL=debug
// always wins, otherwise anything but GIN_MODE=release counts as debug.
func DebugEnabled(ginMode, logLevel string) bool {
	if strings.EqualFold(strings.TrimSpace(logLevel), "debug") {
		return true
	}
	return ginMode != "release"
}
