package utils

import "testing"

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		ginMode  string
		logLevel string
		want     bool
	}{
		{ginMode: "release", logLevel: "info", want: false},
		{ginMode: "release", logLevel: "", want: false},
		{ginMode: "release", logLevel: "DEBUG", want: true},
		{ginMode: "debug", logLevel: "info", want: true},
		{ginMode: "", logLevel: "", want: true},
	}

	for _, tt := range tests {
		if got := DebugEnabled(tt.ginMode, tt.logLevel); got != tt.want {
			t.Errorf("DebugEnabled(%q, %q) = %v, want %v", tt.ginMode, tt.logLevel, got, tt.want)
		}
	}
}
