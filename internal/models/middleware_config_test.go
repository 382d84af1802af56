package models

import (
	"testing"
	"time"
)

func TestTimeoutConfigResolve(t *testing.T) {
	cfg := TimeoutConfig{Timeout: 30 * time.Second, MaxTimeout: 2 * time.Minute}
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 30 * time.Second},
		{"5s", 5 * time.Second},
		{"10m", 2 * time.Minute},
		{"-1s", 30 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Resolve(tt.header); got != tt.want {
			t.Errorf("Resolve(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}

	fixed := TimeoutConfig{Timeout: time.Second}
	if got := fixed.Resolve("5s"); got != time.Second {
		t.Errorf("override applied without MaxTimeout: %v", got)
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.Max != 1000 || cfg.Window != time.Minute || cfg.KeyFunc != nil {
		t.Errorf("defaults = %+v", cfg)
	}
}
