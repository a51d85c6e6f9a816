package hwtimer

import (
	"errors"
	"testing"
	"time"
)

// TestTenMillisecond verifies the heartbeat configuration
// Given: divider 16 on the 80 MHz base clock
// When: the alarm is computed for 100 Hz
// Then: the alarm is 50000 counts and the period is 10ms
func TestTenMillisecond(t *testing.T) {
	cfg := TenMillisecond()

	if cfg.AlarmValue != 50000 {
		t.Fatalf("AlarmValue = %d, want 50000", cfg.AlarmValue)
	}
	if got := Period(cfg.Divider, cfg.AlarmValue); got != 10*time.Millisecond {
		t.Fatalf("Period() = %v, want 10ms", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestAlarmForAndPeriod_Degenerate(t *testing.T) {
	if got := AlarmFor(0, 100); got != 0 {
		t.Fatalf("AlarmFor(0, 100) = %d, want 0", got)
	}
	if got := AlarmFor(16, 0); got != 0 {
		t.Fatalf("AlarmFor(16, 0) = %d, want 0", got)
	}
	if got := Period(16, 0); got != 0 {
		t.Fatalf("Period(16, 0) = %v, want 0", got)
	}
	if got := Period(80, 1000); got != time.Millisecond {
		t.Fatalf("Period(80, 1000) = %v, want 1ms", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"count down", func(c *Config) { c.Direction = CountDown }},
		{"no auto reload", func(c *Config) { c.AutoReload = false }},
		{"divider too small", func(c *Config) { c.Divider = 1 }},
		{"divider too large", func(c *Config) { c.Divider = 65537 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TenMillisecond()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrTimerConfig) {
				t.Fatalf("Validate() error = %v, want %v", err, ErrTimerConfig)
			}
		})
	}
}
