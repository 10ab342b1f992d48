package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	assert.Equal(t, "hello", GetEnvString("TEST_STRING", "default"))
	assert.Equal(t, "default", GetEnvString("TEST_STRING_UNSET", "default"))
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   int
		want  int
	}{
		{"valid", "42", 10, 42},
		{"negative", "-5", 10, -5},
		{"invalid", "not-a-number", 10, 10},
		{"empty", "", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, GetEnvInt("TEST_INT", tt.def))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"capital T", "T", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"invalid", "yes", true, true},
		{"empty", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, GetEnvBool("TEST_BOOL", tt.def))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   time.Duration
		want  time.Duration
	}{
		{"seconds", "30s", time.Minute, 30 * time.Second},
		{"compound", "1h30m", time.Minute, 90 * time.Minute},
		{"invalid", "soon", time.Minute, time.Minute},
		{"empty", "", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_DURATION", tt.value)
			}
			assert.Equal(t, tt.want, GetEnvDuration("TEST_DURATION", tt.def))
		})
	}
}

func TestGetEnvMillis(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   time.Duration
		want  time.Duration
	}{
		{"plain millis", "30000", time.Second, 30 * time.Second},
		{"zero", "0", time.Second, 0},
		{"unit suffix", "45s", time.Second, 45 * time.Second},
		{"minute suffix", "2m", time.Second, 2 * time.Minute},
		{"invalid", "later", time.Second, time.Second},
		{"empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_MILLIS", tt.value)
			}
			assert.Equal(t, tt.want, GetEnvMillis("TEST_MILLIS", tt.def))
		})
	}
}
