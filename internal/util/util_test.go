package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLastError(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"empty", "", ""},
		{"single line", "permission denied", "permission denied"},
		{"trailing blank lines", "warming up\nconnection refused\n\n  \n", "connection refused"},
		{"long line truncated", strings.Repeat("x", 250), strings.Repeat("x", maxErrorLineLength) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLastError(tt.output))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("open", nil))

	base := errors.New("boom")
	err := WrapError("open device", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "failed to open device: boom", err.Error())
}

func TestValidationError(t *testing.T) {
	type probe struct {
		Level float64 `json:"level" validate:"lte=-1"`
		Name  string  `json:"name" validate:"required"`
	}

	require.NoError(t, Validate.Struct(probe{Level: -10, Name: "x"}))

	err := ValidationError(Validate.Struct(probe{Level: 0, Name: "x"}))
	require.Error(t, err)
	assert.Equal(t, "probe.level: failed lte=-1 validation", err.Error())

	err = ValidationError(Validate.Struct(probe{Level: -10}))
	require.Error(t, err)
	assert.Equal(t, "probe.name: failed required validation", err.Error())

	other := errors.New("not a validation error")
	assert.Equal(t, other, ValidationError(other))
	assert.NoError(t, ValidationError(nil))
}

func TestIsConfigured(t *testing.T) {
	assert.True(t, IsConfigured("zabbix.example.org", "studio"))
	assert.False(t, IsConfigured("zabbix.example.org", ""))
	assert.True(t, IsConfigured())
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("event_log", "/var/log/silentjack/events.jsonl"))
	assert.Error(t, ValidatePath("event_log", ""))
	assert.Error(t, ValidatePath("event_log", "/var/log/../../etc/passwd"))
}

func TestFormatHumanTime(t *testing.T) {
	assert.Equal(t, "unknown", FormatHumanTime(""))
	assert.Equal(t, "unknown", FormatHumanTime("unknown"))
	assert.Equal(t, "yesterday", FormatHumanTime("yesterday"))
	assert.NotEqual(t, "2026-03-01T12:00:00Z", FormatHumanTime("2026-03-01T12:00:00Z"))
}
