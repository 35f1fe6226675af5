package control

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  *osc.Message
		want Message
	}{
		{"get_status", osc.NewMessage(AddrGetStatus, "ui"), GetStatus{RemoteID: "ui"}},
		{"get_settings", osc.NewMessage(AddrGetSettings, "ui"), GetSettings{RemoteID: "ui"}},
		{"trigger level float", osc.NewMessage(AddrSetTriggerLevel, float32(-30), "x"), SetTriggerLevel{LevelDB: -30, RemoteID: "x"}},
		{"trigger level int coerced", osc.NewMessage(AddrSetTriggerLevel, int32(-30), "x"), SetTriggerLevel{LevelDB: -30, RemoteID: "x"}},
		{"silence period", osc.NewMessage(AddrSetSilencePeriod, int32(4), "x"), SetSilencePeriod{Seconds: 4, RemoteID: "x"}},
		{"silence period float coerced", osc.NewMessage(AddrSetSilencePeriod, float32(4), "x"), SetSilencePeriod{Seconds: 4, RemoteID: "x"}},
		{"grace period", osc.NewMessage(AddrSetGracePeriod, int32(10), "x"), SetGracePeriod{Seconds: 10, RemoteID: "x"}},
		{"grace period int64 in range", osc.NewMessage(AddrSetGracePeriod, int64(7), "x"), SetGracePeriod{Seconds: 7, RemoteID: "x"}},
		{"grace period fraction truncated", osc.NewMessage(AddrSetGracePeriod, float64(7.9), "x"), SetGracePeriod{Seconds: 7, RemoteID: "x"}},
		{"verbose", osc.NewMessage(AddrSetVerbose, int32(1), "x"), SetVerbose{Flag: 1, RemoteID: "x"}},
		{"quit", osc.NewMessage(AddrQuit), Quit{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type malformedCase struct {
	name string
	msg  *osc.Message
}

func TestDecode_Malformed(t *testing.T) {
	tests := []malformedCase{
		{"missing remote id", osc.NewMessage(AddrGetStatus)},
		{"extra argument", osc.NewMessage(AddrGetSettings, "ui", "more")},
		{"non-string remote id", osc.NewMessage(AddrGetStatus, int32(1))},
		{"string level", osc.NewMessage(AddrSetTriggerLevel, "-30", "x")},
		{"missing level", osc.NewMessage(AddrSetTriggerLevel, "x")},
		{"string period", osc.NewMessage(AddrSetSilencePeriod, "4", "x")},
		{"quit with args", osc.NewMessage(AddrQuit, "now")},
		{"NaN level", osc.NewMessage(AddrSetTriggerLevel, math.NaN(), "x")},
		{"infinite level", osc.NewMessage(AddrSetTriggerLevel, float32(math.Inf(-1)), "x")},
		{"level beyond float32", osc.NewMessage(AddrSetTriggerLevel, -1e300, "x")},
	}
	for _, addr := range []string{AddrSetSilencePeriod, AddrSetGracePeriod, AddrSetVerbose} {
		tests = append(tests,
			malformedCase{addr + " int64 below int32", osc.NewMessage(addr, int64(-4294967295), "x")},
			malformedCase{addr + " int64 wraps to zero", osc.NewMessage(addr, int64(-4294967296), "x")},
			malformedCase{addr + " float64 above int32", osc.NewMessage(addr, float64(3e9), "x")},
			malformedCase{addr + " NaN", osc.NewMessage(addr, math.NaN(), "x")},
		)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.msg)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_UnknownAddress(t *testing.T) {
	_, err := Decode(osc.NewMessage("/silentjack/reboot"))
	assert.ErrorIs(t, err, ErrUnknownAddress)
}

func TestParseCommand(t *testing.T) {
	msg, err := ParseCommand("set_trigger_level", json.RawMessage(`{"level": -35.5, "remote_id": "web"}`))
	require.NoError(t, err)
	assert.Equal(t, SetTriggerLevel{LevelDB: -35.5, RemoteID: "web"}, msg)

	msg, err = ParseCommand("get_settings", nil)
	require.NoError(t, err)
	assert.Equal(t, GetSettings{}, msg)

	msg, err = ParseCommand("quit", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, Quit{}, msg)

	_, err = ParseCommand("set_verbose", json.RawMessage(`{"flag": "yes"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseCommand("format_disk", nil)
	assert.ErrorIs(t, err, ErrUnknownAddress)
}
