// Package control decodes inbound control messages, applies them to the
// runtime settings and carries them over OSC.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

// Inbound control addresses.
const (
	AddrGetStatus        = status.Prefix + "/get_status"
	AddrGetSettings      = status.Prefix + "/get_settings"
	AddrSetTriggerLevel  = status.Prefix + "/set_trigger_level"
	AddrSetSilencePeriod = status.Prefix + "/set_silence_period"
	AddrSetGracePeriod   = status.Prefix + "/set_grace_period"
	AddrSetVerbose       = status.Prefix + "/set_verbose"
	AddrQuit             = status.Prefix + "/quit"
)

// Addresses lists every inbound address in registration order.
var Addresses = []string{
	AddrSetTriggerLevel,
	AddrSetSilencePeriod,
	AddrSetGracePeriod,
	AddrSetVerbose,
	AddrGetStatus,
	AddrGetSettings,
	AddrQuit,
}

var (
	// ErrMalformed is returned when a message has the wrong arity or argument types.
	ErrMalformed = errors.New("malformed control message")
	// ErrUnknownAddress is returned for addresses outside the control namespace.
	ErrUnknownAddress = errors.New("unknown control address")
)

// Message is one decoded control request.
type Message interface {
	Address() string
}

// GetStatus asks for a settings reply.
type GetStatus struct {
	RemoteID string `json:"remote_id"`
}

// GetSettings asks for a settings reply.
type GetSettings struct {
	RemoteID string `json:"remote_id"`
}

// SetTriggerLevel changes the silence threshold.
type SetTriggerLevel struct {
	LevelDB  float32 `json:"level" validate:"gt=-100,lte=-1"`
	RemoteID string  `json:"remote_id"`
}

// SetSilencePeriod changes the number of silent ticks before a trigger.
type SetSilencePeriod struct {
	Seconds  int32  `json:"seconds" validate:"gt=0"`
	RemoteID string `json:"remote_id"`
}

// SetGracePeriod changes the number of ticks detection pauses after a trigger.
type SetGracePeriod struct {
	Seconds  int32  `json:"seconds" validate:"gte=0"`
	RemoteID string `json:"remote_id"`
}

// SetVerbose toggles per-tick status broadcasts.
type SetVerbose struct {
	Flag     int32  `json:"flag" validate:"oneof=0 1"`
	RemoteID string `json:"remote_id"`
}

// Quit stops the monitor.
type Quit struct{}

func (GetStatus) Address() string        { return AddrGetStatus }
func (GetSettings) Address() string      { return AddrGetSettings }
func (SetTriggerLevel) Address() string  { return AddrSetTriggerLevel }
func (SetSilencePeriod) Address() string { return AddrSetSilencePeriod }
func (SetGracePeriod) Address() string   { return AddrSetGracePeriod }
func (SetVerbose) Address() string       { return AddrSetVerbose }
func (Quit) Address() string             { return AddrQuit }

// Decode converts an OSC message into a Message. Numeric arguments are
// coerced between integer and float types; everything else must match the
// address's argument list exactly.
func Decode(msg *osc.Message) (Message, error) {
	args := msg.Arguments

	switch msg.Address {
	case AddrGetStatus, AddrGetSettings:
		if err := arity(msg, 1); err != nil {
			return nil, err
		}
		id, err := stringArg(msg, 0)
		if err != nil {
			return nil, err
		}
		if msg.Address == AddrGetStatus {
			return GetStatus{RemoteID: id}, nil
		}
		return GetSettings{RemoteID: id}, nil

	case AddrSetTriggerLevel:
		if err := arity(msg, 2); err != nil {
			return nil, err
		}
		level, ok := toFloat32(args[0])
		if !ok {
			return nil, argError(msg, 0, "a finite float")
		}
		id, err := stringArg(msg, 1)
		if err != nil {
			return nil, err
		}
		return SetTriggerLevel{LevelDB: level, RemoteID: id}, nil

	case AddrSetSilencePeriod, AddrSetGracePeriod, AddrSetVerbose:
		if err := arity(msg, 2); err != nil {
			return nil, err
		}
		n, ok := toInt32(args[0])
		if !ok {
			return nil, argError(msg, 0, "an int32")
		}
		id, err := stringArg(msg, 1)
		if err != nil {
			return nil, err
		}
		switch msg.Address {
		case AddrSetSilencePeriod:
			return SetSilencePeriod{Seconds: n, RemoteID: id}, nil
		case AddrSetGracePeriod:
			return SetGracePeriod{Seconds: n, RemoteID: id}, nil
		default:
			return SetVerbose{Flag: n, RemoteID: id}, nil
		}

	case AddrQuit:
		if err := arity(msg, 0); err != nil {
			return nil, err
		}
		return Quit{}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, msg.Address)
}

// ParseCommand decodes a JSON command named by the last address segment,
// e.g. "set_trigger_level" with {"level": -30, "remote_id": "ui"}.
func ParseCommand(name string, data json.RawMessage) (Message, error) {
	var msg Message
	switch status.Prefix + "/" + strings.TrimPrefix(name, "/") {
	case AddrGetStatus:
		msg = &GetStatus{}
	case AddrGetSettings:
		msg = &GetSettings{}
	case AddrSetTriggerLevel:
		msg = &SetTriggerLevel{}
	case AddrSetSilencePeriod:
		msg = &SetSilencePeriod{}
	case AddrSetGracePeriod:
		msg = &SetGracePeriod{}
	case AddrSetVerbose:
		msg = &SetVerbose{}
	case AddrQuit:
		return Quit{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, name)
	}

	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, name, err)
		}
	}
	return deref(msg), nil
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *GetStatus:
		return *m
	case *GetSettings:
		return *m
	case *SetTriggerLevel:
		return *m
	case *SetSilencePeriod:
		return *m
	case *SetGracePeriod:
		return *m
	case *SetVerbose:
		return *m
	}
	return msg
}

func arity(msg *osc.Message, n int) error {
	if len(msg.Arguments) != n {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrMalformed, msg.Address, n, len(msg.Arguments))
	}
	return nil
}

func stringArg(msg *osc.Message, i int) (string, error) {
	s, ok := msg.Arguments[i].(string)
	if !ok {
		return "", argError(msg, i, "string")
	}
	return s, nil
}

func argError(msg *osc.Message, i int, want string) error {
	return fmt.Errorf("%w: %s argument %d must be %s, got %T", ErrMalformed, msg.Address, i, want, msg.Arguments[i])
}

// toFloat32 accepts any numeric argument representable as a finite float32.
func toFloat32(v any) (float32, bool) {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	case int32:
		return float32(n), true
	case int64:
		return float32(n), true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.Abs(f) > math.MaxFloat32 {
		return 0, false
	}
	return float32(f), true
}

// toInt32 accepts any numeric argument within the int32 range. Fractions
// are truncated.
func toInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	case float32:
		return floatToInt32(float64(n))
	case float64:
		return floatToInt32(n)
	}
	return 0, false
}

func floatToInt32(f float64) (int32, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, false
	}
	return int32(t), true
}
