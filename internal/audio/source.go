package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by NewSource.
const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
)

var (
	// ErrBackendUnavailable is returned when a backend was not compiled in.
	ErrBackendUnavailable = errors.New("audio backend not available in this build")
	// ErrNoAudioDevice is returned when the requested capture device does not exist.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("audio source already started")
)

// Source is a live mono capture input.
type Source interface {
	// Start begins capture and calls fn from the capture goroutine for
	// every buffer of float32 samples. fn must not block.
	Start(ctx context.Context, fn func([]float32)) error
	// Connected reports whether anything currently feeds the input.
	Connected() bool
	// OnShutdown registers a callback fired once when the audio server goes away.
	// It must be called before Start.
	OnShutdown(fn func())
	// Devices lists the capture devices the backend can open.
	Devices() ([]Device, error)
	// Close stops capture and releases the backend.
	Close() error
}

// Device represents an available audio input device.
type Device struct {
	// ID is the identifier accepted as connect target.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
	// Default reports whether this is the backend's default input.
	Default bool `json:"default,omitzero"`
}

// SourceConfig selects and parameterises a capture backend.
type SourceConfig struct {
	Backend    string // "pulse" or "portaudio"
	ClientName string // Name the monitor registers with the audio server
	Target     string // Device to capture from, empty for the default input
	SampleRate int    // Capture rate in Hz
}

// NewSource returns the capture backend named in cfg.
func NewSource(cfg SourceConfig) (Source, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendPulse:
		return NewPulseSource(cfg), nil
	case BackendPortAudio:
		return newPortAudioSource(cfg)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}
