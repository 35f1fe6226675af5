//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// portAudioStaleAfter is how long without a callback before the input counts as unfed.
const portAudioStaleAfter = time.Second

// portAudioFramesPerBuffer is the callback buffer size.
const portAudioFramesPerBuffer = 512

// PortAudioSource captures from a PortAudio input device.
type PortAudioSource struct {
	cfg SourceConfig

	mu     sync.Mutex
	stream *portaudio.Stream

	lastCallback atomic.Int64 // unix nanos of the most recent buffer
}

func newPortAudioSource(cfg SourceConfig) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, util.WrapError("initialize PortAudio", err)
	}
	return &PortAudioSource{cfg: cfg}, nil
}

// OnShutdown is a no-op: PortAudio has no server that can go away.
func (s *PortAudioSource) OnShutdown(func()) {}

// Start opens a mono float32 input stream on the configured device.
func (s *PortAudioSource) Start(_ context.Context, fn func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyStarted
	}

	device, err := s.findDevice()
	if err != nil {
		return err
	}

	rate := float64(s.cfg.SampleRate)
	if rate <= 0 {
		rate = device.DefaultSampleRate
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      rate,
		FramesPerBuffer: portAudioFramesPerBuffer,
	}, func(in []float32) {
		s.lastCallback.Store(time.Now().UnixNano())
		fn(in)
	})
	if err != nil {
		return util.WrapError("open audio stream", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return util.WrapError("start audio stream", err)
	}

	s.stream = stream
	slog.Info("audio capture started", "backend", BackendPortAudio, "device", device.Name, "sample_rate", rate)
	return nil
}

// Connected reports whether a buffer arrived recently.
func (s *PortAudioSource) Connected() bool {
	last := s.lastCallback.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < portAudioStaleAfter
}

// Devices lists input-capable PortAudio devices.
func (s *PortAudioSource) Devices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list devices", err)
	}

	defaultDevice, _ := portaudio.DefaultInputDevice()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}
	return result, nil
}

// Close stops the stream and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		s.stream = nil
	}
	return portaudio.Terminate()
}

func (s *PortAudioSource) findDevice() (*portaudio.DeviceInfo, error) {
	if s.cfg.Target == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, util.WrapError("get default input device", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("enumerate devices", err)
	}
	for _, d := range devices {
		if d.Name == s.cfg.Target && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAudioDevice, s.cfg.Target)
}
