package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// pulseWatchInterval is how often the server and source are probed.
const pulseWatchInterval = time.Second

// PulseSource captures from a PulseAudio (or PipeWire-pulse) source.
type PulseSource struct {
	cfg SourceConfig

	mu         sync.Mutex
	client     *pulse.Client
	stream     *pulse.RecordStream
	onShutdown func()
	cancel     context.CancelFunc

	present      atomic.Bool
	shutdownOnce sync.Once
}

// NewPulseSource creates a PulseAudio capture source. Nothing is opened until Start.
func NewPulseSource(cfg SourceConfig) *PulseSource {
	return &PulseSource{cfg: cfg}
}

// OnShutdown registers fn to be called once if the PulseAudio server stops answering.
func (s *PulseSource) OnShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = fn
}

// Start connects to the server, opens a mono record stream and starts the watchdog.
func (s *PulseSource) Start(ctx context.Context, fn func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyStarted
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(s.cfg.ClientName))
	if err != nil {
		return util.WrapError("connect to PulseAudio", err)
	}

	src, err := lookupPulseSource(client, s.cfg.Target)
	if err != nil {
		client.Close()
		return err
	}

	writer := pulse.Float32Writer(func(p []float32) (int, error) {
		fn(p)
		return len(p), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSource(src),
		pulse.RecordChannels(proto.ChannelMap{proto.ChannelMono}),
		pulse.RecordMediaName(s.cfg.ClientName),
	}
	if s.cfg.SampleRate > 0 {
		opts = append(opts, pulse.RecordSampleRate(s.cfg.SampleRate))
	}

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		return util.WrapError("open record stream", err)
	}

	stream.Start()
	if err := stream.Error(); err != nil {
		stream.Close()
		client.Close()
		return util.WrapError("start record stream", err)
	}

	s.client = client
	s.stream = stream
	s.present.Store(true)

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.watch(watchCtx, client, stream)

	slog.Info("audio capture started", "backend", BackendPulse, "source", src.ID(), "description", src.Name())
	return nil
}

// Connected reports whether the stream is running and its source still exists.
func (s *PulseSource) Connected() bool {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil || !stream.Running() || stream.Error() != nil {
		return false
	}
	return s.present.Load()
}

// Devices lists the PulseAudio sources, marking the server default.
func (s *PulseSource) Devices() ([]Device, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		c, err := pulse.NewClient(pulse.ClientApplicationName(s.cfg.ClientName))
		if err != nil {
			return nil, util.WrapError("connect to PulseAudio", err)
		}
		defer c.Close()
		client = c
	}

	sources, err := client.ListSources()
	if err != nil {
		return nil, util.WrapError("list sources", err)
	}

	var defaultID string
	if def, err := client.DefaultSource(); err == nil {
		defaultID = def.ID()
	}

	devices := make([]Device, 0, len(sources))
	for _, src := range sources {
		devices = append(devices, Device{
			ID:      src.ID(),
			Name:    src.Name(),
			Default: src.ID() == defaultID,
		})
	}
	return devices, nil
}

// Close stops the stream and disconnects from the server.
func (s *PulseSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.present.Store(false)
	return nil
}

// watch probes the server and the captured source until ctx is done.
// A failed probe of the server itself fires the shutdown callback.
func (s *PulseSource) watch(ctx context.Context, client *pulse.Client, stream *pulse.RecordStream) {
	ticker := time.NewTicker(pulseWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := client.DefaultSource(); err != nil {
			s.present.Store(false)
			slog.Error("PulseAudio server went away", "error", err)
			s.fireShutdown()
			return
		}

		_, err := lookupPulseSource(client, s.cfg.Target)
		present := err == nil && stream.Error() == nil
		if prev := s.present.Swap(present); prev != present {
			slog.Debug("capture source presence changed", "present", present)
		}
	}
}

func (s *PulseSource) fireShutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		fn := s.onShutdown
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func lookupPulseSource(client *pulse.Client, target string) (*pulse.Source, error) {
	if target == "" {
		src, err := client.DefaultSource()
		if err != nil {
			return nil, util.WrapError("get default source", err)
		}
		return src, nil
	}
	src, err := client.SourceByID(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoAudioDevice, target, err)
	}
	return src, nil
}
