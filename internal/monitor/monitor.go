// Package monitor implements the periodic detection loop that turns drained
// peak levels into status changes and action triggers.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/action"
	"github.com/oszuidwest/zwfm-silentjack/internal/audio"
	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/types"
)

// DefaultInterval is the evaluation period.
const DefaultInterval = time.Second

// SettingsSource provides the runtime settings, read once per tick.
type SettingsSource interface {
	Settings() config.Settings
}

// Connectivity reports whether the audio input is currently fed.
type Connectivity interface {
	Connected() bool
}

// PeakSource yields the peak accumulated since the previous call.
type PeakSource interface {
	Drain() float32
}

// CommandRunner executes the trigger command.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) error
}

// StatusEmitter broadcasts status changes.
type StatusEmitter interface {
	EmitStatus(st types.State)
	EmitCommand(argv []string)
}

// Options configures a Monitor.
type Options struct {
	Settings SettingsSource
	Source   Connectivity
	Peak     PeakSource
	Runner   CommandRunner
	Emitter  StatusEmitter
	Command  []string      // argv run on a trigger, empty for none
	Interval time.Duration // Tick period, DefaultInterval when zero
}

// RuntimeState is the detector's bookkeeping. Only the evaluation loop writes it.
type RuntimeState struct {
	Status          types.Status `json:"status"`
	Count           int          `json:"count"`           // Payload count of the current status
	PeakDB          float64      `json:"peak_db"`         // Payload level of the current status
	LastPeakDB      float64      `json:"last_peak_db"`    // Peak of the previous evaluated tick
	CurrentPeakDB   float64      `json:"current_peak_db"` // Peak of the last evaluated tick
	SilenceCount    int          `json:"silence_count"`   // Consecutive ticks below the trigger level
	NoSilenceCount  int          `json:"nosilence_count"` // Consecutive ticks at or above the trigger level
	NoDynamicCount  int          `json:"nodynamic_count"` // Consecutive ticks with too little peak movement
	GraceRemaining  int          `json:"grace_remaining"` // Ticks left before detection resumes
	Connected       bool         `json:"connected"`       // Input fed at the last tick
	AnnounceConnect bool         `json:"-"`               // Next connected tick reports CONNECTED
	Ticks           int64        `json:"ticks"`           // Evaluated ticks
	Triggers        int64        `json:"triggers"`        // Silence and no-dynamic triggers
}

// Monitor advances the detection state machine one tick at a time.
type Monitor struct {
	settings SettingsSource
	source   Connectivity
	peak     PeakSource
	runner   CommandRunner
	emitter  StatusEmitter
	command  []string
	interval time.Duration

	mu    sync.RWMutex
	state RuntimeState

	quit      chan struct{}
	quitOnce  sync.Once
	finalOnce sync.Once
}

// New creates a Monitor in the UNDEFINED state.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		settings: opts.Settings,
		source:   opts.Source,
		peak:     opts.Peak,
		runner:   opts.Runner,
		emitter:  opts.Emitter,
		command:  slices.Clone(opts.Command),
		interval: interval,
		state: RuntimeState{
			Status:          types.StatusUndefined,
			AnnounceConnect: true,
		},
		quit: make(chan struct{}),
	}
}

// State returns a copy of the current runtime state.
func (m *Monitor) State() RuntimeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Announce reports READY with the startup settings.
func (m *Monitor) Announce() {
	s := m.State()
	s.Status = types.StatusReady
	s.Count, s.PeakDB = 0, 0
	m.commit(s)
	m.emitter.EmitStatus(stateOf(s))
}

// Quit stops Run at its next wake-up. It is safe to call from any goroutine
// and more than once.
func (m *Monitor) Quit() {
	m.quitOnce.Do(func() { close(m.quit) })
}

// Run evaluates one tick per interval until ctx is cancelled, Quit is called
// or the action requests exit. It always ends with a single QUIT broadcast.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.finish()

	half := m.interval / 2
	for {
		if !m.sleep(ctx, half) || !m.sleep(ctx, m.interval-half) {
			return nil
		}

		if err := m.Tick(ctx); err != nil {
			if errors.Is(err, action.ErrExitRequested) {
				slog.Info("exit requested by action")
				return nil
			}
			return err
		}
	}
}

// Tick performs one evaluation.
func (m *Monitor) Tick(ctx context.Context) error {
	cfg := m.settings.Settings()
	s := m.State()
	s.Ticks++
	metrics.Ticks.Inc()

	if s.GraceRemaining > 0 {
		s.GraceRemaining--
		slog.Debug("grace period", "remaining", s.GraceRemaining)
		m.report(&s, types.StatusGrace, s.GraceRemaining, 0, cfg.VerboseStatus)
		return nil
	}

	s.Connected = m.source.Connected()
	if !s.Connected {
		slog.Debug("input is not connected")
		s.AnnounceConnect = true
		m.report(&s, types.StatusNotConnected, 0, 0, cfg.VerboseStatus)
		return nil
	}

	if s.AnnounceConnect {
		s.AnnounceConnect = false
		slog.Debug("input connected")
		m.report(&s, types.StatusConnected, 0, 0, cfg.VerboseStatus)
	}

	s.LastPeakDB = s.CurrentPeakDB
	s.CurrentPeakDB = audio.ToDecibels(m.peak.Drain())
	metrics.PeakDB.Set(s.CurrentPeakDB)

	if cfg.SilenceThresholdDB != 0 {
		if err := m.detectSilence(ctx, &s, cfg); err != nil {
			return err
		}
	}

	if cfg.NoDynamicThresholdDB != 0 {
		if err := m.detectNoDynamic(ctx, &s, cfg); err != nil {
			return err
		}
	}

	m.commit(s)
	return nil
}

func (m *Monitor) detectSilence(ctx context.Context, s *RuntimeState, cfg config.Settings) error {
	if s.CurrentPeakDB < cfg.SilenceThresholdDB {
		s.NoSilenceCount = 0
		s.SilenceCount++
		slog.Debug("peak below trigger level", "peak_db", round2(s.CurrentPeakDB), "silent_ticks", s.SilenceCount)
		m.report(s, types.StatusLevelBelow, s.SilenceCount, s.CurrentPeakDB, cfg.VerboseStatus)
	} else {
		s.SilenceCount = 0
		s.NoSilenceCount++
		slog.Debug("peak above trigger level", "peak_db", round2(s.CurrentPeakDB))
		m.report(s, types.StatusLevelAbove, s.NoSilenceCount, s.CurrentPeakDB, cfg.VerboseStatus)
	}

	if s.SilenceCount < cfg.SilencePeriod {
		return nil
	}

	slog.Info("silence detected", "peak_db", round2(s.CurrentPeakDB), "ticks", s.SilenceCount)
	m.report(s, types.StatusSilence, s.SilenceCount, s.CurrentPeakDB, true)

	if err := m.trigger(ctx, s, metrics.ReasonSilence); err != nil {
		return err
	}
	s.SilenceCount = 0
	s.GraceRemaining = cfg.GracePeriod
	return nil
}

// detectNoDynamic fires when consecutive peaks stay within the threshold.
// Unlike silence it broadcasts no status of its own, only run_cmd.
func (m *Monitor) detectNoDynamic(ctx context.Context, s *RuntimeState, cfg config.Settings) error {
	delta := math.Abs(s.LastPeakDB - s.CurrentPeakDB)
	if delta < cfg.NoDynamicThresholdDB {
		s.NoDynamicCount++
		slog.Debug("no dynamic", "delta_db", round2(delta), "flat_ticks", s.NoDynamicCount)
	} else {
		s.NoDynamicCount = 0
		slog.Debug("dynamic", "delta_db", round2(delta))
	}

	if s.NoDynamicCount < cfg.NoDynamicPeriod {
		return nil
	}

	slog.Info("no dynamic detected", "delta_db", round2(delta), "ticks", s.NoDynamicCount)

	if err := m.trigger(ctx, s, metrics.ReasonNoDynamic); err != nil {
		return err
	}
	s.NoDynamicCount = 0
	s.GraceRemaining = cfg.GracePeriod
	return nil
}

// trigger announces and runs the configured command, blocking the loop
// until it returns.
func (m *Monitor) trigger(ctx context.Context, s *RuntimeState, reason string) error {
	s.Triggers++
	metrics.Triggers.WithLabelValues(reason).Inc()

	if len(m.command) == 0 {
		return nil
	}

	s.Status = types.StatusRunCommand
	m.commit(*s)

	slog.Info("running command", "reason", reason, "command", m.command[0], "args", m.command[1:])
	m.emitter.EmitCommand(m.command)

	if err := m.runner.Run(ctx, m.command); err != nil {
		if errors.Is(err, action.ErrExitRequested) {
			return err
		}
		slog.Error("failed to run command", "command", m.command[0], "error", err)
	}
	return nil
}

// report sets the status payload, publishes the state and emits when asked.
func (m *Monitor) report(s *RuntimeState, status types.Status, count int, peakDB float64, emit bool) {
	s.Status = status
	s.Count = count
	s.PeakDB = peakDB
	m.commit(*s)
	if emit {
		m.emitter.EmitStatus(stateOf(*s))
	}
}

func (m *Monitor) commit(s RuntimeState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	metrics.Status.Set(float64(s.Status))
	if s.Connected {
		metrics.Connected.Set(1)
	} else {
		metrics.Connected.Set(0)
	}
}

func (m *Monitor) finish() {
	m.finalOnce.Do(func() {
		s := m.State()
		s.Status = types.StatusQuit
		s.Count, s.PeakDB = 0, 0
		m.commit(s)
		slog.Info("monitor stopped")
		m.emitter.EmitStatus(stateOf(s))
	})
}

// sleep waits for d and reports false when the loop should stop instead.
// A stop that is already pending wins over an expired timer.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !m.stopping(ctx)
	case <-ctx.Done():
		return false
	case <-m.quit:
		return false
	}
}

func (m *Monitor) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.quit:
		return true
	default:
		return false
	}
}

func stateOf(s RuntimeState) types.State {
	return types.State{Status: s.Status, Count: s.Count, PeakDB: s.PeakDB}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
