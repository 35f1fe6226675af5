// Package status builds the outbound status events and fans them out to sinks.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/types"
)

// Prefix is the address namespace of every control and status message.
const Prefix = "/silentjack"

// Outbound event addresses.
const (
	AddrStarted       = Prefix + "/started"
	AddrNotConnected  = Prefix + "/not_connected"
	AddrConnected     = Prefix + "/connected"
	AddrLevel         = Prefix + "/level"
	AddrSilent        = Prefix + "/silent"
	AddrGrace         = Prefix + "/grace"
	AddrQuit          = Prefix + "/quit"
	AddrSettings      = Prefix + "/settings"
	AddrRunCommand    = Prefix + "/run_cmd"
	AddrUnknownStatus = Prefix + "/unknown_status"
)

// Level direction payloads.
const (
	levelBelow int32 = 0
	levelAbove int32 = 1
)

// Event is one outbound status message. Args hold only string, int32 and
// float32 values and always begin with the client name and listen port.
type Event struct {
	Address string    `json:"address"`
	Args    []any     `json:"args"`
	Time    time.Time `json:"ts"`
}

// Sink receives every emitted event.
type Sink interface {
	Publish(ev Event) error
}

// SettingsSource provides the current runtime settings.
type SettingsSource interface {
	Settings() config.Settings
}

type namedSink struct {
	name string
	sink Sink
}

// Emitter builds status events and delivers them to all registered sinks.
// It is safe for concurrent use by the evaluation loop and the control dispatcher.
type Emitter struct {
	clientName string
	settings   SettingsSource

	mu         sync.RWMutex
	listenPort string
	sinks      []namedSink

	now func() time.Time
}

// New creates an Emitter. The listen port is empty until SetListenPort.
func New(clientName string, settings SettingsSource) *Emitter {
	return &Emitter{
		clientName: clientName,
		settings:   settings,
		now:        time.Now,
	}
}

// SetListenPort records the bound control port sent in every event.
func (e *Emitter) SetListenPort(port string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listenPort = port
}

// AddSink registers a destination for events.
func (e *Emitter) AddSink(name string, s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, namedSink{name: name, sink: s})
}

// EmitStatus broadcasts the event describing st.
func (e *Emitter) EmitStatus(st types.State) {
	e.publish(e.StatusEvent(st))
}

// EmitSettings broadcasts the current settings, echoing remoteID.
func (e *Emitter) EmitSettings(remoteID string) {
	e.publish(e.SettingsEvent(remoteID))
}

// EmitCommand broadcasts the argv of the command about to run.
func (e *Emitter) EmitCommand(argv []string) {
	e.publish(e.CommandEvent(argv))
}

// StatusEvent builds the event for st without sending it.
func (e *Emitter) StatusEvent(st types.State) Event {
	args := e.header()

	var addr string
	switch st.Status {
	case types.StatusReady:
		s := e.settings.Settings()
		addr = AddrStarted
		args = append(args,
			int32(s.SilencePeriod),
			int32(s.GracePeriod),
			float32(s.SilenceThresholdDB),
			boolArg(s.VerboseStatus),
		)
	case types.StatusNotConnected:
		addr = AddrNotConnected
	case types.StatusConnected:
		addr = AddrConnected
	case types.StatusLevelBelow:
		addr = AddrLevel
		args = append(args, levelBelow, int32(st.Count), float32(st.PeakDB))
	case types.StatusLevelAbove:
		addr = AddrLevel
		args = append(args, levelAbove, int32(st.Count), float32(st.PeakDB))
	case types.StatusSilence:
		addr = AddrSilent
		args = append(args, float32(st.PeakDB))
	case types.StatusGrace:
		addr = AddrGrace
		args = append(args, int32(st.Count))
	case types.StatusQuit:
		addr = AddrQuit
	default:
		addr = AddrUnknownStatus
	}

	return e.event(addr, args)
}

// SettingsEvent builds the settings reply without sending it.
func (e *Emitter) SettingsEvent(remoteID string) Event {
	s := e.settings.Settings()
	args := append(e.header(),
		int32(s.SilencePeriod),
		int32(s.GracePeriod),
		float32(s.SilenceThresholdDB),
		boolArg(s.VerboseStatus),
		remoteID,
	)
	return e.event(AddrSettings, args)
}

// CommandEvent builds the run_cmd announcement without sending it.
func (e *Emitter) CommandEvent(argv []string) Event {
	args := e.header()
	for _, a := range argv {
		args = append(args, a)
	}
	return e.event(AddrRunCommand, args)
}

func (e *Emitter) header() []any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return []any{e.clientName, e.listenPort}
}

func (e *Emitter) event(addr string, args []any) Event {
	return Event{Address: addr, Args: args, Time: e.now()}
}

func (e *Emitter) publish(ev Event) {
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()

	metrics.EventsEmitted.WithLabelValues(ev.Address).Inc()

	for _, s := range sinks {
		if err := s.sink.Publish(ev); err != nil {
			metrics.SinkErrors.WithLabelValues(s.name).Inc()
			slog.Warn("failed to publish status event", "sink", s.name, "address", ev.Address, "error", err)
		}
	}
}

func boolArg(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
