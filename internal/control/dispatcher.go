package control

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// ErrRejected is returned when a setter's value is out of range.
// The setting is left unchanged and the reply is still sent.
var ErrRejected = errors.New("value rejected")

// SettingsStore applies accepted settings.
type SettingsStore interface {
	SetSilenceThreshold(db float64)
	SetSilencePeriod(ticks int)
	SetGracePeriod(ticks int)
	SetVerboseStatus(verbose bool)
}

// Replier sends the settings reply.
type Replier interface {
	EmitSettings(remoteID string)
}

// Dispatcher validates and applies control messages. It is safe for
// concurrent use from several transports.
type Dispatcher struct {
	store   SettingsStore
	replies Replier
	quit    func()
}

// NewDispatcher creates a Dispatcher. quit is called for a Quit message.
func NewDispatcher(store SettingsStore, replies Replier, quit func()) *Dispatcher {
	return &Dispatcher{store: store, replies: replies, quit: quit}
}

// Dispatch handles one message. Every message except Quit is answered with
// a settings reply, whether or not its value was accepted.
func (d *Dispatcher) Dispatch(msg Message) error {
	err := d.apply(msg)

	result := metrics.ResultAccepted
	if err != nil {
		result = metrics.ResultRejected
		slog.Debug("control message rejected", "address", msg.Address(), "error", err)
	}
	metrics.ControlMessages.WithLabelValues(msg.Address(), result).Inc()

	return err
}

func (d *Dispatcher) apply(msg Message) error {
	switch m := msg.(type) {
	case GetStatus:
		d.replies.EmitSettings(m.RemoteID)

	case GetSettings:
		d.replies.EmitSettings(m.RemoteID)

	case SetTriggerLevel:
		defer d.replies.EmitSettings(m.RemoteID)
		if err := validate(m); err != nil {
			return err
		}
		d.store.SetSilenceThreshold(float64(m.LevelDB))

	case SetSilencePeriod:
		defer d.replies.EmitSettings(m.RemoteID)
		if err := validate(m); err != nil {
			return err
		}
		d.store.SetSilencePeriod(int(m.Seconds))

	case SetGracePeriod:
		defer d.replies.EmitSettings(m.RemoteID)
		if err := validate(m); err != nil {
			return err
		}
		d.store.SetGracePeriod(int(m.Seconds))

	case SetVerbose:
		defer d.replies.EmitSettings(m.RemoteID)
		if err := validate(m); err != nil {
			return err
		}
		d.store.SetVerboseStatus(m.Flag == 1)

	case Quit:
		slog.Info("quit requested over control channel")
		d.quit()

	default:
		return fmt.Errorf("%w: %T", ErrUnknownAddress, msg)
	}
	return nil
}

func validate(msg Message) error {
	if err := util.Validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, util.ValidationError(err))
	}
	return nil
}
