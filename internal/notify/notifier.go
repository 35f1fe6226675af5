// Package notify delivers alerts for triggers and shutdowns to external
// webhook and Zabbix endpoints.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/status"
	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// ErrNotConfigured is returned by SendTest when no endpoint is configured.
var ErrNotConfigured = errors.New("no notification endpoint configured")

// Alert is the notification derived from a status event.
type Alert struct {
	Event   string
	Client  string
	PeakDB  float64
	HasPeak bool
	Command []string
}

// AlertFor maps a status event to an alert. Only silence, command and quit
// events raise alerts.
func AlertFor(ev status.Event) (*Alert, bool) {
	a := &Alert{}
	if len(ev.Args) > 0 {
		a.Client, _ = ev.Args[0].(string)
	}

	switch ev.Address {
	case status.AddrSilent:
		a.Event = EventSilence
		if len(ev.Args) > 2 {
			if db, ok := ev.Args[2].(float32); ok {
				a.PeakDB, a.HasPeak = float64(db), true
			}
		}
	case status.AddrRunCommand:
		a.Event = EventCommand
		for _, arg := range ev.Args[min(2, len(ev.Args)):] {
			if s, ok := arg.(string); ok {
				a.Command = append(a.Command, s)
			}
		}
	case status.AddrQuit:
		a.Event = EventStopped
	default:
		return nil, false
	}
	return a, true
}

// ZabbixValue formats the alert as a trapper item value.
func (a *Alert) ZabbixValue() string {
	var b strings.Builder
	switch a.Event {
	case EventSilence:
		b.WriteString("event=SILENCE")
	case EventCommand:
		b.WriteString("event=RUN_CMD")
	case EventStopped:
		b.WriteString("event=STOPPED")
	default:
		b.WriteString("event=" + strings.ToUpper(a.Event))
	}
	fmt.Fprintf(&b, " client=%s", a.Client)
	if a.HasPeak {
		fmt.Fprintf(&b, " peak_db=%.1f", a.PeakDB)
	}
	if len(a.Command) > 0 {
		fmt.Fprintf(&b, " command=%q", strings.Join(a.Command, " "))
	}
	return b.String()
}

// Notifier is a status sink that forwards alerts to the configured
// webhook and Zabbix endpoints. Deliveries run in the background.
type Notifier struct {
	cfg *config.Config
	wg  sync.WaitGroup
}

// NewNotifier returns a Notifier reading endpoints from cfg.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// Publish implements status.Sink. It never blocks on the network.
func (n *Notifier) Publish(ev status.Event) error {
	alert, ok := AlertFor(ev)
	if !ok {
		return nil
	}

	cfg := n.cfg.Snapshot()
	if cfg.HasWebhook() {
		n.dispatch(func() error { return SendWebhook(cfg.WebhookURL, alert) }, "webhook "+alert.Event)
	}
	if cfg.HasZabbix() {
		n.dispatch(func() error {
			return SendZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey, alert)
		}, "zabbix "+alert.Event)
	}
	return nil
}

func (n *Notifier) dispatch(fn func() error, notifyType string) {
	n.wg.Go(func() {
		util.LogNotifyResult(fn, notifyType)
	})
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// SendTest sends a test notification to every configured endpoint.
func (n *Notifier) SendTest() error {
	cfg := n.cfg.Snapshot()
	if !cfg.HasWebhook() && !cfg.HasZabbix() {
		return ErrNotConfigured
	}

	var errs []error
	if cfg.HasWebhook() {
		if err := SendTestWebhook(cfg.WebhookURL, cfg.ClientName); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.HasZabbix() {
		if err := SendTestZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
