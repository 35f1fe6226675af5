// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultClientName         = "silentjack"
	DefaultBackend            = "pulse"
	DefaultSampleRate         = 48000
	DefaultSilenceThreshold   = -40.0
	DefaultSilencePeriod      = 1
	DefaultNoDynamicThreshold = 0.0 // Disabled
	DefaultNoDynamicPeriod    = 10
	DefaultGracePeriod        = 0
	DefaultTickIntervalMs     = 1000
	DefaultListenPort         = "7777"
	DefaultSendHost           = "127.0.0.1"
	DefaultSendPort           = 7778
	DefaultZabbixPort         = 10051
)

// RandomPort requests an OS-assigned control port.
const RandomPort = "?"

// ErrQuietAndVerbose is returned when both console modes are requested.
var ErrQuietAndVerbose = errors.New("can't be quiet and verbose at the same time")

// AudioConfig holds audio input settings.
type AudioConfig struct {
	Backend    string `json:"backend" validate:"oneof=pulse portaudio"` // Capture backend
	Connect    string `json:"connect"`                                  // Source or device to capture, empty for default
	ClientName string `json:"client_name" validate:"required,max=64"`   // Name registered with the audio server and sent in every event
	SampleRate int    `json:"sample_rate" validate:"gte=0,lte=384000"`  // Capture rate in Hz, 0 = backend default
}

// DetectionConfig holds silence and no-dynamic detection parameters.
// Periods are counted in ticks.
type DetectionConfig struct {
	SilenceThresholdDB   float64 `json:"silence_threshold_db" validate:"lte=0"`   // Trigger level in dB, 0 disables
	SilencePeriod        int     `json:"silence_period" validate:"gte=0"`         // Silent ticks before trigger
	NoDynamicThresholdDB float64 `json:"nodynamic_threshold_db" validate:"gte=0"` // Minimum peak delta in dB, 0 disables
	NoDynamicPeriod      int     `json:"nodynamic_period" validate:"gte=0"`       // Flat ticks before trigger
	GracePeriod          int     `json:"grace_period" validate:"gte=0"`           // Ticks to suspend detection after a trigger
	TickIntervalMs       int64   `json:"tick_interval_ms" validate:"gte=10"`      // Evaluation period
}

// ControlConfig holds OSC control channel settings.
type ControlConfig struct {
	Enabled       bool   `json:"enabled"`                                       // Listen and publish over OSC
	ListenPort    string `json:"listen_port"`                                   // UDP port, "?" for random
	SendHost      string `json:"send_host" validate:"required_if=Enabled true"` // Status receiver host
	SendPort      int    `json:"send_port" validate:"gte=1,lte=65535"`          // Status receiver port
	VerboseStatus bool   `json:"verbose_status"`                                // Broadcast every tick, not only triggers
}

// ActionConfig holds the command run on a trigger.
type ActionConfig struct {
	Command   []string `json:"command"`                     // argv, ["exit"] quits the monitor
	TimeoutMs int64    `json:"timeout_ms" validate:"gte=0"` // 0 waits for the command indefinitely
}

// WebConfig holds the optional HTTP status server settings.
type WebConfig struct {
	Address     string `json:"address" validate:"omitempty,hostname_port"` // Listen address, empty disables
	UpdateCheck bool   `json:"update_check"`                               // Poll GitHub for newer releases
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,http_url"` // Webhook URL for trigger alerts
}

// ZabbixConfig holds Zabbix trapper notification settings.
type ZabbixConfig struct {
	Server string `json:"server"`                                    // Zabbix server or proxy host
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"` // Trapper port
	Host   string `json:"host"`                                      // Monitored host name
	Key    string `json:"key"`                                       // Trapper item key
}

// EventLogConfig holds JSON-lines event log settings.
type EventLogConfig struct {
	Path string `json:"path"` // Log file path, empty disables
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook  WebhookConfig  `json:"webhook"`
	Zabbix   ZabbixConfig   `json:"zabbix"`
	EventLog EventLogConfig `json:"event_log"`
}

// LoggingConfig holds console output settings.
type LoggingConfig struct {
	Verbose bool `json:"verbose"` // Debug-level console output
	Quiet   bool `json:"quiet"`   // Warnings and errors only
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Audio         AudioConfig         `json:"audio"`
	Detection     DetectionConfig     `json:"detection"`
	Control       ControlConfig       `json:"control"`
	Action        ActionConfig        `json:"action"`
	Web           WebConfig           `json:"web"`
	Notifications NotificationsConfig `json:"notifications"`
	Logging       LoggingConfig       `json:"logging"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:    DefaultBackend,
			ClientName: DefaultClientName,
			SampleRate: DefaultSampleRate,
		},
		Detection: DetectionConfig{
			SilenceThresholdDB:   DefaultSilenceThreshold,
			SilencePeriod:        DefaultSilencePeriod,
			NoDynamicThresholdDB: DefaultNoDynamicThreshold,
			NoDynamicPeriod:      DefaultNoDynamicPeriod,
			GracePeriod:          DefaultGracePeriod,
			TickIntervalMs:       DefaultTickIntervalMs,
		},
		Control: ControlConfig{
			Enabled:    true,
			ListenPort: DefaultListenPort,
			SendHost:   DefaultSendHost,
			SendPort:   DefaultSendPort,
		},
		Web: WebConfig{
			UpdateCheck: true,
		},
		filePath: filePath,
	}
}

// Load reads the config file over the defaults. The file is never created
// or written back; runtime changes are lost on restart.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// Path returns the config file path, empty when running on flags alone.
func (c *Config) Path() string {
	return c.filePath
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

// validateLocked runs the struct tags and the cross-field rules. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := util.Validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", util.ValidationError(err))
	}

	if c.Logging.Quiet && c.Logging.Verbose {
		return ErrQuietAndVerbose
	}

	if c.Control.Enabled && c.Control.ListenPort != RandomPort {
		port, err := strconv.Atoi(c.Control.ListenPort)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid control listen_port %q: must be 0-65535 or %q", c.Control.ListenPort, RandomPort)
		}
	}

	if c.Notifications.EventLog.Path != "" {
		if err := util.ValidatePath("event_log.path", c.Notifications.EventLog.Path); err != nil {
			return err
		}
	}

	return nil
}

// applyDefaults sets default values for fields a config file left empty.
func (c *Config) applyDefaults() {
	if c.Audio.Backend == "" {
		c.Audio.Backend = DefaultBackend
	}
	if c.Audio.ClientName == "" {
		c.Audio.ClientName = DefaultClientName
	}
	if c.Detection.TickIntervalMs == 0 {
		c.Detection.TickIntervalMs = DefaultTickIntervalMs
	}
	if c.Control.ListenPort == "" {
		c.Control.ListenPort = DefaultListenPort
	}
	if c.Control.SendHost == "" {
		c.Control.SendHost = DefaultSendHost
	}
	if c.Control.SendPort == 0 {
		c.Control.SendPort = DefaultSendPort
	}
	if c.Notifications.Zabbix.Server != "" && c.Notifications.Zabbix.Port == 0 {
		c.Notifications.Zabbix.Port = DefaultZabbixPort
	}
}

// --- Command-line overrides ---

// Overrides carries values given on the command line. Nil fields keep the
// configured value.
type Overrides struct {
	Connect            *string
	ClientName         *string
	Backend            *string
	SilenceThresholdDB *float64
	SilencePeriod      *int
	NoDynamicThreshold *float64
	NoDynamicPeriod    *int
	GracePeriod        *int
	Verbose            *bool
	Quiet              *bool
	ListenPort         *string
	SendHost           *string
	SendPort           *int
	VerboseStatus      *bool
	DisableControl     *bool
	WebAddress         *string
	WebhookURL         *string
	EventLogPath       *string
	ActionTimeout      *time.Duration
	Command            []string
}

// ApplyOverrides merges command-line values into the configuration.
func (c *Config) ApplyOverrides(o *Overrides) {
	c.mu.Lock()
	defer c.mu.Unlock()

	setIf(&c.Audio.Connect, o.Connect)
	setIf(&c.Audio.ClientName, o.ClientName)
	setIf(&c.Audio.Backend, o.Backend)
	setIf(&c.Detection.SilenceThresholdDB, o.SilenceThresholdDB)
	setIf(&c.Detection.SilencePeriod, o.SilencePeriod)
	setIf(&c.Detection.NoDynamicThresholdDB, o.NoDynamicThreshold)
	setIf(&c.Detection.NoDynamicPeriod, o.NoDynamicPeriod)
	setIf(&c.Detection.GracePeriod, o.GracePeriod)
	setIf(&c.Logging.Verbose, o.Verbose)
	setIf(&c.Logging.Quiet, o.Quiet)
	setIf(&c.Control.ListenPort, o.ListenPort)
	setIf(&c.Control.SendHost, o.SendHost)
	setIf(&c.Control.SendPort, o.SendPort)
	setIf(&c.Control.VerboseStatus, o.VerboseStatus)
	setIf(&c.Web.Address, o.WebAddress)
	setIf(&c.Notifications.Webhook.URL, o.WebhookURL)
	setIf(&c.Notifications.EventLog.Path, o.EventLogPath)

	if o.DisableControl != nil && *o.DisableControl {
		c.Control.Enabled = false
	}
	if o.ActionTimeout != nil {
		c.Action.TimeoutMs = o.ActionTimeout.Milliseconds()
	}
	if len(o.Command) > 0 {
		c.Action.Command = slices.Clone(o.Command)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// --- Runtime settings ---

// Settings is the runtime-mutable subset read by the detector once per tick.
type Settings struct {
	SilenceThresholdDB   float64 `json:"silence_threshold_db"`
	SilencePeriod        int     `json:"silence_period"`
	NoDynamicThresholdDB float64 `json:"nodynamic_threshold_db"`
	NoDynamicPeriod      int     `json:"nodynamic_period"`
	GracePeriod          int     `json:"grace_period"`
	VerboseStatus        bool    `json:"verbose_status"`
}

// Settings returns a consistent copy of the runtime-mutable settings.
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{
		SilenceThresholdDB:   c.Detection.SilenceThresholdDB,
		SilencePeriod:        c.Detection.SilencePeriod,
		NoDynamicThresholdDB: c.Detection.NoDynamicThresholdDB,
		NoDynamicPeriod:      c.Detection.NoDynamicPeriod,
		GracePeriod:          c.Detection.GracePeriod,
		VerboseStatus:        c.Control.VerboseStatus,
	}
}

// SetSilenceThreshold updates the silence trigger level.
func (c *Config) SetSilenceThreshold(db float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.SilenceThresholdDB = db
}

// SetSilencePeriod updates the number of silent ticks before a trigger.
func (c *Config) SetSilencePeriod(ticks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.SilencePeriod = ticks
}

// SetGracePeriod updates the number of ticks detection is suspended after a trigger.
func (c *Config) SetGracePeriod(ticks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.GracePeriod = ticks
}

// SetVerboseStatus toggles per-tick status broadcasts.
func (c *Config) SetVerboseStatus(verbose bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Control.VerboseStatus = verbose
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of the startup configuration values.
type Snapshot struct {
	// Audio
	Backend    string
	Connect    string
	ClientName string
	SampleRate int

	// Detection
	TickInterval time.Duration

	// Control
	ControlEnabled bool
	ListenPort     string
	SendHost       string
	SendPort       int

	// Action
	Command       []string
	ActionTimeout time.Duration

	// Web
	WebAddress  string
	UpdateCheck bool

	// Notifications
	WebhookURL   string
	ZabbixServer string
	ZabbixPort   int
	ZabbixHost   string
	ZabbixKey    string
	EventLogPath string

	// Logging
	Verbose bool
	Quiet   bool
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Backend:    c.Audio.Backend,
		Connect:    c.Audio.Connect,
		ClientName: c.Audio.ClientName,
		SampleRate: c.Audio.SampleRate,

		TickInterval: time.Duration(c.Detection.TickIntervalMs) * time.Millisecond,

		ControlEnabled: c.Control.Enabled,
		ListenPort:     c.Control.ListenPort,
		SendHost:       c.Control.SendHost,
		SendPort:       c.Control.SendPort,

		Command:       slices.Clone(c.Action.Command),
		ActionTimeout: time.Duration(c.Action.TimeoutMs) * time.Millisecond,

		WebAddress:  c.Web.Address,
		UpdateCheck: c.Web.UpdateCheck,

		WebhookURL:   c.Notifications.Webhook.URL,
		ZabbixServer: c.Notifications.Zabbix.Server,
		ZabbixPort:   c.Notifications.Zabbix.Port,
		ZabbixHost:   c.Notifications.Zabbix.Host,
		ZabbixKey:    c.Notifications.Zabbix.Key,
		EventLogPath: c.Notifications.EventLog.Path,

		Verbose: c.Logging.Verbose,
		Quiet:   c.Logging.Quiet,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasZabbix reports whether Zabbix trapper notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return util.IsConfigured(s.ZabbixServer, s.ZabbixHost, s.ZabbixKey)
}

// HasEventLog reports whether an event log path is configured.
func (s *Snapshot) HasEventLog() bool {
	return s.EventLogPath != ""
}
