package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/oszuidwest/zwfm-silentjack/internal/config"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath  string
	showVersion bool
	showHelp    bool
	overrides   config.Overrides
	usage       func()
}

// parseFlags parses args (without the program name). Positional arguments
// form the trigger command. The returned options are never nil so that
// usage can be printed after an error.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := pflag.NewFlagSet("silentjack", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	// Errors and usage are printed once by the caller.
	fs.Usage = func() {}

	opts := cliOptions{usage: func() { printUsage(stderr, fs) }}
	var (
		connect       = fs.StringP("connect", "c", "", "Capture from this source or device")
		name          = fs.StringP("name", "n", config.DefaultClientName, "Name of this client")
		level         = fs.Float64P("level", "l", config.DefaultSilenceThreshold, "Trigger level in decibels")
		period        = fs.IntP("period", "p", config.DefaultSilencePeriod, "Period of silence required, in seconds")
		nodynLevel    = fs.Float64P("nodynamic-level", "d", config.DefaultNoDynamicThreshold, "No-dynamic trigger level in decibels (0 disables)")
		nodynPeriod   = fs.IntP("nodynamic-period", "P", config.DefaultNoDynamicPeriod, "No-dynamic period, in seconds")
		grace         = fs.IntP("grace", "g", config.DefaultGracePeriod, "Grace period after a trigger, in seconds")
		verbose       = fs.BoolP("verbose", "v", false, "Enable verbose mode")
		quiet         = fs.BoolP("quiet", "q", false, "Enable quiet mode")
		oscPort       = fs.StringP("osc-port", "o", config.DefaultListenPort, "OSC port for listening, ? for random")
		oscHost       = fs.StringP("osc-host", "H", config.DefaultSendHost, "OSC host to send to")
		oscSendPort   = fs.IntP("osc-send-port", "O", config.DefaultSendPort, "OSC port to send to")
		oscVerbose    = fs.BoolP("osc-verbose", "V", false, "Send a status message every second")
		noOSC         = fs.BoolP("no-osc", "X", false, "Disable all OSC")
		backend       = fs.String("backend", config.DefaultBackend, "Audio backend: pulse or portaudio")
		httpAddr      = fs.String("http", "", "Serve the status API on this address, e.g. :8080")
		webhook       = fs.String("webhook", "", "POST alerts to this URL")
		eventLog      = fs.String("event-log", "", "Append every status event to this JSON lines file")
		actionTimeout = fs.Duration("action-timeout", 0, "Stop the trigger command after this long (0 waits)")
	)
	fs.StringVar(&opts.configPath, "config", "", "Path to a JSON config file")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version information and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return &opts, err
	}

	o := &opts.overrides
	o.Connect = changed(fs, "connect", connect)
	o.ClientName = changed(fs, "name", name)
	o.SilenceThresholdDB = changed(fs, "level", level)
	o.SilencePeriod = changed(fs, "period", abs(period))
	o.NoDynamicThreshold = changed(fs, "nodynamic-level", nodynLevel)
	o.NoDynamicPeriod = changed(fs, "nodynamic-period", abs(nodynPeriod))
	o.GracePeriod = changed(fs, "grace", abs(grace))
	o.Verbose = changed(fs, "verbose", verbose)
	o.Quiet = changed(fs, "quiet", quiet)
	o.ListenPort = changed(fs, "osc-port", oscPort)
	o.SendHost = changed(fs, "osc-host", oscHost)
	o.SendPort = changed(fs, "osc-send-port", oscSendPort)
	o.VerboseStatus = changed(fs, "osc-verbose", oscVerbose)
	o.DisableControl = changed(fs, "no-osc", noOSC)
	o.Backend = changed(fs, "backend", backend)
	o.WebAddress = changed(fs, "http", httpAddr)
	o.WebhookURL = changed(fs, "webhook", webhook)
	o.EventLogPath = changed(fs, "event-log", eventLog)
	o.ActionTimeout = changed(fs, "action-timeout", actionTimeout)
	o.Command = fs.Args()

	return &opts, nil
}

// changed returns v if the flag was given on the command line.
func changed[T any](fs *pflag.FlagSet, name string, v *T) *T {
	if fs.Changed(name) {
		return v
	}
	return nil
}

func abs(v *int) *int {
	if *v < 0 {
		*v = -*v
	}
	return v
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "silentjack version %s\n\n", Version)
	fmt.Fprintln(w, "Usage: silentjack [options] [COMMAND [ARG]...]")
	fmt.Fprintln(w, "Runs COMMAND when the input stays silent. COMMAND \"exit\" quits instead.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
}
