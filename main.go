// Package main provides silentjack, a dead-air monitor that watches an audio
// input and runs a command when it stays silent.
//
// Usage:
//
//	silentjack [options] [COMMAND [ARG]...]
//
// Settings come from the command line and optionally from a JSON file given
// with --config; command-line values take precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/action"
	"github.com/oszuidwest/zwfm-silentjack/internal/audio"
	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/control"
	"github.com/oszuidwest/zwfm-silentjack/internal/eventlog"
	"github.com/oszuidwest/zwfm-silentjack/internal/monitor"
	"github.com/oszuidwest/zwfm-silentjack/internal/notify"
	"github.com/oszuidwest/zwfm-silentjack/internal/status"
	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// httpShutdownTimeout bounds the graceful HTTP shutdown.
const httpShutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the program and returns its exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		opts.usage()
		return 1
	}

	if opts.showHelp {
		opts.usage()
		return 0
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "silentjack %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		return 0
	}

	cfg := config.New(opts.configPath)
	if opts.configPath != "" {
		if err := cfg.Load(); err != nil {
			fmt.Fprintf(stderr, "failed to load config %s: %v\n", opts.configPath, err)
			return 1
		}
	}
	cfg.ApplyOverrides(&opts.overrides)

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrQuietAndVerbose) {
			fmt.Fprintln(stderr, "Can't be quiet and verbose at the same time.")
			opts.usage()
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	snap := cfg.Snapshot()
	setupLogging(stderr, snap.Verbose, snap.Quiet)
	if opts.configPath != "" {
		slog.Info("using config file", "path", opts.configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	app := &application{cfg: cfg}
	defer app.shutdown()

	if err := app.start(ctx); err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}

	if err := app.monitor.Run(ctx); err != nil {
		slog.Error("monitor failed", "error", err)
		return 1
	}
	return 0
}

// setupLogging installs the default logger. Verbose enables debug output,
// quiet keeps only warnings and errors.
func setupLogging(w io.Writer, verbose, quiet bool) {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// application owns the long-lived components and releases them in order.
type application struct {
	cfg *config.Config

	source     audio.Source
	peak       audio.PeakAccumulator
	emitter    *status.Emitter
	monitor    *monitor.Monitor
	notifier   *notify.Notifier
	eventLog   *eventlog.Logger
	osc        *control.OSCServer
	version    *VersionChecker
	web        *Server
	httpServer *http.Server
}

func (a *application) start(ctx context.Context) error {
	snap := a.cfg.Snapshot()

	src, err := audio.NewSource(audio.SourceConfig{
		Backend:    snap.Backend,
		ClientName: snap.ClientName,
		Target:     snap.Connect,
		SampleRate: snap.SampleRate,
	})
	if err != nil {
		return util.WrapError("create audio source", err)
	}
	a.source = src

	a.emitter = status.New(snap.ClientName, a.cfg)
	a.notifier = notify.NewNotifier(a.cfg)
	a.emitter.AddSink("notify", a.notifier)

	runner := action.NewRunner(snap.ActionTimeout)
	a.monitor = monitor.New(monitor.Options{
		Settings: a.cfg,
		Source:   src,
		Peak:     &a.peak,
		Runner:   runner,
		Emitter:  a.emitter,
		Command:  snap.Command,
		Interval: snap.TickInterval,
	})

	src.OnShutdown(func() {
		slog.Error("audio server went away")
		a.monitor.Quit()
	})
	if err := src.Start(ctx, a.peak.RecordSamples); err != nil {
		return util.WrapError("start audio capture", err)
	}
	slog.Info("capturing audio", "backend", snap.Backend, "source", snap.Connect, "client", snap.ClientName)

	if snap.HasEventLog() {
		logger, err := eventlog.NewLogger(snap.EventLogPath)
		if err != nil {
			return util.WrapError("open event log", err)
		}
		a.eventLog = logger
		a.emitter.AddSink("eventlog", logger)
	}

	dispatcher := control.NewDispatcher(a.cfg, a.emitter, a.monitor.Quit)

	if snap.ControlEnabled {
		oscServer, err := control.ListenOSC(snap.ListenPort, dispatcher)
		if err != nil {
			return err
		}
		a.osc = oscServer
		a.emitter.SetListenPort(oscServer.Port())
		a.emitter.AddSink("osc", control.NewOSCPublisher(snap.SendHost, snap.SendPort))

		go func() {
			if err := oscServer.Serve(); err != nil {
				slog.Error("OSC server stopped", "error", err)
			}
		}()
		slog.Debug("listening for OSC", "port", oscServer.Port())
		slog.Debug("sending OSC", "host", snap.SendHost, "port", snap.SendPort)
	}

	if snap.WebAddress != "" {
		a.version = NewVersionChecker(snap.UpdateCheck)
		srv := NewServer(a.cfg, a.monitor, src, dispatcher, a.notifier, a.version)
		if a.osc != nil {
			srv.SetListenPort(a.osc.Port())
		}
		a.web = srv
		a.emitter.AddSink("websocket", srv.Hub())

		httpServer, err := srv.Start(snap.WebAddress)
		if err != nil {
			return util.WrapError("start web server", err)
		}
		a.httpServer = httpServer
	}

	a.monitor.Announce()
	return nil
}

// shutdown releases everything start acquired: audio first, then the
// control channel, the web server and finally the event log.
func (a *application) shutdown() {
	slog.Info("shutting down")

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			slog.Error("error closing audio source", "error", err)
		}
	}

	if a.osc != nil {
		if err := a.osc.Close(); err != nil {
			slog.Error("error closing OSC server", "error", err)
		}
	}

	if a.version != nil {
		a.version.Stop()
	}

	if a.web != nil {
		a.web.Hub().Close()
	}

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	if a.notifier != nil {
		a.notifier.Wait()
	}

	if a.eventLog != nil {
		if err := a.eventLog.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
