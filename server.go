package main

import (
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oszuidwest/zwfm-silentjack/internal/audio"
	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/monitor"
	"github.com/oszuidwest/zwfm-silentjack/internal/server"
	"github.com/oszuidwest/zwfm-silentjack/internal/types"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Version    string
	Year       int
	ClientName string
}

// StateSource exposes the detector's runtime state.
type StateSource interface {
	State() monitor.RuntimeState
}

// DeviceLister lists the capture devices of the active backend.
type DeviceLister interface {
	Devices() ([]audio.Device, error)
}

// Server is the optional HTTP interface: status API, WebSocket feed and metrics.
type Server struct {
	config     *config.Config
	state      StateSource
	devices    DeviceLister
	hub        *server.Hub
	notifier   server.NotificationTester
	version    *VersionChecker
	listenPort string
}

// NewServer returns a Server. Control commands from WebSocket clients are
// routed to dispatcher.
func NewServer(cfg *config.Config, state StateSource, devices DeviceLister, dispatcher server.Dispatcher, notifier server.NotificationTester, version *VersionChecker) *Server {
	s := &Server{
		config:   cfg,
		state:    state,
		devices:  devices,
		notifier: notifier,
		version:  version,
	}
	s.hub = server.NewHub(server.NewCommandHandler(dispatcher, notifier, func() any { return s.buildStatus() }))
	return s
}

// Hub returns the WebSocket hub, to be registered as a status sink.
func (s *Server) Hub() *server.Hub {
	return s.hub
}

// SetListenPort records the bound OSC port reported by the status API.
// It must be called before Start.
func (s *Server) SetListenPort(port string) {
	s.listenPort = port
}

// statusResponse is the body of GET /api/status and the WebSocket status message.
type statusResponse struct {
	Type       string               `json:"type"`
	Client     string               `json:"client"`
	Backend    string               `json:"backend"`
	ListenPort string               `json:"listen_port,omitempty"`
	Command    []string             `json:"command,omitempty"`
	State      monitor.RuntimeState `json:"state"`
	Settings   config.Settings      `json:"settings"`
	Version    types.VersionInfo    `json:"version"`
}

// buildStatus returns the current status snapshot.
func (s *Server) buildStatus() statusResponse {
	cfg := s.config.Snapshot()
	return statusResponse{
		Type:       "status",
		Client:     cfg.ClientName,
		Backend:    cfg.Backend,
		ListenPort: s.listenPort,
		Command:    cfg.Command,
		State:      s.state.State(),
		Settings:   s.config.Settings(),
		Version:    s.version.Info(),
	}
}

// handleWebSocket upgrades the connection and serves it until the client leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn, s.buildStatus())
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/events", s.handleAPIEvents)
	mux.HandleFunc("/api/devices", s.handleAPIDevices)
	mux.HandleFunc("/api/notifications/test", s.handleAPITestNotifications)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleIndex)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleIndex serves the status page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{
		Version:    Version,
		Year:       time.Now().Year(),
		ClientName: s.config.Snapshot().ClientName,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		slog.Error("failed to render index", "error", err)
	}
}

// Start binds addr and serves in the background.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	slog.Info("starting web server", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv, nil
}
