package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-silentjack/internal/eventlog"
	"github.com/oszuidwest/zwfm-silentjack/internal/notify"
	"github.com/oszuidwest/zwfm-silentjack/internal/types"
)

// defaultEventCount is the page size of GET /api/events without n.
const defaultEventCount = 50

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// allowMethod writes 405 and returns false unless r uses method.
func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// handleAPIStatus returns the runtime state, settings and version info.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildStatus())
}

// eventsResponse is the body of GET /api/events.
type eventsResponse struct {
	Events  []eventlog.Entry `json:"events"`
	HasMore bool             `json:"has_more"`
}

// handleAPIEvents returns the newest event log entries.
// GET /api/events?n=50&offset=0&filter=alerts
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	path := s.config.Snapshot().EventLogPath
	if path == "" {
		s.writeError(w, http.StatusNotFound, "Event log not configured")
		return
	}

	n, err := queryInt(r, "n", defaultEventCount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := eventlog.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, more, err := eventlog.ReadLast(path, n, offset, filter)
	if err != nil {
		slog.Error("failed to read event log", "path", path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read event log")
		return
	}

	s.writeJSON(w, http.StatusOK, eventsResponse{Events: entries, HasMore: more})
}

// handleAPIDevices lists the capture devices of the active backend.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	devices, err := s.devices.Devices()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"backend": s.config.Snapshot().Backend,
		"devices": devices,
	})
}

// handleAPITestNotifications sends a test alert to every configured endpoint.
// POST /api/notifications/test
func (s *Server) handleAPITestNotifications(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.notifier.SendTest(); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No notification endpoint configured"})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleHealthz reports 200 while the monitor runs and 503 once it has quit.
// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.state.State()
	if st.Status == types.StatusQuit {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": st.Status.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    st.Status.String(),
		"connected": st.Connected,
	})
}
