// Package eventlog records every emitted status event in a JSON lines file
// and reads it back for the HTTP API.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

// Entry is one line of the event log.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"` // Address without the namespace prefix
	Address   string    `json:"address"`
	Args      []any     `json:"args,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Publish implements status.Sink.
func (l *Logger) Publish(ev status.Event) error {
	return l.Log(&Entry{
		Timestamp: ev.Time,
		Type:      TypeOf(ev.Address),
		Address:   ev.Address,
		Args:      ev.Args,
	})
}

// Log writes an entry to the log file.
func (l *Logger) Log(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	return l.encoder.Encode(entry)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeOf returns the entry type for an event address.
func TypeOf(address string) string {
	return strings.TrimPrefix(address, status.Prefix+"/")
}

// TypeFilter specifies which entries to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterAlerts   TypeFilter = "alerts"   // silent, run_cmd, quit
	FilterStatus   TypeFilter = "status"   // state machine transitions
	FilterSettings TypeFilter = "settings" // settings replies
)

// ParseFilter validates a filter name from a query string.
func ParseFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(s); f {
	case FilterAll, FilterAlerts, FilterStatus, FilterSettings:
		return f, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q", s)
}

// Match reports whether an entry type passes the filter.
func (f TypeFilter) Match(entryType string) bool {
	switch f {
	case FilterAll:
		return true
	case FilterAlerts:
		return IsAlert(entryType)
	case FilterSettings:
		return entryType == TypeOf(status.AddrSettings)
	case FilterStatus:
		return entryType != TypeOf(status.AddrSettings) && entryType != TypeOf(status.AddrRunCommand)
	}
	return false
}

// IsAlert reports whether the entry type is a trigger or shutdown.
func IsAlert(entryType string) bool {
	switch entryType {
	case TypeOf(status.AddrSilent), TypeOf(status.AddrRunCommand), TypeOf(status.AddrQuit):
		return true
	}
	return false
}

// MaxReadLimit is the maximum number of entries that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n entries, newest first, after skipping offset
// matching entries. The boolean reports whether older matches remain.
// Malformed lines are skipped.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Entry, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Entry{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	entries := make([]Entry, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var entry Entry
		if err := json.Unmarshal(lines[i], &entry); err != nil {
			continue
		}
		if !filter.Match(entry.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(entries) == n {
			return entries, true, nil
		}
		entries = append(entries, entry)
	}

	return entries, false, nil
}
