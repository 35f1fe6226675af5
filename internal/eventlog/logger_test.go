package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "nested", "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func publish(t *testing.T, l *Logger, addrs ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, addr := range addrs {
		require.NoError(t, l.Publish(status.Event{
			Address: addr,
			Args:    []any{"sj", "7777", int32(i)},
			Time:    base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestLogger_PublishAndReadLast(t *testing.T) {
	l := newTestLogger(t)
	publish(t, l, status.AddrStarted, status.AddrConnected, status.AddrSilent, status.AddrRunCommand)

	entries, more, err := ReadLast(l.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, entries, 4)

	assert.Equal(t, "run_cmd", entries[0].Type, "newest first")
	assert.Equal(t, status.AddrRunCommand, entries[0].Address)
	assert.Equal(t, "started", entries[3].Type)
	assert.Equal(t, []any{"sj", "7777", float64(3)}, entries[0].Args)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestReadLast_Pagination(t *testing.T) {
	l := newTestLogger(t)
	publish(t, l, status.AddrLevel, status.AddrLevel, status.AddrLevel, status.AddrLevel, status.AddrLevel)

	page, more, err := ReadLast(l.Path(), 2, 0, FilterAll)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, page, 2)
	assert.Equal(t, float64(4), page[0].Args[2])

	page, more, err = ReadLast(l.Path(), 2, 2, FilterAll)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, float64(2), page[0].Args[2])

	page, more, err = ReadLast(l.Path(), 2, 4, FilterAll)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page, 1)
	assert.Equal(t, float64(0), page[0].Args[2])
}

func TestReadLast_Filters(t *testing.T) {
	l := newTestLogger(t)
	publish(t, l, status.AddrStarted, status.AddrLevel, status.AddrSettings, status.AddrSilent, status.AddrRunCommand, status.AddrGrace, status.AddrQuit)

	types := func(f TypeFilter) []string {
		entries, _, err := ReadLast(l.Path(), MaxReadLimit, 0, f)
		require.NoError(t, err)
		var out []string
		for _, e := range entries {
			out = append(out, e.Type)
		}
		return out
	}

	assert.Equal(t, []string{"quit", "run_cmd", "silent"}, types(FilterAlerts))
	assert.Equal(t, []string{"settings"}, types(FilterSettings))
	assert.Equal(t, []string{"quit", "grace", "silent", "level", "started"}, types(FilterStatus))
}

func TestReadLast_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"ts":"2026-03-01T12:00:00Z","type":"silent","address":"/silentjack/silent"}
not json
{"ts":"2026-03-01T12:00:01Z","type":"quit","address":"/silentjack/quit"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, _, err := ReadLast(path, 10, 0, FilterAll)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "quit", entries[0].Type)
}

func TestReadLast_EdgeCases(t *testing.T) {
	entries, more, err := ReadLast(filepath.Join(t.TempDir(), "missing.jsonl"), 10, 0, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, more)

	l := newTestLogger(t)
	publish(t, l, status.AddrQuit)
	entries, _, err = ReadLast(l.Path(), 0, 0, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Publish(status.Event{Address: status.AddrQuit}), os.ErrClosed)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("alerts")
	require.NoError(t, err)
	assert.Equal(t, FilterAlerts, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseFilter("recorder")
	assert.Error(t, err)
}
