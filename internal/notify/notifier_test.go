package notify

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	status   int
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p WebhookPayload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	code := r.status
	r.mu.Unlock()
	if code == 0 {
		code = http.StatusNoContent
	}
	w.WriteHeader(code)
}

func (r *webhookRecorder) all() []WebhookPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WebhookPayload(nil), r.payloads...)
}

func TestAlertFor(t *testing.T) {
	silent, ok := AlertFor(status.Event{Address: status.AddrSilent, Args: []any{"sj", "7777", float32(-61.5)}})
	require.True(t, ok)
	assert.Equal(t, EventSilence, silent.Event)
	assert.Equal(t, "sj", silent.Client)
	assert.True(t, silent.HasPeak)
	assert.InDelta(t, -61.5, silent.PeakDB, 1e-6)

	cmd, ok := AlertFor(status.Event{Address: status.AddrRunCommand, Args: []any{"sj", "7777", "/usr/bin/switch", "backup"}})
	require.True(t, ok)
	assert.Equal(t, EventCommand, cmd.Event)
	assert.Equal(t, []string{"/usr/bin/switch", "backup"}, cmd.Command)

	quit, ok := AlertFor(status.Event{Address: status.AddrQuit, Args: []any{"sj", "7777"}})
	require.True(t, ok)
	assert.Equal(t, EventStopped, quit.Event)

	for _, addr := range []string{status.AddrLevel, status.AddrGrace, status.AddrSettings, status.AddrStarted, status.AddrConnected} {
		_, ok := AlertFor(status.Event{Address: addr, Args: []any{"sj", "7777"}})
		assert.False(t, ok, addr)
	}
}

func TestAlert_ZabbixValue(t *testing.T) {
	a := &Alert{Event: EventSilence, Client: "sj", PeakDB: -61.54, HasPeak: true}
	assert.Equal(t, "event=SILENCE client=sj peak_db=-61.5", a.ZabbixValue())

	a = &Alert{Event: EventCommand, Client: "sj", Command: []string{"switch", "backup"}}
	assert.Equal(t, `event=RUN_CMD client=sj command="switch backup"`, a.ZabbixValue())

	a = &Alert{Event: EventStopped, Client: "sj"}
	assert.Equal(t, "event=STOPPED client=sj", a.ZabbixValue())
}

func TestNotifier_WebhookDelivery(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	cfg := config.New("")
	cfg.Notifications.Webhook.URL = srv.URL
	n := NewNotifier(cfg)

	require.NoError(t, n.Publish(status.Event{Address: status.AddrSilent, Args: []any{"sj", "7777", float32(-70)}}))
	require.NoError(t, n.Publish(status.Event{Address: status.AddrLevel, Args: []any{"sj", "7777", int32(0), int32(1), float32(-70)}}))
	require.NoError(t, n.Publish(status.Event{Address: status.AddrQuit, Args: []any{"sj", "7777"}}))
	n.Wait()

	got := rec.all()
	require.Len(t, got, 2, "level events do not raise alerts")

	events := []string{got[0].Event, got[1].Event}
	assert.ElementsMatch(t, []string{EventSilence, EventStopped}, events)
	for _, p := range got {
		assert.Equal(t, "sj", p.Client)
		assert.NotEmpty(t, p.Timestamp)
		if p.Event == EventSilence {
			require.NotNil(t, p.PeakDB)
			assert.InDelta(t, -70.0, *p.PeakDB, 1e-6)
		}
	}
}

func TestNotifier_NothingConfigured(t *testing.T) {
	n := NewNotifier(config.New(""))
	require.NoError(t, n.Publish(status.Event{Address: status.AddrSilent, Args: []any{"sj", "7777", float32(-70)}}))
	n.Wait()
	assert.ErrorIs(t, n.SendTest(), ErrNotConfigured)
}

func TestSendTestWebhook(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	require.NoError(t, SendTestWebhook(srv.URL, "studio-a"))
	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, EventTest, got[0].Event)
	assert.Contains(t, got[0].Message, "studio-a")

	assert.Error(t, SendTestWebhook("", "studio-a"))
}

func TestSendWebhook_StatusError(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	err := SendWebhook(srv.URL, &Alert{Event: EventStopped, Client: "sj"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

// fakeTrapper accepts one Zabbix sender connection and replies with info.
func fakeTrapper(t *testing.T, info string) (host string, port int, got <-chan zabbixRequest) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan zabbixRequest, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		body, err := readZabbixFrame(conn)
		if err != nil {
			return
		}
		var req zabbixRequest
		if json.Unmarshal(body, &req) == nil {
			ch <- req
		}
		reply, _ := json.Marshal(zabbixResponse{Response: "success", Info: info})
		_, _ = conn.Write(zabbixFrame(reply))
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port, ch
}

func TestSendZabbix(t *testing.T) {
	host, port, got := fakeTrapper(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000055")

	alert := &Alert{Event: EventSilence, Client: "sj", PeakDB: -80, HasPeak: true}
	require.NoError(t, SendZabbix(host, port, "encoder-1", "silentjack.event", alert))

	req := <-got
	assert.Equal(t, "sender data", req.Request)
	require.Len(t, req.Data, 1)
	assert.Equal(t, zabbixItem{Host: "encoder-1", Key: "silentjack.event", Value: "event=SILENCE client=sj peak_db=-80.0"}, req.Data[0])
}

func TestSendZabbix_NoItemsProcessed(t *testing.T) {
	host, port, _ := fakeTrapper(t, "processed: 0; failed: 0; total: 1; seconds spent: 0.000055")

	err := SendZabbix(host, port, "unknown-host", "silentjack.event", &Alert{Event: EventStopped})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processed no items")
}

func TestSendZabbix_NotConfiguredIsNoop(t *testing.T) {
	require.NoError(t, SendZabbix("", 10051, "h", "k", &Alert{Event: EventStopped}))
	assert.Error(t, SendTestZabbix("", 10051, "h", "k"))
}

func TestZabbixFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() { _, _ = client.Write(zabbixFrame([]byte(`{"response":"success"}`))) }()

	body, err := readZabbixFrame(server)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"success"}`, string(body))
}
