package control

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

func startOSC(t *testing.T, d *Dispatcher) (*OSCServer, int) {
	t.Helper()
	srv, err := ListenOSC("?", d)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})

	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	require.NotZero(t, port)
	return srv, port
}

func TestOSCServer_AppliesMessages(t *testing.T) {
	d, store, replies, _ := newTestDispatcher()
	_, port := startOSC(t, d)

	client := osc.NewClient("127.0.0.1", port)
	require.NoError(t, client.Send(osc.NewMessage(AddrSetTriggerLevel, float32(-25), "osc")))

	assert.Eventually(t, func() bool {
		return len(replies.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.InDelta(t, -25.0, store.threshold, 1e-6)
}

func TestOSCServer_SurvivesGarbage(t *testing.T) {
	d, _, replies, _ := newTestDispatcher()
	_, port := startOSC(t, d)

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("not an osc packet"))
	require.NoError(t, err)

	client := osc.NewClient("127.0.0.1", port)
	assert.Eventually(t, func() bool {
		_ = client.Send(osc.NewMessage(AddrGetSettings, "after"))
		return len(replies.all()) > 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestOSCServer_CloseIsIdempotent(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	srv, err := ListenOSC("0", d)
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

func TestOSCPublisher_Publish(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	received := make(chan *osc.Message, 1)
	disp := osc.NewStandardDispatcher()
	require.NoError(t, disp.AddMsgHandler(status.AddrSilent, func(msg *osc.Message) {
		received <- msg
	}))
	server := &osc.Server{Dispatcher: disp}
	go func() { _ = server.Serve(conn) }()
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	pub := NewOSCPublisher("127.0.0.1", port)

	require.NoError(t, pub.Publish(status.Event{
		Address: status.AddrSilent,
		Args:    []any{"silentjack", "7777", float32(-62.5)},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, []any{"silentjack", "7777", float32(-62.5)}, msg.Arguments)
	case <-time.After(2 * time.Second):
		t.Fatal("status event not received")
	}
}
