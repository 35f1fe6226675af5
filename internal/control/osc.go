package control

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/oszuidwest/zwfm-silentjack/internal/config"
	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

// OSCServer receives control messages on a UDP port.
type OSCServer struct {
	conn   net.PacketConn
	server *osc.Server
	closed atomic.Bool
}

// ListenOSC binds the control port. The port "?" or "0" picks a free one.
func ListenOSC(port string, d *Dispatcher) (*OSCServer, error) {
	if port == config.RandomPort {
		port = "0"
	}

	conn, err := net.ListenPacket("udp", net.JoinHostPort("", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on OSC port %s: %w", port, err)
	}

	disp := osc.NewStandardDispatcher()
	for _, addr := range Addresses {
		if err := disp.AddMsgHandler(addr, handler(d)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to register %s: %w", addr, err)
		}
	}

	return &OSCServer{
		conn:   conn,
		server: &osc.Server{Dispatcher: disp},
	}, nil
}

func handler(d *Dispatcher) func(*osc.Message) {
	return func(msg *osc.Message) {
		m, err := Decode(msg)
		if err != nil {
			slog.Warn("ignoring control message", "address", msg.Address, "error", err)
			metrics.ControlMessages.WithLabelValues(msg.Address, metrics.ResultMalformed).Inc()
			return
		}
		_ = d.Dispatch(m)
	}
}

// Port returns the bound UDP port.
func (s *OSCServer) Port() string {
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return strconv.Itoa(addr.Port)
	}
	_, port, _ := net.SplitHostPort(s.conn.LocalAddr().String())
	return port
}

// Serve handles packets until Close is called. Unparsable packets are
// dropped without stopping the server.
func (s *OSCServer) Serve() error {
	for {
		err := s.server.Serve(s.conn)
		if s.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil
		}
		slog.Warn("dropped OSC packet", "error", err)
		metrics.ControlMessages.WithLabelValues("", metrics.ResultMalformed).Inc()
	}
}

// Close stops Serve and releases the port.
func (s *OSCServer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

// OSCPublisher sends status events to a fixed OSC destination.
type OSCPublisher struct {
	client *osc.Client
	target string
}

// NewOSCPublisher creates a publisher for host:port.
func NewOSCPublisher(host string, port int) *OSCPublisher {
	return &OSCPublisher{
		client: osc.NewClient(host, port),
		target: net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

// Publish implements status.Sink.
func (p *OSCPublisher) Publish(ev status.Event) error {
	if err := p.client.Send(osc.NewMessage(ev.Address, ev.Args...)); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", ev.Address, p.target, err)
	}
	return nil
}
