package server

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/oszuidwest/zwfm-silentjack/internal/control"
)

// Command types handled outside the control namespace.
const (
	CmdStatusGet         = "status/get"
	CmdNotificationsTest = "notifications/test"
)

// WSCommand is a command received from a WebSocket client. Control commands
// use the last segment of their OSC address as type, e.g. "set_grace_period".
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Dispatcher applies decoded control messages.
type Dispatcher interface {
	Dispatch(msg control.Message) error
}

// NotificationTester sends test notifications.
type NotificationTester interface {
	SendTest() error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	dispatcher Dispatcher
	notifier   NotificationTester
	snapshot   func() any
}

// NewCommandHandler creates a new command handler. snapshot builds the
// status message returned for status/get.
func NewCommandHandler(d Dispatcher, n NotificationTester, snapshot func() any) *CommandHandler {
	return &CommandHandler{
		dispatcher: d,
		notifier:   n,
		snapshot:   snapshot,
	}
}

// Handle processes a WebSocket command and queues the response on send.
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any) {
	switch cmd.Type {
	case CmdStatusGet:
		SendSuccess(send, cmd, h.snapshot())
		return

	case CmdNotificationsTest:
		if h.notifier == nil {
			SendError(send, cmd, errors.New("notifications unavailable"))
			return
		}
		if err := h.notifier.SendTest(); err != nil {
			SendError(send, cmd, err)
			return
		}
		SendSuccess(send, cmd, nil)
		return
	}

	msg, err := control.ParseCommand(cmd.Type, cmd.Data)
	if err != nil {
		slog.Warn("invalid WebSocket command", "type", cmd.Type, "error", err)
		SendError(send, cmd, err)
		return
	}

	if err := h.dispatcher.Dispatch(msg); err != nil {
		SendError(send, cmd, err)
		return
	}
	SendSuccess(send, cmd, nil)
}
