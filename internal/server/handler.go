// Package server provides the WebSocket status feed and command handling
// for the silentjack HTTP interface.
package server

import (
	"log/slog"
)

// --- Response helpers ---

// SendSuccess sends a success response for a command.
func SendSuccess(send chan<- any, cmd WSCommand, data any) {
	result := map[string]any{
		"type":    cmd.Type + "_result",
		"success": true,
	}
	if cmd.ID != "" {
		result["id"] = cmd.ID
	}
	if data != nil {
		result["data"] = data
	}
	trySend(send, cmd.Type, result)
}

// SendError sends an error response for a command.
func SendError(send chan<- any, cmd WSCommand, err error) {
	result := map[string]any{
		"type":    cmd.Type + "_result",
		"success": false,
		"error":   err.Error(),
	}
	if cmd.ID != "" {
		result["id"] = cmd.ID
	}
	trySend(send, cmd.Type, result)
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, msgType string, msg any) bool {
	select {
	case send <- msg:
		return true
	default:
		slog.Warn("failed to send WebSocket message: channel full", "type", msgType)
		return false
	}
}
