// File: models/events.go
package models

import (
	"encoding/json"
	"errors"
)

// Event names exchanged over the socket.
const (
	EventNewConnection = "new connection"
	EventNewMessage    = "new message"
	EventDisconnect    = "disconnect"

	EventDataReceived  = "data received"
	EventPanelBusy     = "panel busy"
	EventPanelDegraded = "panel degraded"
	EventError         = "error"
)

// Envelope is the JSON frame carried by every socket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectPayload is sent with "new connection". Pass is accepted and ignored.
type ConnectPayload struct {
	Pass string `json:"pass,omitempty"`
}

// ControlMessage is sent with "new message".
type ControlMessage struct {
	SW *Switches `json:"sw"`
}

// ErrorPayload is sent with the outbound "error" event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseControlMessage decodes a "new message" payload. Any failure is a *ProtocolError.
func ParseControlMessage(data json.RawMessage) (ControlMessage, error) {
	var msg ControlMessage
	if len(data) == 0 {
		return msg, &ProtocolError{Field: "data", Reason: "missing payload"}
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return msg, perr
		}
		return msg, &ProtocolError{Field: "data", Reason: "must be an object"}
	}
	if msg.SW == nil {
		return msg, &ProtocolError{Field: "sw", Reason: "missing"}
	}
	return msg, nil
}

// ParseConnectPayload decodes a "new connection" payload. The payload is
// optional and a malformed one is tolerated since its content is unused.
func ParseConnectPayload(data json.RawMessage) ConnectPayload {
	var p ConnectPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &p)
	}
	return p
}
