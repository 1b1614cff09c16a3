// Package websocket Description: outbound event encoding and the Emitter
// interface sessions use to reach their client.
// file: websocket/messenger.go
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"go-panel-relay/models"
)

var (
	// ErrConnectionClosed is returned when emitting to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the client is not draining its queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Emitter delivers one named event to a single client.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// encodeEvent frames payload in the socket envelope.
func encodeEvent(event string, payload interface{}) ([]byte, error) {
	env := models.Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %q payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// decodeEnvelope parses one inbound frame.
func decodeEnvelope(raw []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, &models.ProtocolError{Field: "frame", Reason: "not a JSON envelope"}
	}
	if env.Event == "" {
		return env, &models.ProtocolError{Field: "event", Reason: "missing"}
	}
	return env, nil
}
