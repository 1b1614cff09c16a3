// Package models defines data structures shared across the relay.
// File: models/panel.go
package models

import (
	"encoding/json"
	"fmt"
)

// ----------------------- control word -----------------------

// SwitchCount is the number of client switches folded into a ControlWord.
const SwitchCount = 7

// MaxControlWord is the largest word SwitchCount switches can encode.
const MaxControlWord ControlWord = 1<<SwitchCount - 1

// ControlWord is the 7-bit value applied to the panel on every update.
// Bit x mirrors switch x.
type ControlWord uint16

// Bit reports whether switch x is set in the word.
func (w ControlWord) Bit(x int) bool {
	return x >= 0 && x < SwitchCount && w&(1<<uint(x)) != 0
}

// ------------------------ switches -------------------------

// Switches holds the client switch array. Each element decodes from a JSON
// boolean or from the integers 0 and 1.
type Switches [SwitchCount]bool

// Word folds the switches into a ControlWord: sum of sw[x] << x.
func (s Switches) Word() ControlWord {
	var w ControlWord
	for x, on := range s {
		if on {
			w += 1 << uint(x)
		}
	}
	return w
}

// UnmarshalJSON accepts exactly SwitchCount booleans or 0/1 integers.
func (s *Switches) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ProtocolError{Field: "sw", Reason: "must be an array"}
	}
	if len(raw) != SwitchCount {
		return &ProtocolError{Field: "sw", Reason: fmt.Sprintf("expected %d elements, got %d", SwitchCount, len(raw))}
	}

	var out Switches
	for i, elem := range raw {
		on, err := decodeSwitch(elem)
		if err != nil {
			return &ProtocolError{Field: fmt.Sprintf("sw[%d]", i), Reason: err.Error()}
		}
		out[i] = on
	}
	*s = out
	return nil
}

func decodeSwitch(elem json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(elem, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(elem, &n); err != nil {
		return false, fmt.Errorf("must be a boolean or 0/1, got %s", string(elem))
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("must be a boolean or 0/1, got %s", string(elem))
}

// SwitchesFromWord is the inverse of Switches.Word for words up to MaxControlWord.
func SwitchesFromWord(w ControlWord) Switches {
	var s Switches
	for x := range s {
		s[x] = w.Bit(x)
	}
	return s
}

// ------------------------ snapshot -------------------------

// Snapshot is the panel reading forwarded verbatim to the client.
type Snapshot = json.RawMessage

// PanelReadings is the shape the bundled controllers render into a Snapshot.
type PanelReadings struct {
	Amperemeter []int32 `json:"amperemeter"`
	Voltmeter   []int32 `json:"voltmeter"`
}

// Snapshot renders the readings as JSON. Empty groups render as [] rather than null.
func (r PanelReadings) Snapshot() (Snapshot, error) {
	if r.Amperemeter == nil {
		r.Amperemeter = []int32{}
	}
	if r.Voltmeter == nil {
		r.Voltmeter = []int32{}
	}
	return json.Marshal(r)
}

// ------------------------ errors -------------------------

// ProtocolError reports a malformed client payload. The payload is rejected
// without touching session state.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
