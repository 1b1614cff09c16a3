// Package panel provides the hardware panel controllers the relay drives.
// file: panel/controller.go
package panel

import (
	"errors"
	"fmt"

	"go-panel-relay/models"
)

// Controller is the session-state API of a panel.
//
// Calls are synchronous. Implementations must be safe for concurrent use.
type Controller interface {
	// Setup initializes the transport. A nil error means the panel is configured.
	Setup() error
	// Run starts or resumes active operation.
	Run() error
	// Update applies a new control word.
	Update(word models.ControlWord) error
	// Exit stops the panel and releases the transport.
	Exit() error
	// Values reads the current panel state.
	Values() (models.Snapshot, error)
}

var (
	// ErrInvalidWord is returned by Update for words the panel cannot represent.
	ErrInvalidWord = errors.New("control word out of range")
	// ErrNotConfigured is returned when an operation needs a prior successful Setup.
	ErrNotConfigured = errors.New("panel not configured")
)

// MaxWord is the largest word a panel accepts on Update.
const MaxWord models.ControlWord = 256

// ControllerError wraps a failed controller call with the operation name.
type ControllerError struct {
	Op  string
	Err error
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("panel %s: %v", e.Op, e.Err)
}

func (e *ControllerError) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *ControllerError
	if errors.As(err, &cerr) {
		return err
	}
	return &ControllerError{Op: op, Err: err}
}
