// file: panel/simulator.go
package panel

import (
	"errors"
	"sync"

	"go-panel-relay/logger"
	"go-panel-relay/models"
)

// errSimulatedSetup is returned by Simulator.Setup while failures are pending.
var errSimulatedSetup = errors.New("simulated setup failure")

// Simulator is an in-memory panel with the same snapshot shape as the board.
// Meter x reads (x+1)*100 while relay bit x%7 is on and the panel is running.
type Simulator struct {
	mu         sync.Mutex
	meters     int
	failSetups int
	configured bool
	running    bool
	relays     models.ControlWord
}

// NewSimulator creates a simulator managing meters multimeters. The first half
// are voltmeters, the rest amperemeters.
func NewSimulator(meters int) *Simulator {
	if meters <= 0 {
		meters = 2
	}
	return &Simulator{meters: meters}
}

// FailNextSetups makes the next n Setup calls fail.
func (s *Simulator) FailNextSetups(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSetups = n
}

// Setup configures the simulator unless a failure is pending.
func (s *Simulator) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetups > 0 {
		s.failSetups--
		s.configured = false
		return opError("setup", errSimulatedSetup)
	}
	s.configured = true
	return nil
}

// Run starts the simulated board. Like the real board it runs even after a
// failed setup, reading zeros until configured.
func (s *Simulator) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.relays = 0
	return nil
}

// Update stores the relay word.
func (s *Simulator) Update(word models.ControlWord) error {
	if word > MaxWord {
		return opError("update", ErrInvalidWord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays = word
	logger.Debug.Printf("[Simulator.Update] relays=0x%x", word)
	return nil
}

// Exit stops the simulated board.
func (s *Simulator) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.configured = false
	s.relays = 0
	return nil
}

// Values renders the simulated readings.
func (s *Simulator) Values() (models.Snapshot, error) {
	s.mu.Lock()
	meters := make([]Meter, s.meters)
	for x := range meters {
		meters[x] = Meter{
			ComStatus:   comStatusOK,
			Amperemeter: x >= s.meters/2,
			Status:      1,
		}
		if s.running && s.configured && s.relays.Bit(x%models.SwitchCount) {
			meters[x].Value = int32(x+1) * 100
		}
	}
	s.mu.Unlock()

	snap, err := readings(meters).Snapshot()
	return snap, opError("values", err)
}

// Running reports whether the simulated board is running.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
