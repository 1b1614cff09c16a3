// Package websocket - websocket/session.go
// Session owns one client's view of the panel: the lease, the setup outcome
// and the snapshot cycle. All handlers and poll ticks run under mu.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go-panel-relay/logger"
	"go-panel-relay/models"
	"go-panel-relay/panel"
	"go-panel-relay/services"
)

// SessionOptions tunes the snapshot cycle and setup retry.
type SessionOptions struct {
	PollInterval  time.Duration
	PollBudget    int
	SetupAttempts int
}

// DefaultSessionOptions polls once a second for ten snapshots and retries setup once.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		PollInterval:  time.Second,
		PollBudget:    10,
		SetupAttempts: 2,
	}
}

func (o SessionOptions) normalized() SessionOptions {
	d := DefaultSessionOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.PollBudget <= 0 {
		o.PollBudget = d.PollBudget
	}
	if o.SetupAttempts <= 0 {
		o.SetupAttempts = 1
	}
	return o
}

// Session is the per-connection handler.
type Session struct {
	id         string
	clientID   string
	controller panel.Controller
	lease      services.LeaseServiceInterface
	emitter    Emitter
	metrics    Recorder
	opts       SessionOptions

	mu         sync.Mutex
	state      State
	setup      SetupResult
	holdsLease bool
	closed     bool
	syncCount  int
	poller     *pollTask
	nextPollID int
}

// NewSession creates an idle session. id must be unique per connection; it is
// the lease owner. clientID is the browser identity, used for logging.
func NewSession(id, clientID string, controller panel.Controller, lease services.LeaseServiceInterface,
	emitter Emitter, metrics Recorder, opts SessionOptions) *Session {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &Session{
		id:         id,
		clientID:   clientID,
		controller: controller,
		lease:      lease,
		emitter:    emitter,
		metrics:    metrics,
		opts:       opts.normalized(),
	}
}

// HandleEvent dispatches one inbound envelope.
func (s *Session) HandleEvent(env models.Envelope) {
	switch env.Event {
	case models.EventNewConnection:
		s.HandleConnect(env.Data)
	case models.EventNewMessage:
		s.HandleMessage(env.Data)
	case models.EventDisconnect:
		s.HandleDisconnect()
	default:
		logger.Debug.Printf("[Session.HandleEvent] session=%s ignoring event %q", s.id, env.Event)
	}
}

// HandleConnect authenticates the session, takes the panel lease, brings the
// controller up and emits the first snapshot. No poller is started here.
func (s *Session) HandleConnect(data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateIdle {
		logger.Debug.Printf("[Session.HandleConnect] session=%s already %s; ignoring", s.id, s.state)
		return
	}

	// credentials are accepted unchecked
	_ = models.ParseConnectPayload(data)
	s.state = StateConnecting

	if err := s.lease.Acquire(s.id); err != nil {
		logger.Warn.Printf("[Session.HandleConnect] session=%s client=%s rejected: %v", s.id, s.clientID, err)
		s.state = StateIdle
		s.emit(models.EventPanelBusy, models.ErrorPayload{Message: err.Error()})
		return
	}
	s.holdsLease = true
	logger.Info.Printf("[Session.HandleConnect] session=%s client=%s holds the panel", s.id, s.clientID)

	s.setup = s.setupController()
	s.metrics.SetupCompleted(s.setup.Health, s.setup.Attempts)
	s.state = StateActive

	if s.setup.Health == HealthDegraded {
		logger.Error.Printf("[Session.HandleConnect] session=%s controller degraded after %d attempt(s): %v",
			s.id, s.setup.Attempts, s.setup.Err)
		s.emit(models.EventPanelDegraded, models.ErrorPayload{Message: s.setup.Err.Error()})
	}

	s.emitSnapshotLocked()
}

// setupController runs Setup, retrying with Exit/Setup until the attempt
// budget is spent, then Run regardless of the outcome.
func (s *Session) setupController() SetupResult {
	res := SetupResult{Attempts: 1}
	err := s.controller.Setup()
	for err != nil && res.Attempts < s.opts.SetupAttempts {
		logger.Warn.Printf("[Session.setupController] session=%s setup attempt %d failed: %v", s.id, res.Attempts, err)
		if exitErr := s.controller.Exit(); exitErr != nil {
			logger.Warn.Printf("[Session.setupController] session=%s exit before retry: %v", s.id, exitErr)
		}
		res.Attempts++
		err = s.controller.Setup()
	}

	runErr := s.controller.Run()
	if runErr != nil {
		logger.Warn.Printf("[Session.setupController] session=%s run: %v", s.id, runErr)
	}

	switch {
	case err != nil:
		res.Health, res.Err = HealthDegraded, err
	case runErr != nil:
		res.Health, res.Err = HealthDegraded, runErr
	default:
		res.Health = HealthHealthy
	}
	return res
}

// HandleMessage applies a switch update and restarts the snapshot cycle.
// Messages on a session that does not hold an active controller are dropped.
func (s *Session) HandleMessage(data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateActive {
		logger.Debug.Printf("[Session.HandleMessage] session=%s state=%s; dropping message", s.id, s.state)
		s.metrics.MessageDropped("unauthenticated")
		return
	}

	msg, err := models.ParseControlMessage(data)
	if err != nil {
		logger.Warn.Printf("[Session.HandleMessage] session=%s: %v", s.id, err)
		s.metrics.MessageDropped("invalid")
		s.emit(models.EventError, models.ErrorPayload{Message: err.Error()})
		return
	}

	s.stopPollerLocked()

	word := msg.SW.Word()
	if err := s.controller.Update(word); err != nil {
		logger.Warn.Printf("[Session.HandleMessage] session=%s update %d: %v", s.id, word, err)
	} else {
		logger.Debug.Printf("[Session.HandleMessage] session=%s applied word %d", s.id, word)
	}
	s.metrics.ControlApplied(word)

	s.emitSnapshotLocked()
	s.syncCount = 0
	s.startPollerLocked()
}

// HandleDisconnect tears the session down. Only the lease holder touches the
// controller. Repeated calls are no-ops.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.state = StateShuttingDown
	s.stopPollerLocked()

	if s.holdsLease {
		if err := s.controller.Exit(); err != nil {
			logger.Warn.Printf("[Session.HandleDisconnect] session=%s exit: %v", s.id, err)
		}
		if err := s.lease.Release(s.id); err != nil {
			logger.Warn.Printf("[Session.HandleDisconnect] session=%s release: %v", s.id, err)
		}
		s.holdsLease = false
		logger.Info.Printf("[Session.HandleDisconnect] session=%s client=%s released the panel", s.id, s.clientID)
	}

	s.setup = SetupResult{}
	s.syncCount = 0
	s.state = StateIdle
}

// emitSnapshotLocked sends one snapshot while the budget allows. Reaching the
// budget resets the counter and stops the poller.
func (s *Session) emitSnapshotLocked() {
	if s.syncCount < s.opts.PollBudget {
		snap, err := s.controller.Values()
		if err != nil {
			logger.Warn.Printf("[Session.emitSnapshot] session=%s values: %v", s.id, err)
		} else if s.emit(models.EventDataReceived, snap) {
			s.metrics.SnapshotEmitted()
		}
		s.syncCount++
	}
	if s.syncCount >= s.opts.PollBudget {
		s.syncCount = 0
		s.stopPollerLocked()
	}
}

func (s *Session) startPollerLocked() {
	s.stopPollerLocked()
	s.nextPollID++
	s.poller = startPollTask(s.nextPollID, s.opts.PollInterval, s.tick)
}

func (s *Session) stopPollerLocked() {
	if s.poller != nil {
		s.poller.stop()
		s.poller = nil
	}
}

// tick is the poller callback; stale ticks from a cancelled task are ignored.
func (s *Session) tick(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poller == nil || s.poller.id != id {
		return
	}
	s.emitSnapshotLocked()
}

// emit reports whether the event was queued.
func (s *Session) emit(event string, payload interface{}) bool {
	if err := s.emitter.Emit(event, payload); err != nil {
		logger.Warn.Printf("[Session.emit] session=%s %q: %v", s.id, event, err)
		return false
	}
	return true
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle tag.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the session accepts control messages.
func (s *Session) Authenticated() bool {
	return s.State().Authenticated()
}

// Setup returns the outcome of the last controller setup.
func (s *Session) Setup() SetupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setup
}

// SyncCount returns the snapshots emitted in the current cycle.
func (s *Session) SyncCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCount
}

// Polling reports whether a poller is scheduled.
func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poller != nil
}
