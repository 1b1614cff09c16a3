// file: websocket/session_test.go
package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-panel-relay/models"
	"go-panel-relay/panel"
	"go-panel-relay/services"
)

var testSnapshot = models.Snapshot(`{"amperemeter":[0],"voltmeter":[100]}`)

type recordedEvent struct {
	Event   string
	Payload interface{}
}

// fakeEmitter records every event a session emits.
type fakeEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEmitter) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeEmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Event
	}
	return out
}

func (f *fakeEmitter) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// calledMethods lists the mocked controller calls in order.
func calledMethods(m *panel.MockController) []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Method)
	}
	return out
}

func fastOptions(budget int) SessionOptions {
	return SessionOptions{PollInterval: 10 * time.Millisecond, PollBudget: budget, SetupAttempts: 2}
}

func healthyController() *panel.MockController {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(nil)
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(testSnapshot, nil)
	return ctrl
}

func newTestSession(ctrl *panel.MockController, lease services.LeaseServiceInterface, opts SessionOptions) (*Session, *fakeEmitter) {
	em := &fakeEmitter{}
	return NewSession("sess-1", "client-1", ctrl, lease, em, nil, opts), em
}

func controlData(t *testing.T, sw []int) json.RawMessage {
	data, err := json.Marshal(map[string]interface{}{"sw": sw})
	require.NoError(t, err)
	return data
}

func TestHandleConnect_HealthySetup(t *testing.T) {
	ctrl := healthyController()
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))

	s.HandleConnect(json.RawMessage(`{"pass":"anything"}`))

	assert.Equal(t, StateActive, s.State())
	assert.True(t, s.Authenticated())
	assert.True(t, s.Setup().Configured())
	assert.Equal(t, 1, s.Setup().Attempts)
	assert.Equal(t, []string{"Setup", "Run", "Values"}, calledMethods(ctrl))
	assert.Equal(t, []string{models.EventDataReceived}, em.names())
	assert.Equal(t, 1, s.SyncCount())
	assert.False(t, s.Polling(), "connect must not start the poller")
}

func TestHandleConnect_RetrySucceeds(t *testing.T) {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(errors.New("bus timeout")).Once()
	ctrl.On("Setup").Return(nil).Once()
	ctrl.On("Exit").Return(nil)
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(testSnapshot, nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))

	s.HandleConnect(nil)

	assert.Equal(t, []string{"Setup", "Exit", "Setup", "Run", "Values"}, calledMethods(ctrl))
	assert.Equal(t, HealthHealthy, s.Setup().Health)
	assert.Equal(t, 2, s.Setup().Attempts)
	assert.Equal(t, []string{models.EventDataReceived}, em.names())
}

func TestHandleConnect_DegradedStillRuns(t *testing.T) {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(errors.New("no device"))
	ctrl.On("Exit").Return(nil)
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(testSnapshot, nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))

	s.HandleConnect(nil)

	assert.Equal(t, []string{"Setup", "Exit", "Setup", "Run", "Values"}, calledMethods(ctrl))
	res := s.Setup()
	assert.Equal(t, HealthDegraded, res.Health)
	assert.False(t, res.Configured())
	assert.EqualError(t, res.Err, "no device")
	assert.Equal(t, StateActive, s.State(), "a degraded session still accepts messages")
	assert.Equal(t, []string{models.EventPanelDegraded, models.EventDataReceived}, em.names())
}

func TestHandleConnect_SingleAttempt(t *testing.T) {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(errors.New("no device"))
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(testSnapshot, nil)
	opts := fastOptions(10)
	opts.SetupAttempts = 1
	s, _ := newTestSession(ctrl, services.NewLeaseService(), opts)

	s.HandleConnect(nil)

	assert.Equal(t, []string{"Setup", "Run", "Values"}, calledMethods(ctrl))
	assert.Equal(t, HealthDegraded, s.Setup().Health)
}

func TestHandleConnect_RepeatIgnored(t *testing.T) {
	ctrl := healthyController()
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))

	s.HandleConnect(nil)
	s.HandleConnect(nil)

	ctrl.AssertNumberOfCalls(t, "Setup", 1)
	assert.Equal(t, 1, em.count(models.EventDataReceived))
}

func TestHandleConnect_PanelBusy(t *testing.T) {
	lease := services.NewLeaseService()
	require.NoError(t, lease.Acquire("someone-else"))
	ctrl := new(panel.MockController)
	s, em := newTestSession(ctrl, lease, fastOptions(10))

	s.HandleConnect(nil)

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{models.EventPanelBusy}, em.names())
	assert.Empty(t, ctrl.Calls)

	s.HandleMessage(controlData(t, []int{1, 0, 0, 0, 0, 0, 0}))
	s.HandleDisconnect()
	assert.Empty(t, ctrl.Calls, "a session without the lease never touches the controller")
	assert.Equal(t, "someone-else", lease.Holder())
}

func TestHandleMessage_DroppedBeforeConnect(t *testing.T) {
	ctrl := new(panel.MockController)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))

	s.HandleMessage(controlData(t, []int{1, 1, 1, 1, 1, 1, 1}))

	assert.Empty(t, ctrl.Calls)
	assert.Empty(t, em.names())
	assert.False(t, s.Polling())
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	ctrl := healthyController()
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(10))
	s.HandleConnect(nil)

	s.HandleMessage(json.RawMessage(`{"sw":[1,0,1]}`))
	s.HandleMessage(json.RawMessage(`{}`))

	ctrl.AssertNotCalled(t, "Update", mock.Anything)
	assert.Equal(t, 2, em.count(models.EventError))
	assert.Equal(t, 1, s.SyncCount(), "rejected messages leave the cycle alone")
	assert.False(t, s.Polling())
}

func TestHandleMessage_AppliesWordAndStartsPolling(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", models.ControlWord(5)).Return(nil)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), SessionOptions{PollInterval: time.Hour, PollBudget: 10, SetupAttempts: 2})
	s.HandleConnect(nil)

	s.HandleMessage(controlData(t, []int{1, 0, 1, 0, 0, 0, 0}))

	ctrl.AssertCalled(t, "Update", models.ControlWord(5))
	assert.Equal(t, 2, em.count(models.EventDataReceived), "one emission on connect, one immediately after update")
	assert.Equal(t, 0, s.SyncCount())
	assert.True(t, s.Polling())

	s.HandleDisconnect()
}

func TestHandleMessage_UpdateErrorContinuesCycle(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", mock.Anything).Return(panel.ErrNotConfigured)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), SessionOptions{PollInterval: time.Hour, PollBudget: 10, SetupAttempts: 2})
	s.HandleConnect(nil)

	s.HandleMessage(controlData(t, []int{0, 0, 0, 0, 0, 0, 1}))

	ctrl.AssertCalled(t, "Update", models.ControlWord(64))
	assert.Equal(t, 2, em.count(models.EventDataReceived))
	assert.True(t, s.Polling())

	s.HandleDisconnect()
}

func TestPolling_StopsAtBudget(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", mock.Anything).Return(nil)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(3))
	s.HandleConnect(nil)

	s.HandleMessage(controlData(t, []int{1, 0, 0, 0, 0, 0, 0}))

	assert.Eventually(t, func() bool { return !s.Polling() }, time.Second, 5*time.Millisecond)
	// connect + immediate + three ticks
	assert.Equal(t, 5, em.count(models.EventDataReceived))
	assert.Equal(t, 0, s.SyncCount())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, em.count(models.EventDataReceived), "no emissions after the budget is spent")

	s.HandleDisconnect()
}

func TestPolling_NewMessageRestartsCycle(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", mock.Anything).Return(nil)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(3))
	s.HandleConnect(nil)

	s.HandleMessage(controlData(t, []int{1, 0, 0, 0, 0, 0, 0}))
	assert.Eventually(t, func() bool { return s.SyncCount() >= 1 }, time.Second, time.Millisecond)

	s.HandleMessage(controlData(t, []int{0, 1, 0, 0, 0, 0, 0}))
	assert.Equal(t, 0, s.SyncCount(), "a new message resets the counter")
	assert.True(t, s.Polling())

	assert.Eventually(t, func() bool { return !s.Polling() }, time.Second, 5*time.Millisecond)
	ctrl.AssertCalled(t, "Update", models.ControlWord(2))
	// the second cycle always runs its full three ticks
	assert.GreaterOrEqual(t, em.count(models.EventDataReceived), 1+1+1+1+3)

	s.HandleDisconnect()
}

func TestPolling_ValuesErrorCountsAgainstBudget(t *testing.T) {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(nil)
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(nil, errors.New("read failed"))
	ctrl.On("Update", mock.Anything).Return(nil)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), fastOptions(2))
	s.HandleConnect(nil)

	s.HandleMessage(controlData(t, []int{1, 0, 0, 0, 0, 0, 0}))

	assert.Eventually(t, func() bool { return !s.Polling() }, time.Second, 5*time.Millisecond)
	assert.Zero(t, em.count(models.EventDataReceived))
	// connect + immediate + two ticks
	ctrl.AssertNumberOfCalls(t, "Values", 4)

	s.HandleDisconnect()
}

func TestHandleDisconnect_ReleasesPanelOnce(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", mock.Anything).Return(nil)
	ctrl.On("Exit").Return(nil)
	lease := services.NewLeaseService()
	s, em := newTestSession(ctrl, lease, fastOptions(10))
	s.HandleConnect(nil)
	s.HandleMessage(controlData(t, []int{1, 1, 0, 0, 0, 0, 0}))

	s.HandleDisconnect()
	s.HandleDisconnect()

	ctrl.AssertNumberOfCalls(t, "Exit", 1)
	assert.Equal(t, "", lease.Holder())
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Authenticated())
	assert.False(t, s.Setup().Configured())
	assert.False(t, s.Polling())

	before := em.count(models.EventDataReceived)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, before, em.count(models.EventDataReceived), "no emissions after disconnect")

	s.HandleConnect(nil)
	s.HandleMessage(controlData(t, []int{1, 0, 0, 0, 0, 0, 0}))
	ctrl.AssertNumberOfCalls(t, "Setup", 1)
	ctrl.AssertNumberOfCalls(t, "Update", 1)
}

func TestHandleDisconnect_DegradedHolderExits(t *testing.T) {
	ctrl := new(panel.MockController)
	ctrl.On("Setup").Return(errors.New("no device"))
	ctrl.On("Exit").Return(errors.New("already closed"))
	ctrl.On("Run").Return(nil)
	ctrl.On("Values").Return(testSnapshot, nil)
	lease := services.NewLeaseService()
	s, _ := newTestSession(ctrl, lease, fastOptions(10))
	s.HandleConnect(nil)

	s.HandleDisconnect()

	// one Exit from the retry, one from teardown
	ctrl.AssertNumberOfCalls(t, "Exit", 2)
	assert.Equal(t, "", lease.Holder())
}

func TestHandleDisconnect_ReleaseErrorIsLogged(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Exit").Return(nil)
	lease := new(services.MockLeaseService)
	lease.On("Acquire", "sess-1").Return(nil)
	lease.On("Release", "sess-1").Return(services.ErrNotHolder)
	s, _ := newTestSession(ctrl, lease, fastOptions(10))
	s.HandleConnect(nil)

	s.HandleDisconnect()

	lease.AssertExpectations(t)
	assert.Equal(t, StateIdle, s.State())
}

func TestHandleEvent_Dispatch(t *testing.T) {
	ctrl := healthyController()
	ctrl.On("Update", models.ControlWord(127)).Return(nil)
	ctrl.On("Exit").Return(nil)
	s, em := newTestSession(ctrl, services.NewLeaseService(), SessionOptions{PollInterval: time.Hour, PollBudget: 10, SetupAttempts: 2})

	s.HandleEvent(models.Envelope{Event: "unknown"})
	s.HandleEvent(models.Envelope{Event: models.EventNewConnection})
	s.HandleEvent(models.Envelope{Event: models.EventNewMessage, Data: controlData(t, []int{1, 1, 1, 1, 1, 1, 1})})
	s.HandleEvent(models.Envelope{Event: models.EventDisconnect})

	ctrl.AssertCalled(t, "Update", models.ControlWord(127))
	ctrl.AssertNumberOfCalls(t, "Exit", 1)
	assert.Equal(t, 2, em.count(models.EventDataReceived))
}

func TestSessionOptions_Normalized(t *testing.T) {
	opts := SessionOptions{}.normalized()
	assert.Equal(t, time.Second, opts.PollInterval)
	assert.Equal(t, 10, opts.PollBudget)
	assert.Equal(t, 1, opts.SetupAttempts)
}
