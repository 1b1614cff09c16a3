package panel

import (
	"github.com/stretchr/testify/mock"

	"go-panel-relay/models"
)

// ensure MockController implements Controller
var _ Controller = (*MockController)(nil)

// MockController is a mock implementation for testing and extends `mock.Mock`
type MockController struct {
	mock.Mock
}

// Setup (Mocked)
func (m *MockController) Setup() error {
	args := m.Called()
	return args.Error(0)
}

// Run (Mocked)
func (m *MockController) Run() error {
	args := m.Called()
	return args.Error(0)
}

// Update (Mocked)
func (m *MockController) Update(word models.ControlWord) error {
	args := m.Called(word)
	return args.Error(0)
}

// Exit (Mocked)
func (m *MockController) Exit() error {
	args := m.Called()
	return args.Error(0)
}

// Values (Mocked)
func (m *MockController) Values() (models.Snapshot, error) {
	args := m.Called()
	snap, _ := args.Get(0).(models.Snapshot)
	return snap, args.Error(1)
}
