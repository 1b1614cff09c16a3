package services

import (
	"github.com/stretchr/testify/mock"
)

// ensure MockLeaseService implements LeaseServiceInterface
var _ LeaseServiceInterface = (*MockLeaseService)(nil)

// MockLeaseService is a mock implementation for testing and extends `mock.Mock`
type MockLeaseService struct {
	mock.Mock
}

// Acquire (Mocked)
func (m *MockLeaseService) Acquire(owner string) error {
	args := m.Called(owner)
	return args.Error(0)
}

// Release (Mocked)
func (m *MockLeaseService) Release(owner string) error {
	args := m.Called(owner)
	return args.Error(0)
}

// Holder (Mocked)
func (m *MockLeaseService) Holder() string {
	args := m.Called()
	return args.String(0)
}
