// Package services: services/lease_service.go
package services

import (
	"errors"
	"sync"
	"time"

	"go-panel-relay/logger"
)

var (
	// ErrPanelBusy is returned when another session holds the panel.
	ErrPanelBusy = errors.New("panel is held by another session")
	// ErrNotHolder is returned when releasing a lease the caller does not hold.
	ErrNotHolder = errors.New("caller does not hold the panel")
)

// LeaseServiceInterface guards the single physical panel so only one session
// at a time drives it.
type LeaseServiceInterface interface {
	Acquire(owner string) error
	Release(owner string) error
	Holder() string
}

// Lease describes the current holder.
type Lease struct {
	Owner    string
	Acquired time.Time
}

// LeaseService is the in-process LeaseServiceInterface.
type LeaseService struct {
	mu    sync.Mutex
	lease *Lease
}

// NewLeaseService creates a LeaseService with the panel free.
func NewLeaseService() *LeaseService {
	return &LeaseService{}
}

// Acquire grants the panel to owner. Re-acquiring by the holder is a no-op.
func (s *LeaseService) Acquire(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lease != nil {
		if s.lease.Owner == owner {
			return nil
		}
		logger.Warn.Printf("[LeaseService.Acquire] Panel busy: requested by %s, held by %s since %v",
			owner, s.lease.Owner, s.lease.Acquired.Format(time.RFC3339))
		return ErrPanelBusy
	}

	s.lease = &Lease{Owner: owner, Acquired: time.Now()}
	logger.Info.Printf("[LeaseService.Acquire] Panel granted to %s", owner)
	return nil
}

// Release frees the panel if owner holds it.
func (s *LeaseService) Release(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lease == nil || s.lease.Owner != owner {
		return ErrNotHolder
	}
	logger.Info.Printf("[LeaseService.Release] Panel released by %s after %v", owner, time.Since(s.lease.Acquired).Round(time.Millisecond))
	s.lease = nil
	return nil
}

// Holder returns the current owner, or "" when the panel is free.
func (s *LeaseService) Holder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease == nil {
		return ""
	}
	return s.lease.Owner
}
