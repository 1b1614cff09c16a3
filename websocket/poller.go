// Package websocket - websocket/poller.go
package websocket

import (
	"context"
	"time"
)

// pollTask is one snapshot cycle: a ticker goroutine that calls tick with its
// own id until cancelled. The owner compares the id against its current task
// so a tick racing with cancellation is discarded.
type pollTask struct {
	id     int
	cancel context.CancelFunc
	done   chan struct{}
}

// startPollTask schedules tick every interval.
func startPollTask(id int, interval time.Duration, tick func(id int)) *pollTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &pollTask{id: id, cancel: cancel, done: make(chan struct{})}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// a tick and a cancel can be ready together; cancel wins
				if ctx.Err() != nil {
					return
				}
				tick(id)
			}
		}
	}()
	return t
}

// stop cancels the task without waiting; callers may hold the lock tick needs.
func (t *pollTask) stop() {
	t.cancel()
}
