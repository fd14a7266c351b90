package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Benny93/depsphere-go/internal/graph"
)

var (
	// ErrInvalidDebounce is returned for a non-positive debounce interval.
	ErrInvalidDebounce = errors.New("debounce must be positive")

	// ErrSchedulerClosed is returned by Submit after Close.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// BatchFunc receives a merged batch of events.
type BatchFunc func(events []graph.GraphChangeEvent)

// Scheduler debounces submitted events. Each Submit restarts the quiet
// period; when it elapses without another Submit the buffered events are
// merged and handed to the batch function on a scheduler goroutine.
type Scheduler struct {
	debounce time.Duration
	onBatch  BatchFunc

	mu     sync.Mutex
	events []graph.GraphChangeEvent
	cancel context.CancelFunc
	closed bool

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler that calls onBatch after debounce of
// inactivity.
func NewScheduler(debounce time.Duration, onBatch BatchFunc) (*Scheduler, error) {
	if debounce <= 0 {
		return nil, ErrInvalidDebounce
	}
	if onBatch == nil {
		return nil, errors.New("batch function is required")
	}
	return &Scheduler{debounce: debounce, onBatch: onBatch}, nil
}

// Submit buffers an event and restarts the debounce wait.
func (s *Scheduler) Submit(event graph.GraphChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	s.events = append(s.events, event)
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.flushAfter(ctx)
	return nil
}

// Pending returns the number of buffered events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Close drops buffered events, cancels the pending wait and waits for
// running batch calls to return. Close must not be called from the batch
// function.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.events = nil
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) flushAfter(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	if s.closed || ctx.Err() != nil || len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	batch := MergeEvents(s.events)
	s.events = nil
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.onBatch(batch)
}
