package store

import (
	"context"
	"sync"

	"agendei/internal/domain"
)

// subscription holds at most one undelivered snapshot: a newer result
// replaces an older one the consumer has not read yet.
type subscription struct {
	out    chan domain.Snapshot
	wake   chan struct{}
	cancel context.CancelFunc
	unsubs []func()
	once   sync.Once
}

func (s *subscription) Snapshots() <-chan domain.Snapshot {
	return s.out
}

// Cancel stops the subscription. Safe to call more than once.
func (s *subscription) Cancel() {
	s.cancel()
	s.detach()
}

func (s *subscription) detach() {
	s.once.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}
	})
}

func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliver is only called from the subscription goroutine.
func (s *subscription) deliver(snap domain.Snapshot) {
	select {
	case s.out <- snap:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}
