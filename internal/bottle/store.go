// Package bottle holds the bounded fill level of a single broadcaster.
package bottle

import (
	"sync"

	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Store is safe for concurrent use. Mutations are expected to come from the
// owning live.Manager goroutine; Snapshot may be called from anywhere.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	state domain.BottleState
	full  bool
}

func NewStore(capacity int, clock clockwork.Clock) *Store {
	return &Store{
		clock: clock,
		state: domain.BottleState{Capacity: max(0, capacity), UpdatedAt: clock.Now()},
	}
}

// Apply adds points, clamped at capacity, and records the contribution.
// crossed is true only when this call moved the bottle from below capacity to
// full for the first time since the last reset.
func (s *Store) Apply(points int, sender, gift string) (state domain.BottleState, crossed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points = max(0, points)
	s.state.Current = min(s.state.Capacity, s.state.Current+points)
	s.state.LastGift = &domain.Contribution{Sender: sender, Gift: gift, Points: points}
	s.state.UpdatedAt = s.clock.Now()

	if !s.full && s.state.Current >= s.state.Capacity {
		s.full = true
		crossed = true
	}
	return s.state, crossed
}

// Reset zeroes the bottle and returns the amount that was cleared.
func (s *Store) Reset() (domain.BottleState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.state.Current
	s.state.Current = 0
	s.state.LastGift = nil
	s.state.UpdatedAt = s.clock.Now()
	s.full = false
	return s.state, used
}

func (s *Store) SetConnected(connected bool) domain.BottleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Connected = connected
	s.state.UpdatedAt = s.clock.Now()
	return s.state
}

// SetCapacity changes capacity in place without resetting the fill level.
// Non-positive values are ignored.
func (s *Store) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Capacity == capacity {
		return
	}
	s.state.Capacity = capacity
	if s.state.Current >= capacity {
		s.state.Current = capacity
		s.full = true
	} else {
		s.full = false
	}
}

func (s *Store) Snapshot() domain.BottleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
