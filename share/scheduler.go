package share

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyArmed is returned when a deletion is already pending for a public ID.
	ErrAlreadyArmed = errors.New("expiry already armed")
	// ErrSchedulerStopped is returned by Arm after Stop.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// FireFunc runs when a record's deadline passes.
type FireFunc func(sessionID, publicID string)

type pendingExpiry struct {
	sessionID string
	timer     Timer
	seq       uint64
}

// Scheduler keeps one cancellable timer per public ID. Only the key pair is
// held here; the record itself lives in the room store.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingExpiry
	seq     uint64
	stopped bool

	clock Clock
	fire  FireFunc
}

// NewScheduler returns a scheduler that calls fire on expiry.
func NewScheduler(clock Clock, fire FireFunc) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{
		pending: make(map[string]*pendingExpiry),
		clock:   clock,
		fire:    fire,
	}
}

// Arm schedules exactly one deletion of publicID after ttl.
func (s *Scheduler) Arm(sessionID, publicID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.pending[publicID]; ok {
		return ErrAlreadyArmed
	}
	if ttl < 0 {
		ttl = 0
	}
	s.seq++
	seq := s.seq
	p := &pendingExpiry{sessionID: sessionID, seq: seq}
	s.pending[publicID] = p
	p.timer = s.clock.AfterFunc(ttl, func() { s.onTimer(publicID, seq) })
	return nil
}

func (s *Scheduler) onTimer(publicID string, seq uint64) {
	s.mu.Lock()
	p, ok := s.pending[publicID]
	if !ok || p.seq != seq {
		// canceled, or canceled and re-armed
		s.mu.Unlock()
		return
	}
	delete(s.pending, publicID)
	s.mu.Unlock()

	if s.fire != nil {
		s.fire(p.sessionID, publicID)
	}
}

// Cancel stops the pending deletion of publicID in sessionID. A timer armed
// for another room is left alone. It reports whether one was canceled.
func (s *Scheduler) Cancel(sessionID, publicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[publicID]
	if !ok || p.sessionID != sessionID {
		return false
	}
	delete(s.pending, publicID)
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

// Armed reports whether a deletion is pending for publicID.
func (s *Scheduler) Armed(publicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[publicID]
	return ok
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer and refuses new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, id)
	}
}
