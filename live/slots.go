package live

import (
	"fmt"
	"sync"

	"github.com/tventura/livecastbot/telemetry"
)

// ErrBroadcastActive is returned by Acquire when the account already holds a
// live broadcast. The check happens before any network call is made.
var ErrBroadcastActive = fmt.Errorf("a live broadcast is already running for this account")

// Slots tracks the active broadcast per account. One account gets at most one
// live broadcast; separate accounts may broadcast concurrently.
type Slots struct {
	mu     sync.Mutex
	active map[int64]*Controller
}

func NewSlots() *Slots {
	return &Slots{active: make(map[int64]*Controller)}
}

// Reserve marks the account as broadcasting before the create call goes out.
// It fails with ErrBroadcastActive if a broadcast is already current.
func (s *Slots) Reserve(accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[accountID]; ok {
		return ErrBroadcastActive
	}
	s.active[accountID] = nil // reserved, controller bound on Commit
	telemetry.SetActiveBroadcasts(len(s.active))
	return nil
}

// Commit binds the started controller to a reserved slot.
func (s *Slots) Commit(accountID int64, bc *Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[accountID] = bc
}

// Release frees the account's slot, whether reserved or committed.
func (s *Slots) Release(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, accountID)
	telemetry.SetActiveBroadcasts(len(s.active))
}

// Get returns the account's committed controller, or nil.
func (s *Slots) Get(accountID int64) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[accountID]
}

// Active returns the number of held slots.
func (s *Slots) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
