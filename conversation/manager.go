// Package conversation drives the login and go-live conversations: a per-chat
// state machine that consumes message text and callback presses and emits
// replies described independently of the transport.
package conversation

import (
	"sync"

	"github.com/tventura/livecastbot/igapi"
)

// State identifies what input the conversation expects next.
type State int

const (
	StateIdle State = iota
	StateAwaitUsername
	StateAwaitPassword
	StateAwait2FA
	StateAwaitChallengeChoice
	StateAwaitSaveChoice
	StateAwaitLiveTitle
)

// Flow is one chat user's transient conversation context. Login fields live
// only for the duration of a login conversation; the stream target survives
// until the broadcast ends.
type Flow struct {
	State    State
	Username string

	// password is staged during login and wiped when the conversation
	// leaves the login states; it is never written to durable storage.
	password string

	// pending holds the client mid-login (it carries the two-factor
	// identifier between attempts) until the session is bound.
	pending *igapi.Client

	// Stream target staged by a successful go-live, revealed via buttons.
	StreamServer string
	StreamKey    string
}

// endLogin resets the login portion of the flow, keeping stream state.
func (f *Flow) endLogin() {
	f.State = StateIdle
	f.password = ""
	f.pending = nil
}

// clearStream wipes the staged stream target after a broadcast ends.
func (f *Flow) clearStream() {
	f.StreamServer = ""
	f.StreamKey = ""
}

// manager is the mutex-guarded chat-user -> Flow table.
type manager struct {
	mu    sync.Mutex
	flows map[int64]*Flow
}

func newManager() *manager {
	return &manager{flows: make(map[int64]*Flow)}
}

// get returns the user's flow, creating it on first use.
func (m *manager) get(chatUserID int64) *Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[chatUserID]
	if !ok {
		f = &Flow{}
		m.flows[chatUserID] = f
	}
	return f
}

// peek returns the user's flow or nil without creating one.
func (m *manager) peek(chatUserID int64) *Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flows[chatUserID]
}
