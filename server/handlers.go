package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tventura/livecastbot/live"
	"github.com/tventura/livecastbot/session"
)

// Handlers holds the shared state the operational endpoints report on.
type Handlers struct {
	sessions *session.Registry
	slots    *live.Slots
	started  time.Time
}

// NewHandlers creates handlers over the bot's session registry and broadcast
// slot table.
func NewHandlers(sessions *session.Registry, slots *live.Slots) *Handlers {
	return &Handlers{
		sessions: sessions,
		slots:    slots,
		started:  time.Now(),
	}
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus returns a lightweight status summary: bound sessions, active
// broadcasts, and uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"bound_sessions":    h.sessions.Len(),
		"active_broadcasts": h.slots.Active(),
		"uptime_seconds":    int(time.Since(h.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
