package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockPlatformServer mocks the private API for tests: handlers are registered
// per path and every request path is counted so tests can assert which
// operations were (or were not) invoked.
type MockPlatformServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockPlatformServer creates a mock private API server.
func NewMockPlatformServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := &MockPlatformServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls[r.URL.Path]++
		m.mu.Unlock()
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "fail", "message": "not_found"}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// Calls returns how many requests hit the given path.
func (m *MockPlatformServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

func (m *MockPlatformServer) respond(path string, status int, body map[string]any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockLoginSuccess makes password logins succeed for the given identity.
func (m *MockPlatformServer) MockLoginSuccess(userID int64, username string) {
	m.Handlers["/accounts/login/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:mock")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"status":         "ok",
			"logged_in_user": map[string]any{"pk": userID, "username": username},
		})
	}
}

// MockLoginFailure makes password logins fail with a platform message
// (e.g. "bad_password", "challenge_required", "please_wait_few_minutes").
func (m *MockPlatformServer) MockLoginFailure(message string) {
	m.respond("/accounts/login/", http.StatusBadRequest, map[string]any{"status": "fail", "message": message})
}

// MockLoginTwoFactor makes password logins demand a verification code, and
// makes the 2FA retry succeed for the given identity.
func (m *MockPlatformServer) MockLoginTwoFactor(identifier string, userID int64, username string) {
	m.respond("/accounts/login/", http.StatusBadRequest, map[string]any{
		"status":              "fail",
		"two_factor_required": true,
		"two_factor_info":     map[string]any{"two_factor_identifier": identifier},
	})
	m.respond("/accounts/two_factor_login/", http.StatusOK, map[string]any{
		"status":         "ok",
		"logged_in_user": map[string]any{"pk": userID, "username": username},
	})
}

// MockUserInfo makes session verification succeed for the given identity.
func (m *MockPlatformServer) MockUserInfo(userID int64, username string) {
	m.respond(fmt.Sprintf("/users/%d/info/", userID), http.StatusOK, map[string]any{
		"status": "ok",
		"user":   map[string]any{"pk": userID, "username": username},
	})
}

// MockBroadcastLifecycle wires create/start/end for a broadcast id whose
// upload URL embeds the id (the shape Create splits on).
func (m *MockPlatformServer) MockBroadcastLifecycle(broadcastID int64) {
	m.respond("/live/create/", http.StatusOK, map[string]any{
		"status":       "ok",
		"broadcast_id": broadcastID,
		"upload_url":   fmt.Sprintf("rtmps://live-upload.example.com/rtmp/%d?s_sw=0", broadcastID),
	})
	m.respond(fmt.Sprintf("/live/%d/start/", broadcastID), http.StatusOK, map[string]any{"status": "ok"})
	m.respond(fmt.Sprintf("/live/%d/end_broadcast/", broadcastID), http.StatusOK, map[string]any{"status": "ok"})
}

// MockComments sets the comment buffer for a broadcast.
func (m *MockPlatformServer) MockComments(broadcastID int64, comments []map[string]any) {
	m.respond(fmt.Sprintf("/live/%d/get_comment/", broadcastID), http.StatusOK, map[string]any{
		"status":   "ok",
		"comments": comments,
	})
}

// MockViewers sets the viewer roster for a broadcast.
func (m *MockPlatformServer) MockViewers(broadcastID int64, users []map[string]any) {
	m.respond(fmt.Sprintf("/live/%d/get_viewer_list/", broadcastID), http.StatusOK, map[string]any{
		"status": "ok",
		"users":  users,
	})
}
