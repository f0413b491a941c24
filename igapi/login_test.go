package igapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginClassification(t *testing.T) {
	tests := []struct {
		response    map[string]any
		name        string
		header      map[string]string
		statusCode  int
		wantOutcome LoginOutcome
		wantUserID  int64
	}{
		{
			name: "success binds identity",
			response: map[string]any{
				"status":         "ok",
				"logged_in_user": map[string]any{"pk": 4242, "username": "alice"},
			},
			header:      map[string]string{"Ig-Set-Authorization": "Bearer IGT:2:token"},
			statusCode:  http.StatusOK,
			wantOutcome: LoginOK,
			wantUserID:  4242,
		},
		{
			name: "two factor required",
			response: map[string]any{
				"status":              "fail",
				"two_factor_required": true,
				"two_factor_info":     map[string]any{"two_factor_identifier": "2fa-id-1"},
			},
			statusCode:  http.StatusBadRequest,
			wantOutcome: LoginTwoFactorRequired,
		},
		{
			name:        "challenge required",
			response:    map[string]any{"status": "fail", "message": "challenge_required"},
			statusCode:  http.StatusBadRequest,
			wantOutcome: LoginChallengeRequired,
		},
		{
			name:        "bad password",
			response:    map[string]any{"status": "fail", "message": "bad_password"},
			statusCode:  http.StatusBadRequest,
			wantOutcome: LoginBadCredentials,
		},
		{
			name:        "throttled by message",
			response:    map[string]any{"status": "fail", "message": "please_wait_few_minutes"},
			statusCode:  http.StatusBadRequest,
			wantOutcome: LoginThrottled,
		},
		{
			name:        "throttled by status code",
			response:    map[string]any{"status": "fail"},
			statusCode:  http.StatusTooManyRequests,
			wantOutcome: LoginThrottled,
		},
		{
			name:        "unknown failure",
			response:    map[string]any{"status": "fail", "message": "feedback_required"},
			statusCode:  http.StatusBadRequest,
			wantOutcome: LoginFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/accounts/login/" {
					t.Errorf("path = %s, want /accounts/login/", r.URL.Path)
				}
				if err := r.ParseForm(); err != nil {
					t.Fatalf("parse form: %v", err)
				}
				if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "hunter2" {
					t.Errorf("credentials not forwarded: %v", r.PostForm)
				}
				if r.PostForm.Get("guid") == "" || r.PostForm.Get("device_id") == "" {
					t.Error("device identifiers missing from login form")
				}
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.statusCode)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			c := NewClient(server.URL)
			c.Username = "alice"
			res := c.Login(context.Background(), "hunter2", "")
			if res.Outcome != tt.wantOutcome {
				t.Fatalf("outcome = %v, want %v (err=%v)", res.Outcome, tt.wantOutcome, res.Err)
			}
			if res.Outcome == LoginOK {
				if res.Err != nil {
					t.Errorf("err = %v on success", res.Err)
				}
				if c.UserID != tt.wantUserID {
					t.Errorf("UserID = %d, want %d", c.UserID, tt.wantUserID)
				}
				if c.authorization == "" {
					t.Error("authorization header not captured")
				}
			} else if res.Err == nil {
				t.Error("non-OK outcome without error detail")
			}
		})
	}
}

func TestLoginTwoFactorRetry(t *testing.T) {
	var gotPath, gotIdentifier, gotCode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/accounts/login/":
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":              "fail",
				"two_factor_required": true,
				"two_factor_info":     map[string]any{"two_factor_identifier": "2fa-xyz"},
			})
		case "/accounts/two_factor_login/":
			gotPath = r.URL.Path
			gotIdentifier = r.PostForm.Get("two_factor_identifier")
			gotCode = r.PostForm.Get("verification_code")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":         "ok",
				"logged_in_user": map[string]any{"pk": 7, "username": "alice"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	c.Username = "alice"
	if res := c.Login(context.Background(), "hunter2", ""); res.Outcome != LoginTwoFactorRequired {
		t.Fatalf("first attempt outcome = %v, want two factor", res.Outcome)
	}
	if res := c.Login(context.Background(), "hunter2", "123456"); res.Outcome != LoginOK {
		t.Fatalf("retry outcome = %v, want ok (err=%v)", res.Outcome, res.Err)
	}
	if gotPath != "/accounts/two_factor_login/" {
		t.Errorf("retry path = %q", gotPath)
	}
	if gotIdentifier != "2fa-xyz" {
		t.Errorf("two_factor_identifier = %q, want 2fa-xyz", gotIdentifier)
	}
	if gotCode != "123456" {
		t.Errorf("verification_code = %q, want 123456", gotCode)
	}
}

func TestLoginTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediately: connection refused

	c := NewClient(server.URL)
	c.Username = "alice"
	res := c.Login(context.Background(), "hunter2", "")
	if res.Outcome != LoginFailed || res.Err == nil {
		t.Errorf("outcome = %v err = %v, want failed with error", res.Outcome, res.Err)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	c := NewClient("http://unused")
	if res := c.Login(context.Background(), "", ""); res.Outcome != LoginFailed {
		t.Errorf("outcome = %v, want failed for missing password", res.Outcome)
	}
}
