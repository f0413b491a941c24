package igapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// LoginOutcome classifies a login attempt. The conversation layer branches on
// this value; errors carry detail for logging only.
type LoginOutcome int

const (
	LoginOK LoginOutcome = iota
	LoginTwoFactorRequired
	LoginChallengeRequired
	LoginBadCredentials
	LoginThrottled
	LoginFailed
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginOK:
		return "ok"
	case LoginTwoFactorRequired:
		return "two_factor_required"
	case LoginChallengeRequired:
		return "challenge_required"
	case LoginBadCredentials:
		return "bad_credentials"
	case LoginThrottled:
		return "throttled"
	default:
		return "failed"
	}
}

// LoginResult is the tagged outcome of one login attempt.
type LoginResult struct {
	Outcome LoginOutcome
	Err     error // non-nil detail for every outcome except LoginOK
}

// Login attempts a username/password login, optionally carrying a 2FA
// verification code from a previous LoginTwoFactorRequired outcome. On success
// the account identity and bearer token are bound into the Client.
func (c *Client) Login(ctx context.Context, password, verificationCode string) LoginResult {
	if c.Username == "" || password == "" {
		return LoginResult{Outcome: LoginFailed, Err: fmt.Errorf("username and password required")}
	}

	form := url.Values{}
	form.Set("username", c.Username)
	form.Set("password", password)
	form.Set("guid", c.UUID)
	form.Set("device_id", c.DeviceID)
	path := "accounts/login/"
	if verificationCode != "" {
		form.Set("verification_code", verificationCode)
		form.Set("two_factor_identifier", c.twoFactorIdentifier)
		path = "accounts/two_factor_login/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResult{Outcome: LoginFailed, Err: err}
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http().Do(req)
	if err != nil {
		return LoginResult{Outcome: LoginFailed, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoginResult{Outcome: LoginFailed, Err: err}
	}
	var body struct {
		Status            string `json:"status"`
		Message           string `json:"message"`
		TwoFactorRequired bool   `json:"two_factor_required"`
		TwoFactorInfo     struct {
			TwoFactorIdentifier string `json:"two_factor_identifier"`
		} `json:"two_factor_info"`
		LoggedInUser struct {
			PK       int64  `json:"pk"`
			Username string `json:"username"`
		} `json:"logged_in_user"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return LoginResult{Outcome: LoginFailed, Err: fmt.Errorf("decode login response: %w", err)}
	}

	if body.Status == "ok" && body.LoggedInUser.PK != 0 {
		c.UserID = body.LoggedInUser.PK
		if body.LoggedInUser.Username != "" {
			c.Username = body.LoggedInUser.Username
		}
		if auth := resp.Header.Get("Ig-Set-Authorization"); auth != "" {
			c.authorization = auth
		}
		if csrf := resp.Header.Get("Ig-Set-Csrf-Token"); csrf != "" {
			c.CSRFToken = csrf
		}
		return LoginResult{Outcome: LoginOK}
	}

	return c.classifyLoginFailure(resp.StatusCode, body.Message, body.TwoFactorRequired, body.TwoFactorInfo.TwoFactorIdentifier)
}

func (c *Client) classifyLoginFailure(status int, message string, twoFactor bool, twoFactorID string) LoginResult {
	switch {
	case twoFactor:
		c.twoFactorIdentifier = twoFactorID
		return LoginResult{Outcome: LoginTwoFactorRequired, Err: fmt.Errorf("two factor required")}
	case message == "challenge_required" || message == "checkpoint_challenge_required":
		return LoginResult{Outcome: LoginChallengeRequired, Err: fmt.Errorf("challenge required")}
	case message == "bad_password" || message == "invalid_user":
		return LoginResult{Outcome: LoginBadCredentials, Err: fmt.Errorf("bad credentials: %s", message)}
	case status == http.StatusTooManyRequests || message == "please_wait_few_minutes" || message == "rate_limit_error":
		return LoginResult{Outcome: LoginThrottled, Err: fmt.Errorf("throttled: %s", message)}
	default:
		if message == "" {
			message = fmt.Sprintf("http %d", status)
		}
		return LoginResult{Outcome: LoginFailed, Err: fmt.Errorf("login failed: %s", message)}
	}
}
