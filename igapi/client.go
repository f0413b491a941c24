// Package igapi is a minimal client for the Instagram private API: device-identified
// requests, username/password login with 2FA and checkpoint classification, and
// opaque session settings for persistence. It deliberately does not implement request
// signing or full device emulation; it models only the calls this bot needs.
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

	"github.com/google/uuid"
)

const defaultUserAgent = "Instagram 269.0.0.18.75 Android"

// Client is an authenticated handle to one account. Zero-value fields for the
// device identifiers are filled by NewClient; a Client restored via LoadSettings
// reuses the identifiers it was dumped with.
type Client struct {
	Username string
	UserID   int64

	// Device/session identity sent with every private request.
	UUID      string
	DeviceID  string
	CSRFToken string

	// BaseURL overrides the API endpoint (tests); empty means the real endpoint.
	BaseURL    string
	HTTPClient *http.Client

	authorization       string // bearer token issued at login
	twoFactorIdentifier string // echoed back on the 2FA retry
}

// NewClient returns a Client with freshly generated device identifiers.
func NewClient(baseURL string) *Client {
	return &Client{
		UUID:     uuid.New().String(),
		DeviceID: "android-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
		BaseURL:  baseURL,
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://i.instagram.com/api/v1"
}

// APIError is a non-2xx or status=fail response from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// PrivateRequest performs one round-trip against the private API and returns the
// raw JSON body. A nil form issues a GET, otherwise a form-encoded POST. The
// response is returned as-is when HTTP and platform status are both OK; any
// failure becomes an *APIError or transport error.
func (c *Client) PrivateRequest(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	method := http.MethodGet
	var body io.Reader
	if form != nil {
		method = http.MethodPost
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	// Some endpoints return bodies without the status envelope; tolerate that.
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || envelope.Status == "fail" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}
	return raw, nil
}

// PrivateRequestJSON decodes a PrivateRequest body into out.
func (c *Client) PrivateRequestJSON(ctx context.Context, path string, form url.Values, out any) error {
	raw, err := c.PrivateRequest(ctx, path, form)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// VerifySession checks that the bound session is still accepted by the platform
// by fetching the account's own user info. Used to validate a restored session
// before skipping the password prompt.
func (c *Client) VerifySession(ctx context.Context) error {
	if c.UserID == 0 {
		return fmt.Errorf("no user bound to session")
	}
	var body struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := c.PrivateRequestJSON(ctx, fmt.Sprintf("users/%d/info/", c.UserID), nil, &body); err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if body.User.Username == "" {
		return fmt.Errorf("verify session: user not present in response")
	}
	return nil
}
