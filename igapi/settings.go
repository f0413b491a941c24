package igapi

import (
	"encoding/json"
	"fmt"
)

// settings is the serialized session state. The schema is owned by this package;
// callers treat the blob as opaque bytes.
type settings struct {
	Username      string `json:"username"`
	UserID        int64  `json:"user_id"`
	UUID          string `json:"uuid"`
	DeviceID      string `json:"device_id"`
	CSRFToken     string `json:"csrf_token"`
	Authorization string `json:"authorization"`
}

// DumpSettings serializes the authenticated session for persistence.
func (c *Client) DumpSettings() ([]byte, error) {
	if c.UserID == 0 {
		return nil, fmt.Errorf("no authenticated session to dump")
	}
	return json.Marshal(settings{
		Username:      c.Username,
		UserID:        c.UserID,
		UUID:          c.UUID,
		DeviceID:      c.DeviceID,
		CSRFToken:     c.CSRFToken,
		Authorization: c.authorization,
	})
}

// LoadSettings restores a session previously produced by DumpSettings. The
// restored session is unverified; callers should follow up with VerifySession.
func (c *Client) LoadSettings(blob []byte) error {
	var s settings
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("decode session settings: %w", err)
	}
	if s.UserID == 0 {
		return fmt.Errorf("session settings missing user id")
	}
	c.Username = s.Username
	c.UserID = s.UserID
	c.UUID = s.UUID
	c.DeviceID = s.DeviceID
	c.CSRFToken = s.CSRFToken
	c.authorization = s.Authorization
	return nil
}
