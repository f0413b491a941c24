// Package live wraps the platform's live-broadcast endpoints: create/start/end,
// status info, and the comment/viewer telemetry reads. It also owns the
// per-account table of active broadcasts.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tventura/livecastbot/igapi"
	"github.com/tventura/livecastbot/telemetry"
)

// NotAvailable is the sentinel for info fields the platform omitted.
const NotAvailable = "N/A"

// Controller drives one broadcast on one account. Create binds the broadcast id
// and stream target; the remaining operations reference that id.
type Controller struct {
	Client *igapi.Client

	BroadcastID  string
	StreamServer string
	StreamKey    string
}

func NewController(c *igapi.Client) *Controller {
	return &Controller{Client: c}
}

// identity returns the device/session fields every broadcast request carries.
func (bc *Controller) identity() url.Values {
	form := url.Values{}
	form.Set("_uuid", bc.Client.UUID)
	form.Set("_uid", strconv.FormatInt(bc.Client.UserID, 10))
	form.Set("_csrftoken", bc.Client.CSRFToken)
	return form
}

func (bc *Controller) request(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	var err error
	telemetry.TimeFunc(telemetry.APIRequestDuration, func() {
		raw, err = bc.Client.PrivateRequest(ctx, path, form)
	})
	if err != nil && telemetry.APIErrors != nil {
		telemetry.APIErrors.Inc()
	}
	return raw, err
}

// Create requests a new RTMP broadcast and derives the ingest server and stream
// key from the returned upload URL: the URL is split on the broadcast id's
// textual form; the prefix is the server, the id plus the suffix is the key.
// A response missing the id, or whose URL does not contain it, is an error and
// leaves the controller unbound.
func (bc *Controller) Create(ctx context.Context, title string) error {
	form := bc.identity()
	form.Set("preview_height", "1920")
	form.Set("preview_width", "1080")
	form.Set("broadcast_message", title)
	form.Set("broadcast_type", "RTMP")
	form.Set("internal_only", "0")

	raw, err := bc.request(ctx, "live/create/", form)
	if err != nil {
		slog.Error("live create failed", slog.Any("err", err))
		return fmt.Errorf("create broadcast: %w", err)
	}
	var body struct {
		BroadcastID json.Number `json:"broadcast_id"`
		UploadURL   string      `json:"upload_url"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		slog.Error("live create response malformed", slog.Any("err", err))
		return fmt.Errorf("create broadcast: decode response: %w", err)
	}
	id := body.BroadcastID.String()
	if id == "" || id == "0" {
		return fmt.Errorf("create broadcast: response missing broadcast id")
	}
	parts := strings.SplitN(body.UploadURL, id, 2)
	if len(parts) < 2 {
		return fmt.Errorf("create broadcast: upload url %q does not contain broadcast id", body.UploadURL)
	}
	bc.BroadcastID = id
	bc.StreamServer = parts[0]
	bc.StreamKey = id + parts[1]
	return nil
}

// Start begins the created broadcast.
func (bc *Controller) Start(ctx context.Context) error {
	form := bc.identity()
	form.Set("should_send_notifications", "1")
	if _, err := bc.request(ctx, "live/"+bc.BroadcastID+"/start/", form); err != nil {
		slog.Error("live start failed", slog.String("broadcast_id", bc.BroadcastID), slog.Any("err", err))
		return fmt.Errorf("start broadcast: %w", err)
	}
	return nil
}

// End terminates the broadcast.
func (bc *Controller) End(ctx context.Context) error {
	if _, err := bc.request(ctx, "live/"+bc.BroadcastID+"/end_broadcast/", bc.identity()); err != nil {
		slog.Error("live end failed", slog.String("broadcast_id", bc.BroadcastID), slog.Any("err", err))
		return fmt.Errorf("end broadcast: %w", err)
	}
	return nil
}

// Info is a snapshot of the live status. ViewerCount and Status fall back to
// NotAvailable when the platform omits them.
type Info struct {
	BroadcastID  string
	StreamServer string
	StreamKey    string
	ViewerCount  string
	Status       string
}

// Info fetches the current viewer count and broadcast status.
func (bc *Controller) Info(ctx context.Context) (Info, error) {
	raw, err := bc.request(ctx, "live/"+bc.BroadcastID+"/info/", nil)
	if err != nil {
		slog.Error("live info failed", slog.String("broadcast_id", bc.BroadcastID), slog.Any("err", err))
		return Info{}, fmt.Errorf("broadcast info: %w", err)
	}
	var body struct {
		ViewerCount     *json.Number `json:"viewer_count"`
		BroadcastStatus *string      `json:"broadcast_status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Info{}, fmt.Errorf("broadcast info: decode response: %w", err)
	}
	info := Info{
		BroadcastID:  bc.BroadcastID,
		StreamServer: bc.StreamServer,
		StreamKey:    bc.StreamKey,
		ViewerCount:  NotAvailable,
		Status:       NotAvailable,
	}
	if body.ViewerCount != nil {
		info.ViewerCount = body.ViewerCount.String()
	}
	if body.BroadcastStatus != nil {
		info.Status = *body.BroadcastStatus
	}
	return info, nil
}

// Comment is one viewer comment on the broadcast.
type Comment struct {
	Username string
	Text     string
}

// Comments fetches the current comment buffer. A response without a comments
// field yields an empty slice with nil error; only transport/platform failures
// return a non-nil error, so callers can tell "none yet" from "request failed".
func (bc *Controller) Comments(ctx context.Context) ([]Comment, error) {
	raw, err := bc.request(ctx, "live/"+bc.BroadcastID+"/get_comment/", nil)
	if err != nil {
		slog.Error("live comments failed", slog.String("broadcast_id", bc.BroadcastID), slog.Any("err", err))
		return nil, fmt.Errorf("broadcast comments: %w", err)
	}
	var body struct {
		Comments []struct {
			User struct {
				Username string `json:"username"`
			} `json:"user"`
			Text string `json:"text"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("broadcast comments: decode response: %w", err)
	}
	out := make([]Comment, 0, len(body.Comments))
	for _, c := range body.Comments {
		out = append(out, Comment{Username: c.User.Username, Text: c.Text})
	}
	return out, nil
}

// Viewer is one member of the broadcast's viewer roster.
type Viewer struct {
	Username string
	ID       int64
}

// Viewers fetches the viewer roster with the same result shape as Comments:
// empty slice means nobody is watching, non-nil error means the request failed.
func (bc *Controller) Viewers(ctx context.Context) ([]Viewer, error) {
	raw, err := bc.request(ctx, "live/"+bc.BroadcastID+"/get_viewer_list/", nil)
	if err != nil {
		slog.Warn("live viewer list failed", slog.String("broadcast_id", bc.BroadcastID), slog.Any("err", err))
		return nil, fmt.Errorf("broadcast viewers: %w", err)
	}
	var body struct {
		Users []struct {
			Username string `json:"username"`
			PK       int64  `json:"pk"`
		} `json:"users"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("broadcast viewers: decode response: %w", err)
	}
	out := make([]Viewer, 0, len(body.Users))
	for _, u := range body.Users {
		out = append(out, Viewer{Username: u.Username, ID: u.PK})
	}
	slog.Debug("viewer list retrieved", slog.Int("count", len(out)))
	return out, nil
}
