package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tventura/livecastbot/igapi"
	"github.com/tventura/livecastbot/live"
	"github.com/tventura/livecastbot/session"
	"github.com/tventura/livecastbot/telemetry"
)

// Engine runs the conversation state machine. It is transport-free: the bot
// adapter feeds it message text and callback data and renders the replies.
type Engine struct {
	// APIBase points account clients at the platform (overridden in tests).
	APIBase    string
	HTTPClient *http.Client

	Store    *session.FileStore
	Sessions *session.Registry
	Slots    *live.Slots

	flows *manager
}

func NewEngine(apiBase string, store *session.FileStore, sessions *session.Registry, slots *live.Slots) *Engine {
	return &Engine{
		APIBase:  apiBase,
		Store:    store,
		Sessions: sessions,
		Slots:    slots,
		flows:    newManager(),
	}
}

func (e *Engine) newClient() *igapi.Client {
	c := igapi.NewClient(e.APIBase)
	c.HTTPClient = e.HTTPClient
	return c
}

// FlowState reports the current conversation state for a chat user.
func (e *Engine) FlowState(chatUserID int64) State {
	if f := e.flows.peek(chatUserID); f != nil {
		return f.State
	}
	return StateIdle
}

// StreamTarget returns the staged stream server/key for a chat user.
func (e *Engine) StreamTarget(chatUserID int64) (server, key string) {
	if f := e.flows.peek(chatUserID); f != nil {
		return f.StreamServer, f.StreamKey
	}
	return "", ""
}

// HandleMessage consumes one free-text message from a chat user.
func (e *Engine) HandleMessage(ctx context.Context, chatUserID int64, text string) []Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if f := e.flows.peek(chatUserID); f != nil && f.State != StateIdle {
		switch f.State {
		case StateAwaitUsername:
			return e.handleUsername(ctx, chatUserID, f, text)
		case StateAwaitPassword:
			return e.handlePassword(ctx, chatUserID, f, text)
		case StateAwait2FA:
			return e.handleTwoFactor(ctx, chatUserID, f, text)
		case StateAwaitLiveTitle:
			return e.handleLiveTitle(ctx, chatUserID, f, text)
		default:
			// Choice states expect a button press; free text is ignored
			// and the conversation stays where it is.
			slog.Debug("unexpected text in choice state", slog.Int64("chat_user", chatUserID), slog.Int("state", int(f.State)))
			return nil
		}
	}

	switch text {
	case "/start":
		return []Reply{sayWith("Welcome! Please choose an option from the menu:", MarkupMainMenu)}
	case LabelLogin:
		f := e.flows.get(chatUserID)
		f.State = StateAwaitUsername
		return []Reply{sayWith("Please enter your Instagram username:", MarkupRemoveKeyboard)}
	case LabelStartLive:
		return e.enterLiveFlow(chatUserID)
	case LabelStopLive:
		return e.handleStopLive(ctx, chatUserID)
	case LabelLiveInfo:
		return e.handleLiveInfo(ctx, chatUserID)
	case LabelGetComments:
		return e.handleGetComments(ctx, chatUserID)
	case LabelGetViewers:
		return e.handleGetViewers(ctx, chatUserID)
	}
	// Unrecognized input outside a conversation is not ours to answer.
	return nil
}

// HandleCallback consumes one inline-button press from a chat user.
func (e *Engine) HandleCallback(ctx context.Context, chatUserID int64, data string) []Reply {
	switch data {
	case CallbackShowURL:
		server, _ := e.StreamTarget(chatUserID)
		if server == "" {
			server = "URL not available."
		}
		return []Reply{say(server)}
	case CallbackShowKey:
		_, key := e.StreamTarget(chatUserID)
		if key == "" {
			key = "Key not available."
		}
		return []Reply{say(key)}
	}

	f := e.flows.peek(chatUserID)
	if f == nil {
		return nil
	}
	switch {
	case f.State == StateAwaitChallengeChoice && (data == CallbackAutoChallenge || data == CallbackManualChallenge):
		return e.handleChallengeChoice(ctx, chatUserID, f, data)
	case f.State == StateAwaitSaveChoice && (data == CallbackSaveSession || data == CallbackDiscardSession):
		return e.handleSaveChoice(chatUserID, f, data)
	}
	slog.Debug("callback ignored in current state", slog.Int64("chat_user", chatUserID), slog.String("data", data), slog.Int("state", int(f.State)))
	return nil
}

// handleUsername stores the username and tries a silent session restore before
// asking for a password.
func (e *Engine) handleUsername(ctx context.Context, chatUserID int64, f *Flow, username string) []Reply {
	f.Username = username

	var replies []Reply
	if e.Store.Exists(username) {
		replies = append(replies, say("Session found! Verifying..."))
		c, err := e.restoreSession(ctx, username)
		if err == nil {
			e.Sessions.Put(chatUserID, c)
			telemetry.SetBoundSessions(e.Sessions.Len())
			f.endLogin()
			return append(replies, sayWith("You are already logged in with your saved session!", MarkupStartLiveMenu))
		}
		slog.Warn("session restore failed", slog.String("username", username), slog.Any("err", err))
		// A session file that no longer works is useless; drop it so the
		// next login starts clean, as a fresh password login will.
		if err := e.Store.Delete(username); err != nil {
			slog.Warn("failed to delete stale session file", slog.Any("err", err))
		}
		replies = append(replies, say("Invalid or expired session, a fresh login is needed."))
	}

	f.State = StateAwaitPassword
	return append(replies, say("Please enter your Instagram password:"))
}

func (e *Engine) restoreSession(ctx context.Context, username string) (*igapi.Client, error) {
	blob, err := e.Store.Load(username)
	if err != nil {
		return nil, err
	}
	c := e.newClient()
	if err := c.LoadSettings(blob); err != nil {
		return nil, err
	}
	if err := c.VerifySession(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// handlePassword runs the login attempt and branches on the tagged outcome.
func (e *Engine) handlePassword(ctx context.Context, chatUserID int64, f *Flow, password string) []Reply {
	f.password = password
	replies := []Reply{say("Attempting login...")}

	c := e.newClient()
	c.Username = f.Username
	res := c.Login(ctx, password, "")
	telemetry.CountLogin(res.Outcome.String())

	switch res.Outcome {
	case igapi.LoginOK:
		e.bindSession(chatUserID, f, c)
		return append(replies, sayWith("Login successful! Would you like to save the session for faster future logins?", MarkupSaveChoice))
	case igapi.LoginTwoFactorRequired:
		f.pending = c // keeps the two-factor identifier for the retry
		f.State = StateAwait2FA
		return append(replies, say("Instagram requires a 2FA code. Please enter it now:"))
	case igapi.LoginChallengeRequired:
		f.State = StateAwaitChallengeChoice
		replies = append(replies, say("Instagram triggered a checkpoint challenge (approval required). You can open the IG app/website to approve it, or try an automatic approach."))
		return append(replies, sayWith("Choose an option:", MarkupChallengeChoice))
	case igapi.LoginBadCredentials:
		slog.Info("login rejected", slog.String("username", f.Username), slog.Any("err", res.Err))
		f.endLogin()
		return append(replies, sayWith("Bad credentials. Check your username and password and try again.", MarkupMainMenu))
	case igapi.LoginThrottled:
		slog.Warn("login throttled", slog.String("username", f.Username), slog.Any("err", res.Err))
		f.endLogin()
		return append(replies, sayWith("Instagram is throttling login attempts. Wait a few minutes and try again.", MarkupMainMenu))
	default:
		slog.Error("login failed", slog.String("username", f.Username), slog.Any("err", res.Err))
		f.endLogin()
		return append(replies, sayWith("Error during login, please try again.", MarkupMainMenu))
	}
}

// handleTwoFactor retries the login with the submitted verification code.
func (e *Engine) handleTwoFactor(ctx context.Context, chatUserID int64, f *Flow, code string) []Reply {
	replies := []Reply{say("2FA verification in progress...")}
	c := f.pending
	if c == nil {
		f.endLogin()
		return append(replies, sayWith("Login state was lost, please start over.", MarkupMainMenu))
	}
	res := c.Login(ctx, f.password, code)
	telemetry.CountLogin(res.Outcome.String())
	if res.Outcome != igapi.LoginOK {
		slog.Warn("2fa login failed", slog.String("username", f.Username), slog.Any("err", res.Err))
		f.endLogin()
		return append(replies, sayWith("Error entering 2FA code or another issue occurred.", MarkupMainMenu))
	}
	e.bindSession(chatUserID, f, c)
	return append(replies, sayWith("2FA login successful! Would you like to save the session for faster future logins?", MarkupSaveChoice))
}

// handleChallengeChoice resolves the checkpoint branch.
func (e *Engine) handleChallengeChoice(ctx context.Context, chatUserID int64, f *Flow, data string) []Reply {
	if data == CallbackManualChallenge {
		f.endLogin()
		return []Reply{sayWith("Okay, please open the Instagram app or website and confirm the login request manually. Then you can try Login again.", MarkupMainMenu)}
	}

	// Automatic resolution: retry the login with no code, reusing any session
	// file on disk, and treat success as implicit approval. This relies on
	// undocumented platform behavior and may not work reliably.
	replies := []Reply{say("Attempting to resolve the challenge automatically... please wait.")}
	c := e.newClient()
	c.Username = f.Username
	if e.Store.Exists(f.Username) {
		if blob, err := e.Store.Load(f.Username); err == nil {
			if err := c.LoadSettings(blob); err != nil {
				slog.Debug("partial session not loadable for challenge retry", slog.Any("err", err))
			}
		}
	}
	res := c.Login(ctx, f.password, "")
	telemetry.CountLogin(res.Outcome.String())
	if res.Outcome != igapi.LoginOK {
		slog.Warn("automatic challenge resolution failed", slog.String("username", f.Username), slog.Any("err", res.Err))
		f.endLogin()
		return append(replies, sayWith("Automatic challenge resolution failed. Try again later or approve in the IG app.", MarkupMainMenu))
	}
	e.bindSession(chatUserID, f, c)
	return append(replies, sayWith("Challenge resolved automatically, login successful! Do you want to save the session?", MarkupSaveChoice))
}

// bindSession records the authenticated client and moves to the save decision.
func (e *Engine) bindSession(chatUserID int64, f *Flow, c *igapi.Client) {
	e.Sessions.Put(chatUserID, c)
	telemetry.SetBoundSessions(e.Sessions.Len())
	f.pending = c
	f.State = StateAwaitSaveChoice
}

// handleSaveChoice persists or discards the session file. Either way the bound
// session stays bound and the login conversation ends.
func (e *Engine) handleSaveChoice(chatUserID int64, f *Flow, data string) []Reply {
	var replies []Reply
	if data == CallbackSaveSession {
		c := f.pending
		if c == nil {
			c = e.Sessions.Get(chatUserID)
		}
		if c == nil {
			replies = append(replies, say("Cannot save session (no logged-in client found)."))
		} else if blob, err := c.DumpSettings(); err != nil {
			slog.Error("session dump failed", slog.String("username", f.Username), slog.Any("err", err))
			replies = append(replies, say(fmt.Sprintf("Error while saving the session: %v", err)))
		} else if err := e.Store.Save(f.Username, blob); err != nil {
			slog.Error("session save failed", slog.String("username", f.Username), slog.Any("err", err))
			replies = append(replies, say(fmt.Sprintf("Error while saving the session: %v", err)))
		} else {
			replies = append(replies, say("Session saved successfully!"))
		}
	} else {
		if err := e.Store.Delete(f.Username); err != nil {
			slog.Warn("session delete failed", slog.String("username", f.Username), slog.Any("err", err))
		}
		replies = append(replies, say("Session not saved."))
	}
	f.endLogin()
	return append(replies, sayWith("Now you can start a live or use commands from the menu.", MarkupStartLiveMenu))
}

// enterLiveFlow gates the go-live conversation: a bound session is required and
// the account must not already be broadcasting.
func (e *Engine) enterLiveFlow(chatUserID int64) []Reply {
	c := e.Sessions.Get(chatUserID)
	if c == nil {
		return []Reply{sayWith("You must first log in.", MarkupMainMenu)}
	}
	if e.Slots.Get(c.UserID) != nil {
		return []Reply{say("A live is already running.")}
	}
	f := e.flows.get(chatUserID)
	f.State = StateAwaitLiveTitle
	return []Reply{sayWith("Please enter the live title:", MarkupRemoveKeyboard)}
}

// handleLiveTitle creates and starts the broadcast for the submitted title.
func (e *Engine) handleLiveTitle(ctx context.Context, chatUserID int64, f *Flow, title string) []Reply {
	f.State = StateIdle
	c := e.Sessions.Get(chatUserID)
	if c == nil {
		return []Reply{sayWith("You must first log in.", MarkupMainMenu)}
	}
	// Reserve before any network call; a concurrent or stale second attempt
	// is rejected here without touching the platform.
	if err := e.Slots.Reserve(c.UserID); err != nil {
		return []Reply{say("A live is already running.")}
	}

	replies := []Reply{say("Creating live, please wait...")}
	bc := live.NewController(c)
	if err := bc.Create(ctx, title); err != nil {
		e.Slots.Release(c.UserID)
		return append(replies, sayWith("Error creating the live. Please try again.", MarkupStartLiveMenu))
	}
	if err := bc.Start(ctx); err != nil {
		e.Slots.Release(c.UserID)
		return append(replies, sayWith("Error starting the live. Please try again.", MarkupStartLiveMenu))
	}

	e.Slots.Commit(c.UserID, bc)
	f.StreamServer = bc.StreamServer
	f.StreamKey = bc.StreamKey
	if telemetry.BroadcastsStarted != nil {
		telemetry.BroadcastsStarted.Inc()
	}
	slog.Info("broadcast started", slog.String("broadcast_id", bc.BroadcastID), slog.String("username", c.Username))
	replies = append(replies, sayWith("Live successfully started! Use the buttons below:", MarkupStreamReveal))
	return append(replies, sayWith("Live commands:", MarkupLiveMenu))
}

// activeBroadcast resolves the caller's running broadcast, if any.
func (e *Engine) activeBroadcast(chatUserID int64) *live.Controller {
	c := e.Sessions.Get(chatUserID)
	if c == nil {
		return nil
	}
	return e.Slots.Get(c.UserID)
}

func (e *Engine) handleStopLive(ctx context.Context, chatUserID int64) []Reply {
	bc := e.activeBroadcast(chatUserID)
	if bc == nil {
		return []Reply{say("No live is currently running.")}
	}
	replies := []Reply{say("Ending live...")}
	if err := bc.End(ctx); err != nil {
		return append(replies, say("Error ending live."))
	}
	c := e.Sessions.Get(chatUserID)
	e.Slots.Release(c.UserID)
	if f := e.flows.peek(chatUserID); f != nil {
		f.clearStream()
	}
	if telemetry.BroadcastsEnded != nil {
		telemetry.BroadcastsEnded.Inc()
	}
	slog.Info("broadcast ended", slog.String("broadcast_id", bc.BroadcastID), slog.String("username", c.Username))
	return append(replies, sayWith("Live ended successfully.", MarkupMainMenu))
}

func (e *Engine) handleLiveInfo(ctx context.Context, chatUserID int64) []Reply {
	bc := e.activeBroadcast(chatUserID)
	if bc == nil {
		return []Reply{say("No live is currently running.")}
	}
	info, err := bc.Info(ctx)
	if err != nil {
		return []Reply{say("Error retrieving live information.")}
	}
	msg := fmt.Sprintf("📡 Live Info:\n- Broadcast ID: %s\n- Server URL: %s\n- Stream Key: %s\n- Viewer Count: %s\n- Status: %s",
		info.BroadcastID, info.StreamServer, info.StreamKey, info.ViewerCount, info.Status)
	return []Reply{say(msg)}
}

func (e *Engine) handleGetComments(ctx context.Context, chatUserID int64) []Reply {
	bc := e.activeBroadcast(chatUserID)
	if bc == nil {
		return []Reply{say("No live is currently running.")}
	}
	comments, err := bc.Comments(ctx)
	if err != nil {
		return []Reply{say("Error retrieving comments.")}
	}
	if len(comments) == 0 {
		return []Reply{say("No comments.")}
	}
	var b strings.Builder
	b.WriteString("Comments:")
	for _, c := range comments {
		b.WriteString(fmt.Sprintf("\n💬 %s > %s", c.Username, c.Text))
	}
	return []Reply{say(b.String())}
}

func (e *Engine) handleGetViewers(ctx context.Context, chatUserID int64) []Reply {
	bc := e.activeBroadcast(chatUserID)
	if bc == nil {
		return []Reply{say("No live is currently running.")}
	}
	viewers, err := bc.Viewers(ctx)
	if err != nil {
		return []Reply{say("Error retrieving the viewer list.")}
	}
	if len(viewers) == 0 {
		return []Reply{say("No one is watching the live.")}
	}
	var b strings.Builder
	b.WriteString("Viewer List:")
	for _, v := range viewers {
		b.WriteString(fmt.Sprintf("\n👤 %s", v.Username))
	}
	return []Reply{say(b.String())}
}
