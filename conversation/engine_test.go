package conversation

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/tventura/livecastbot/igapi"
	"github.com/tventura/livecastbot/live"
	"github.com/tventura/livecastbot/session"
	"github.com/tventura/livecastbot/testutil"
)

const chatUser int64 = 1001

func newTestEngine(t *testing.T) (*Engine, *testutil.MockPlatformServer) {
	t.Helper()
	m := testutil.NewMockPlatformServer(t)
	store := &session.FileStore{Dir: t.TempDir()}
	return NewEngine(m.URL, store, session.NewRegistry(), live.NewSlots()), m
}

// loginOK walks a user through a successful password login up to the save choice.
func loginOK(t *testing.T, e *Engine, m *testutil.MockPlatformServer, username string, accountID int64) {
	t.Helper()
	m.MockLoginSuccess(accountID, username)
	e.HandleMessage(context.Background(), chatUser, LabelLogin)
	e.HandleMessage(context.Background(), chatUser, username)
	replies := e.HandleMessage(context.Background(), chatUser, "hunter2")
	if e.FlowState(chatUser) != StateAwaitSaveChoice {
		t.Fatalf("state after login = %v, want save choice (replies %v)", e.FlowState(chatUser), replies)
	}
}

func lastReply(t *testing.T, replies []Reply) Reply {
	t.Helper()
	if len(replies) == 0 {
		t.Fatal("no replies")
	}
	return replies[len(replies)-1]
}

func TestLoginWithoutSessionFileAsksForPassword(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	replies := e.HandleMessage(ctx, chatUser, LabelLogin)
	if got := lastReply(t, replies); got.Markup != MarkupRemoveKeyboard || !strings.Contains(got.Text, "username") {
		t.Errorf("login entry reply = %+v", got)
	}
	if e.FlowState(chatUser) != StateAwaitUsername {
		t.Fatalf("state = %v, want await username", e.FlowState(chatUser))
	}

	replies = e.HandleMessage(ctx, chatUser, "alice")
	if got := lastReply(t, replies); !strings.Contains(got.Text, "password") {
		t.Errorf("username reply = %+v, want password prompt", got)
	}
	if e.FlowState(chatUser) != StateAwaitPassword {
		t.Errorf("state = %v, want await password", e.FlowState(chatUser))
	}
}

func TestLoginWithValidSessionSkipsPassword(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	// A previously saved session for bob.
	c := igapi.NewClient(m.URL)
	c.Username = "bob"
	c.UserID = 99
	blob, err := c.DumpSettings()
	if err != nil {
		t.Fatalf("DumpSettings: %v", err)
	}
	if err := e.Store.Save("bob", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m.MockUserInfo(99, "bob")

	e.HandleMessage(ctx, chatUser, LabelLogin)
	replies := e.HandleMessage(ctx, chatUser, "bob")
	if got := lastReply(t, replies); got.Markup != MarkupStartLiveMenu || !strings.Contains(got.Text, "already logged in") {
		t.Errorf("restore reply = %+v", got)
	}
	if e.FlowState(chatUser) != StateIdle {
		t.Errorf("state = %v, want idle after silent restore", e.FlowState(chatUser))
	}
	if e.Sessions.Get(chatUser) == nil {
		t.Error("no session bound after restore")
	}
	if n := m.Calls("/accounts/login/"); n != 0 {
		t.Errorf("login endpoint hit %d times during restore, want 0", n)
	}
}

func TestLoginWithStaleSessionFallsThroughToPassword(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	// Session file exists but the platform rejects verification (no user info mock).
	c := igapi.NewClient(m.URL)
	c.Username = "bob"
	c.UserID = 99
	blob, _ := c.DumpSettings()
	_ = e.Store.Save("bob", blob)

	e.HandleMessage(ctx, chatUser, LabelLogin)
	replies := e.HandleMessage(ctx, chatUser, "bob")
	if got := lastReply(t, replies); !strings.Contains(got.Text, "password") {
		t.Errorf("reply = %+v, want password prompt", got)
	}
	if e.FlowState(chatUser) != StateAwaitPassword {
		t.Errorf("state = %v, want await password", e.FlowState(chatUser))
	}
	if e.Store.Exists("bob") {
		t.Error("stale session file not removed")
	}
}

func TestLoginOutcomeBranches(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantState  State
		wantText   string
		wantMarkup Markup
	}{
		{
			name:       "bad credentials end the conversation",
			message:    "bad_password",
			wantState:  StateIdle,
			wantText:   "Bad credentials",
			wantMarkup: MarkupMainMenu,
		},
		{
			name:       "throttling is reported distinctly",
			message:    "please_wait_few_minutes",
			wantState:  StateIdle,
			wantText:   "throttling",
			wantMarkup: MarkupMainMenu,
		},
		{
			name:       "challenge opens the choice state",
			message:    "challenge_required",
			wantState:  StateAwaitChallengeChoice,
			wantText:   "Choose an option:",
			wantMarkup: MarkupChallengeChoice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newTestEngine(t)
			ctx := context.Background()
			m.MockLoginFailure(tt.message)

			e.HandleMessage(ctx, chatUser, LabelLogin)
			e.HandleMessage(ctx, chatUser, "alice")
			replies := e.HandleMessage(ctx, chatUser, "hunter2")
			got := lastReply(t, replies)
			if !strings.Contains(got.Text, tt.wantText) || got.Markup != tt.wantMarkup {
				t.Errorf("reply = %+v, want text containing %q markup %v", got, tt.wantText, tt.wantMarkup)
			}
			if e.FlowState(chatUser) != tt.wantState {
				t.Errorf("state = %v, want %v", e.FlowState(chatUser), tt.wantState)
			}
			if tt.wantState == StateIdle && e.Sessions.Get(chatUser) != nil {
				t.Error("session bound despite failed login")
			}
		})
	}
}

func TestTwoFactorFlow(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	m.MockLoginTwoFactor("2fa-id", 55, "alice")

	e.HandleMessage(ctx, chatUser, LabelLogin)
	e.HandleMessage(ctx, chatUser, "alice")
	replies := e.HandleMessage(ctx, chatUser, "hunter2")
	if got := lastReply(t, replies); !strings.Contains(got.Text, "2FA code") {
		t.Errorf("reply = %+v, want verification code prompt", got)
	}
	if e.FlowState(chatUser) != StateAwait2FA {
		t.Fatalf("state = %v, want await 2fa", e.FlowState(chatUser))
	}

	replies = e.HandleMessage(ctx, chatUser, "123456")
	if got := lastReply(t, replies); got.Markup != MarkupSaveChoice {
		t.Errorf("reply = %+v, want save choice", got)
	}
	if e.Sessions.Get(chatUser) == nil {
		t.Error("no session bound after 2FA login")
	}
	if n := m.Calls("/accounts/two_factor_login/"); n != 1 {
		t.Errorf("two factor endpoint calls = %d, want 1", n)
	}
}

func TestChallengeManualEndsWithoutSession(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	m.MockLoginFailure("challenge_required")

	e.HandleMessage(ctx, chatUser, LabelLogin)
	e.HandleMessage(ctx, chatUser, "alice")
	e.HandleMessage(ctx, chatUser, "hunter2")

	replies := e.HandleCallback(ctx, chatUser, CallbackManualChallenge)
	if got := lastReply(t, replies); got.Markup != MarkupMainMenu || !strings.Contains(got.Text, "manually") {
		t.Errorf("reply = %+v", got)
	}
	if e.FlowState(chatUser) != StateIdle || e.Sessions.Get(chatUser) != nil {
		t.Error("manual challenge must end the conversation without binding a session")
	}
}

func TestChallengeAutomaticResolve(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	m.MockLoginFailure("challenge_required")

	e.HandleMessage(ctx, chatUser, LabelLogin)
	e.HandleMessage(ctx, chatUser, "alice")
	e.HandleMessage(ctx, chatUser, "hunter2")
	if e.FlowState(chatUser) != StateAwaitChallengeChoice {
		t.Fatalf("state = %v", e.FlowState(chatUser))
	}

	// The platform now accepts the retry as implicit approval.
	m.MockLoginSuccess(55, "alice")
	replies := e.HandleCallback(ctx, chatUser, CallbackAutoChallenge)
	if got := lastReply(t, replies); got.Markup != MarkupSaveChoice {
		t.Errorf("reply = %+v, want save choice", got)
	}
	if e.Sessions.Get(chatUser) == nil {
		t.Error("no session bound after automatic resolve")
	}
}

func TestSaveSessionRestoresOnFreshProcess(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)

	replies := e.HandleCallback(ctx, chatUser, CallbackSaveSession)
	if !strings.Contains(replies[0].Text, "saved successfully") {
		t.Fatalf("save reply = %+v", replies)
	}
	if got := lastReply(t, replies); got.Markup != MarkupStartLiveMenu {
		t.Errorf("post-save reply = %+v", got)
	}
	if !e.Store.Exists("alice") {
		t.Fatal("session file not written")
	}

	// Fresh process: new engine over the same session dir restores without a
	// password prompt.
	m.MockUserInfo(55, "alice")
	e2 := NewEngine(m.URL, e.Store, session.NewRegistry(), live.NewSlots())
	e2.HandleMessage(ctx, chatUser, LabelLogin)
	got := lastReply(t, e2.HandleMessage(ctx, chatUser, "alice"))
	if !strings.Contains(got.Text, "already logged in") {
		t.Errorf("restore reply = %+v", got)
	}
	if e2.Sessions.Get(chatUser) == nil {
		t.Error("fresh process did not bind the restored session")
	}
}

func TestDiscardSessionDeletesFile(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	_ = e.Store.Save("alice", []byte(`{"user_id":55}`))

	replies := e.HandleCallback(ctx, chatUser, CallbackDiscardSession)
	if !strings.Contains(replies[0].Text, "not saved") {
		t.Errorf("discard reply = %+v", replies)
	}
	if e.Store.Exists("alice") {
		t.Error("session file still present after discard")
	}
	// Discard only affects the file: the in-memory session stays bound.
	if e.Sessions.Get(chatUser) == nil {
		t.Error("bound session lost on discard")
	}
}

func TestFreeTextInChoiceStateIsNoOp(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)

	if replies := e.HandleMessage(ctx, chatUser, "yes please"); replies != nil {
		t.Errorf("replies = %v, want none", replies)
	}
	if e.FlowState(chatUser) != StateAwaitSaveChoice {
		t.Error("state changed on unexpected input")
	}
}

func TestStartLiveRequiresLogin(t *testing.T) {
	e, _ := newTestEngine(t)
	replies := e.HandleMessage(context.Background(), chatUser, LabelStartLive)
	if got := lastReply(t, replies); !strings.Contains(got.Text, "first log in") {
		t.Errorf("reply = %+v", got)
	}
	if e.FlowState(chatUser) != StateIdle {
		t.Error("live flow entered without a session")
	}
}

func TestStartLiveFlow(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	e.HandleCallback(ctx, chatUser, CallbackDiscardSession)
	m.MockBroadcastLifecycle(17890)

	replies := e.HandleMessage(ctx, chatUser, LabelStartLive)
	if got := lastReply(t, replies); !strings.Contains(got.Text, "live title") {
		t.Fatalf("entry reply = %+v", got)
	}
	replies = e.HandleMessage(ctx, chatUser, "friday night")
	if len(replies) != 3 || replies[1].Markup != MarkupStreamReveal || replies[2].Markup != MarkupLiveMenu {
		t.Fatalf("go-live replies = %+v", replies)
	}

	server, key := e.StreamTarget(chatUser)
	if server == "" || !strings.HasPrefix(key, "17890") {
		t.Errorf("stream target = %q / %q", server, key)
	}
	if url := lastReply(t, e.HandleCallback(ctx, chatUser, CallbackShowURL)); url.Text != server {
		t.Errorf("url callback = %+v", url)
	}
	if k := lastReply(t, e.HandleCallback(ctx, chatUser, CallbackShowKey)); k.Text != key {
		t.Errorf("key callback = %+v", k)
	}

	// A second Start Live for the same account is rejected before create.
	created := m.Calls("/live/create/")
	got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelStartLive))
	if !strings.Contains(got.Text, "already running") {
		t.Errorf("second entry reply = %+v", got)
	}
	if m.Calls("/live/create/") != created {
		t.Error("create invoked despite active broadcast")
	}
	if e.Slots.Active() != 1 {
		t.Errorf("active slots = %d, want 1", e.Slots.Active())
	}
}

func TestStartLiveAbortsOnCreateFailure(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	e.HandleCallback(ctx, chatUser, CallbackDiscardSession)
	// No broadcast mocks: create will fail.

	e.HandleMessage(ctx, chatUser, LabelStartLive)
	replies := e.HandleMessage(ctx, chatUser, "title")
	if got := lastReply(t, replies); !strings.Contains(got.Text, "Error creating") || got.Markup != MarkupStartLiveMenu {
		t.Errorf("reply = %+v", got)
	}
	if e.Slots.Active() != 0 {
		t.Error("slot leaked after create failure")
	}

	// Start failure also releases the reserved slot.
	m.MockBroadcastLifecycle(5)
	delete(m.Handlers, "/live/5/start/")
	e.HandleMessage(ctx, chatUser, LabelStartLive)
	replies = e.HandleMessage(ctx, chatUser, "title")
	if got := lastReply(t, replies); !strings.Contains(got.Text, "Error starting") {
		t.Errorf("reply = %+v", got)
	}
	if e.Slots.Active() != 0 {
		t.Error("slot leaked after start failure")
	}
}

func TestStopLiveFreesSlotForNextStart(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	e.HandleCallback(ctx, chatUser, CallbackDiscardSession)
	m.MockBroadcastLifecycle(17890)

	e.HandleMessage(ctx, chatUser, LabelStartLive)
	e.HandleMessage(ctx, chatUser, "t")

	replies := e.HandleMessage(ctx, chatUser, LabelStopLive)
	if got := lastReply(t, replies); got.Markup != MarkupMainMenu || !strings.Contains(got.Text, "ended successfully") {
		t.Fatalf("stop reply = %+v", got)
	}
	if e.Slots.Active() != 0 {
		t.Error("slot not released on stop")
	}
	if server, key := e.StreamTarget(chatUser); server != "" || key != "" {
		t.Error("stream target not cleared on stop")
	}

	// The account can go live again.
	got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelStartLive))
	if !strings.Contains(got.Text, "live title") {
		t.Errorf("re-entry reply = %+v", got)
	}
}

func TestLiveQueriesWithoutBroadcast(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	e.HandleCallback(ctx, chatUser, CallbackDiscardSession)

	for _, label := range []string{LabelStopLive, LabelLiveInfo, LabelGetComments, LabelGetViewers} {
		got := lastReply(t, e.HandleMessage(ctx, chatUser, label))
		if !strings.Contains(got.Text, "No live is currently running.") {
			t.Errorf("%s reply = %+v", label, got)
		}
	}
}

func TestLiveTelemetryCommands(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	loginOK(t, e, m, "alice", 55)
	e.HandleCallback(ctx, chatUser, CallbackDiscardSession)
	m.MockBroadcastLifecycle(7)
	e.HandleMessage(ctx, chatUser, LabelStartLive)
	e.HandleMessage(ctx, chatUser, "t")

	m.MockComments(7, []map[string]any{{"user": map[string]any{"username": "carol"}, "text": "hi"}})
	got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelGetComments))
	if !strings.Contains(got.Text, "carol > hi") {
		t.Errorf("comments reply = %+v", got)
	}

	// Empty buffer and failed request read differently.
	m.MockComments(7, nil)
	if got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelGetComments)); got.Text != "No comments." {
		t.Errorf("empty comments reply = %+v", got)
	}
	delete(m.Handlers, "/live/7/get_comment/")
	if got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelGetComments)); !strings.Contains(got.Text, "Error retrieving comments") {
		t.Errorf("failed comments reply = %+v", got)
	}

	m.MockViewers(7, []map[string]any{{"username": "erin", "pk": 9}})
	if got := lastReply(t, e.HandleMessage(ctx, chatUser, LabelGetViewers)); !strings.Contains(got.Text, "erin") {
		t.Errorf("viewers reply = %+v", got)
	}

	m.Handlers["/live/7/info/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","viewer_count":3,"broadcast_status":"active"}`))
	}
	got = lastReply(t, e.HandleMessage(ctx, chatUser, LabelLiveInfo))
	if !strings.Contains(got.Text, "Viewer Count: 3") || !strings.Contains(got.Text, "Status: active") {
		t.Errorf("info reply = %+v", got)
	}
}
