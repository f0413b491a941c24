package conversation

// Menu labels and callback identifiers. These are the wire-level strings the
// transport adapter renders as keyboards and receives back from the user.
const (
	LabelLogin       = "Login"
	LabelStartLive   = "Start Live"
	LabelStopLive    = "Stop Live"
	LabelLiveInfo    = "Live Info"
	LabelGetComments = "Get Comments"
	LabelGetViewers  = "Get Viewer List"

	CallbackSaveSession     = "save_session"
	CallbackDiscardSession  = "discard_session"
	CallbackAutoChallenge   = "auto_challenge"
	CallbackManualChallenge = "manual_challenge"
	CallbackShowURL         = "url"
	CallbackShowKey         = "key"
)

// Markup names the keyboard to attach to a reply. The transport adapter maps
// each value to its framework-specific keyboard type.
type Markup int

const (
	MarkupNone Markup = iota
	MarkupMainMenu        // Login | Start Live
	MarkupStartLiveMenu   // Start Live
	MarkupLiveMenu        // Stop Live, Live Info | Get Comments, Get Viewer List
	MarkupRemoveKeyboard  //
	MarkupSaveChoice      // save_session | discard_session (inline)
	MarkupChallengeChoice // auto_challenge | manual_challenge (inline)
	MarkupStreamReveal    // url | key (inline)
)

// Reply is one outbound message: text plus the keyboard to show with it.
type Reply struct {
	Text   string
	Markup Markup
}

func say(text string) Reply {
	return Reply{Text: text}
}

func sayWith(text string, m Markup) Reply {
	return Reply{Text: text, Markup: m}
}
