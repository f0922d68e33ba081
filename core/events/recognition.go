package events

const (
	// KindRecognitionStateChanged identifies a speech input state transition.
	KindRecognitionStateChanged Kind = "recognition.state_changed"
	// KindDraftUpdated identifies a change of the pending outbound text.
	KindDraftUpdated Kind = "draft.updated"
	// KindNotice identifies a one-shot user facing notice.
	KindNotice Kind = "notice.shown"
)

// RecognitionStateChanged carries the new state and the reason of the
// transition. Transcript is only set for the succeeded state.
type RecognitionStateChanged struct {
	Base
	State      string
	Reason     string
	Transcript string
}

// NewRecognitionStateChanged creates a recognition state changed event.
func NewRecognitionStateChanged(state, reason, transcript string) RecognitionStateChanged {
	return RecognitionStateChanged{
		Base:       NewBase(KindRecognitionStateChanged),
		State:      state,
		Reason:     reason,
		Transcript: transcript,
	}
}

// DraftUpdated carries the full pending outbound text.
type DraftUpdated struct {
	Base
	Text string
}

// NewDraftUpdated creates a draft updated event.
func NewDraftUpdated(text string) DraftUpdated {
	return DraftUpdated{Base: NewBase(KindDraftUpdated), Text: text}
}

// Notice is a one-shot message meant to be shown to the user.
type Notice struct {
	Base
	Code    string
	Message string
}

// NewNotice creates a notice event.
func NewNotice(code, message string) Notice {
	return Notice{Base: NewBase(KindNotice), Code: code, Message: message}
}
