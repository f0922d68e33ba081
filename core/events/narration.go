package events

const (
	// KindSentenceQueued identifies a sentence handed to the narration queue.
	KindSentenceQueued Kind = "narration.sentence_queued"
	// KindUtteranceStarted identifies the start of an utterance playback.
	KindUtteranceStarted Kind = "narration.utterance_started"
	// KindUtteranceEnded identifies the end of an utterance playback.
	KindUtteranceEnded Kind = "narration.utterance_ended"
	// KindNarrationCancelled identifies a queue wide cancellation.
	KindNarrationCancelled Kind = "narration.cancelled"
)

// SentenceQueued carries the queued sentence.
type SentenceQueued struct {
	Base
	Sentence string
}

// NewSentenceQueued creates a sentence queued event.
func NewSentenceQueued(sentence string) SentenceQueued {
	return SentenceQueued{Base: NewBase(KindSentenceQueued), Sentence: sentence}
}

// UtteranceStarted carries the text that started playing.
type UtteranceStarted struct {
	Base
	Text string
}

// NewUtteranceStarted creates an utterance started event.
func NewUtteranceStarted(text string) UtteranceStarted {
	return UtteranceStarted{Base: NewBase(KindUtteranceStarted), Text: text}
}

// UtteranceEnded carries the text that finished playing. Err is set when the
// synthesizer reported a failure for this utterance.
type UtteranceEnded struct {
	Base
	Text string
	Err  error
}

// NewUtteranceEnded creates an utterance ended event.
func NewUtteranceEnded(text string, err error) UtteranceEnded {
	return UtteranceEnded{Base: NewBase(KindUtteranceEnded), Text: text, Err: err}
}

// NarrationCancelled marks that pending and playing narration was dropped.
type NarrationCancelled struct {
	Base
	Dropped int
}

// NewNarrationCancelled creates a narration cancelled event.
func NewNarrationCancelled(dropped int) NarrationCancelled {
	return NarrationCancelled{Base: NewBase(KindNarrationCancelled), Dropped: dropped}
}
