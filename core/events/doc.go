// Package events defines the typed event contract emitted by the chat
// orchestrator.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - conversation.*
//   - exchange.*
//   - narration.*
//   - recognition.*
//   - draft.*
//   - notice.*
//
// Semantics used across the package:
//
//   - Appended: a new immutable entry joined an ordered sequence.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Started/Ended: lifecycle boundaries.
//   - Completed/Failed/Cancelled: exactly one of these closes an exchange.
//
// conversation events
//
//   - MessageAppended (conversation.message_appended): a user, assistant or
//     placeholder message was appended to the transcript.
//   - MessageUpdated (conversation.message_updated): the text of the message
//     currently receiving the stream changed; carries the full text.
//
// exchange events
//
//   - ExchangeStarted (exchange.started): the chat stream was requested.
//   - ExchangeCompleted (exchange.completed): the stream ended normally.
//   - ExchangeFailed (exchange.failed): the stream could not be opened or
//     broke mid-way; the bound message now holds a fallback text.
//   - ExchangeCancelled (exchange.cancelled): the stream was abandoned because
//     a newer exchange started or the user cancelled.
//
// narration events
//
//   - SentenceQueued (narration.sentence_queued): a completed sentence was
//     handed to the narration queue.
//   - UtteranceStarted (narration.utterance_started): the synthesizer started
//     speaking an utterance.
//   - UtteranceEnded (narration.utterance_ended): the utterance finished.
//   - NarrationCancelled (narration.cancelled): queue and current utterance
//     were dropped.
//
// recognition events
//
//   - RecognitionStateChanged (recognition.state_changed): speech input moved
//     between idle, listening, succeeded and failed.
//
// draft events
//
//   - DraftUpdated (draft.updated): the pending outbound text changed, e.g.
//     after a successful recognition.
//
// notice events
//
//   - Notice (notice.shown): one-shot user facing notice (missing capability,
//     recognition failure).
package events
