package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RecognitionState string

const (
	RecognitionIdle      RecognitionState = "idle"
	RecognitionListening RecognitionState = "listening"
	RecognitionSucceeded RecognitionState = "succeeded"
	RecognitionFailed    RecognitionState = "failed"
)

type RecognitionReason string

const (
	ReasonNone                  RecognitionReason = ""
	ReasonCancelled             RecognitionReason = "cancelled"
	ReasonCapabilityUnavailable RecognitionReason = "capability-unavailable"
	ReasonNoSpeech              RecognitionReason = "no-speech"
	ReasonTimeout               RecognitionReason = "timeout"
	ReasonError                 RecognitionReason = "error"
)

const DefaultListenTimeout = 10 * time.Second

type recognitionAttempt struct {
	session        speechtotext.Session
	sessionStopped bool
	done           bool

	cancel     context.CancelFunc
	timer      *time.Timer
	cancelHook chan struct{}
	span       trace.Span
}

// sessionToStopLocked hands out the session exactly once.
func (a *recognitionAttempt) sessionToStopLocked() speechtotext.Session {
	if a.session == nil || a.sessionStopped {
		return nil
	}
	a.sessionStopped = true
	return a.session
}

// speechInput is the only caller of the recognizer. At most one capture
// session is open; starting a new one cancels the previous one.
type speechInput struct {
	mu sync.Mutex

	recognizer speechtotext.Recognizer
	language   string
	timeout    time.Duration

	state   RecognitionState
	attempt *recognitionAttempt

	onResult func(transcript string)
	emit     eventEmitter
}

func newSpeechInput(recognizer speechtotext.Recognizer, language string, timeout time.Duration, onResult func(string), emit eventEmitter) *speechInput {
	if onResult == nil {
		onResult = func(string) {}
	}
	if emit == nil {
		emit = noopEventEmitter
	}
	return &speechInput{
		recognizer: recognizer,
		language:   language,
		timeout:    timeout,
		state:      RecognitionIdle,
		onResult:   onResult,
		emit:       emit,
	}
}

func (s *speechInput) State() RecognitionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Start opens a new capture session, cancelling any session still listening.
// A missing capability is reported synchronously and leaves the controller
// idle. ctx bounds the whole attempt.
func (s *speechInput) Start(ctx context.Context) error {
	var pending []events.Event

	s.mu.Lock()
	if previous := s.attempt; previous != nil {
		pending = append(pending, s.endAttemptLocked(previous, RecognitionIdle, ReasonCancelled, "")...)
		s.stopSessionAsync(previous)
	}

	if s.recognizer == nil {
		pending = append(pending, s.capabilityUnavailableLocked()...)
		s.mu.Unlock()
		s.emitAll(pending)
		return ErrCapabilityUnavailable
	}

	ctx, span := tracer.Start(ctx, "recognize speech")
	span.SetAttributes(attribute.String("recognition.language", s.language))
	ctx, cancel := context.WithCancel(ctx)
	attempt := &recognitionAttempt{cancel: cancel, span: span}
	s.attempt = attempt
	s.state = RecognitionListening
	pending = append(pending, events.NewRecognitionStateChanged(string(RecognitionListening), string(ReasonNone), ""))
	s.mu.Unlock()
	s.emitAll(pending)

	session, err := s.recognizer.StartRecognition(ctx,
		speechtotext.WithLanguage(s.language),
		speechtotext.WithMaxAlternatives(1),
		speechtotext.WithStartedCallback(func() { span.AddEvent("capture started") }),
		speechtotext.WithResultCallback(func(transcript string) { s.complete(attempt, transcript, nil) }),
		speechtotext.WithErrorCallback(func(err error) { s.complete(attempt, "", err) }),
	)

	s.mu.Lock()
	attempt.session = session
	if err != nil {
		if attempt.done {
			s.mu.Unlock()
			return nil
		}
		if errors.Is(err, speechtotext.ErrCapabilityUnavailable) {
			s.endAttemptLocked(attempt, RecognitionIdle, ReasonNone, "")
			pending = s.capabilityUnavailableLocked()
			s.mu.Unlock()
			s.emitAll(pending)
			return ErrCapabilityUnavailable
		}
		s.mu.Unlock()
		s.complete(attempt, "", err)
		return nil
	}

	if attempt.done {
		toStop := attempt.sessionToStopLocked()
		s.mu.Unlock()
		stopSession(toStop)
		return nil
	}

	if s.timeout > 0 {
		attempt.timer = time.AfterFunc(s.timeout, func() { s.complete(attempt, "", errListenTimeout) })
	}
	attempt.cancelHook = withContextCancelHook(ctx, func() { s.cancel(attempt) })
	s.mu.Unlock()
	return nil
}

// Stop abandons the listening session without reporting a failure.
func (s *speechInput) Stop() {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()

	if attempt != nil {
		s.cancel(attempt)
	}
}

func (s *speechInput) cancel(attempt *recognitionAttempt) {
	s.mu.Lock()
	if attempt.done || s.attempt != attempt {
		s.mu.Unlock()
		return
	}
	pending := s.endAttemptLocked(attempt, RecognitionIdle, ReasonCancelled, "")
	toStop := attempt.sessionToStopLocked()
	s.mu.Unlock()

	stopSession(toStop)
	s.emitAll(pending)
}

// complete applies the single terminal transition of attempt. Anything
// arriving for a finished or superseded attempt is ignored.
func (s *speechInput) complete(attempt *recognitionAttempt, transcript string, err error) {
	s.mu.Lock()
	if attempt.done || s.attempt != attempt {
		s.mu.Unlock()
		return
	}

	transcript = strings.TrimSpace(transcript)
	if err == nil && transcript == "" {
		err = speechtotext.ErrNoSpeech
	}

	if err == nil {
		succeeded := s.endAttemptLocked(attempt, RecognitionSucceeded, ReasonNone, transcript)
		toStop := attempt.sessionToStopLocked()
		s.mu.Unlock()

		stopSession(toStop)
		s.emitAll(succeeded)
		s.onResult(transcript)

		s.mu.Lock()
		idle := s.state == RecognitionSucceeded && s.attempt == nil
		if idle {
			s.state = RecognitionIdle
		}
		s.mu.Unlock()
		if idle {
			s.emit(events.NewRecognitionStateChanged(string(RecognitionIdle), string(ReasonNone), ""))
		}
		return
	}

	reason := recognitionReason(err)
	attempt.span.RecordError(fmt.Errorf("%w: %w", ErrRecognitionFailed, err))
	pending := s.endAttemptLocked(attempt, RecognitionFailed, reason, "")
	pending = append(pending,
		events.NewNotice(string(reason), recognitionNotice(reason)),
		events.NewRecognitionStateChanged(string(RecognitionIdle), string(ReasonNone), ""),
	)
	s.state = RecognitionIdle
	toStop := attempt.sessionToStopLocked()
	s.mu.Unlock()

	stopSession(toStop)
	s.emitAll(pending)
}

// endAttemptLocked marks attempt done, releases its watchdogs and moves the
// controller to state.
func (s *speechInput) endAttemptLocked(attempt *recognitionAttempt, state RecognitionState, reason RecognitionReason, transcript string) []events.Event {
	attempt.done = true
	if attempt.timer != nil {
		attempt.timer.Stop()
	}
	if attempt.cancelHook != nil {
		close(attempt.cancelHook)
	}
	attempt.cancel()
	attempt.span.SetAttributes(
		attribute.String("recognition.state", string(state)),
		attribute.String("recognition.reason", string(reason)),
	)
	attempt.span.End()

	if s.attempt == attempt {
		s.attempt = nil
	}
	s.state = state
	return []events.Event{events.NewRecognitionStateChanged(string(state), string(reason), transcript)}
}

func (s *speechInput) capabilityUnavailableLocked() []events.Event {
	s.state = RecognitionIdle
	return []events.Event{
		events.NewRecognitionStateChanged(string(RecognitionFailed), string(ReasonCapabilityUnavailable), ""),
		events.NewNotice(string(ReasonCapabilityUnavailable), recognitionNotice(ReasonCapabilityUnavailable)),
		events.NewRecognitionStateChanged(string(RecognitionIdle), string(ReasonNone), ""),
	}
}

// stopSessionAsync stops a superseded session without holding up Start.
func (s *speechInput) stopSessionAsync(attempt *recognitionAttempt) {
	if toStop := attempt.sessionToStopLocked(); toStop != nil {
		go stopSession(toStop)
	}
}

func (s *speechInput) emitAll(pending []events.Event) {
	for _, event := range pending {
		s.emit(event)
	}
}

func stopSession(session speechtotext.Session) {
	if session == nil {
		return
	}
	if err := session.Stop(); err != nil {
		logger.Warn("failed to stop recognition session", "error", err)
	}
}

func recognitionReason(err error) RecognitionReason {
	switch {
	case errors.Is(err, errListenTimeout):
		return ReasonTimeout
	case errors.Is(err, speechtotext.ErrNoSpeech):
		return ReasonNoSpeech
	case errors.Is(err, speechtotext.ErrCapabilityUnavailable):
		return ReasonCapabilityUnavailable
	default:
		return ReasonError
	}
}

func recognitionNotice(reason RecognitionReason) string {
	switch reason {
	case ReasonCapabilityUnavailable:
		return "Voice input is not available on this device."
	case ReasonTimeout:
		return "I didn't hear anything. Try again."
	case ReasonNoSpeech:
		return "No speech was detected."
	default:
		return "Voice input failed. Try again."
	}
}
