package orchestration

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/lumira-core/core/chat"
	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/speechtotext"
	"github.com/koscakluka/lumira-core/core/texttospeech"
)

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range r.snapshot() {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) queuedSentences() []string {
	var sentences []string
	for _, event := range r.snapshot() {
		if queued, ok := event.(events.SentenceQueued); ok {
			sentences = append(sentences, queued.Sentence)
		}
	}
	return sentences
}

func (r *eventRecorder) recognitionStates() []events.RecognitionStateChanged {
	var states []events.RecognitionStateChanged
	for _, event := range r.snapshot() {
		if changed, ok := event.(events.RecognitionStateChanged); ok {
			states = append(states, changed)
		}
	}
	return states
}

func (r *eventRecorder) notices() []events.Notice {
	var notices []events.Notice
	for _, event := range r.snapshot() {
		if notice, ok := event.(events.Notice); ok {
			notices = append(notices, notice)
		}
	}
	return notices
}

// fakeSynth holds every utterance until finish is called.
type fakeSynth struct {
	mu      sync.Mutex
	spoken  []string
	onEnded func(error)
	overlap bool

	speakErr error
	stops    atomic.Int32
}

func (s *fakeSynth) Speak(text string, onEnded func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speakErr != nil {
		return s.speakErr
	}
	if s.onEnded != nil {
		s.overlap = true
	}
	s.spoken = append(s.spoken, text)
	s.onEnded = onEnded
	return nil
}

func (s *fakeSynth) Stop() error {
	s.stops.Add(1)

	s.mu.Lock()
	onEnded := s.onEnded
	s.onEnded = nil
	s.mu.Unlock()

	if onEnded != nil {
		onEnded(texttospeech.ErrStopped)
	}
	return nil
}

// finish completes the playing utterance.
func (s *fakeSynth) finish() {
	s.mu.Lock()
	onEnded := s.onEnded
	s.onEnded = nil
	s.mu.Unlock()

	if onEnded != nil {
		onEnded(nil)
	}
}

func (s *fakeSynth) playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.onEnded != nil
}

func (s *fakeSynth) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.spoken...)
}

func (s *fakeSynth) overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.overlap
}

type fakeSession struct {
	stops atomic.Int32
}

func (s *fakeSession) Stop() error {
	s.stops.Add(1)
	return nil
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	options  []speechtotext.RecognitionOptions

	err     error
	onStart func(speechtotext.RecognitionOptions)
}

func (r *fakeRecognizer) StartRecognition(_ context.Context, opts ...speechtotext.RecognitionOption) (speechtotext.Session, error) {
	if r.err != nil {
		return nil, r.err
	}

	options := speechtotext.NewRecognitionOptions(opts...)
	session := &fakeSession{}

	r.mu.Lock()
	r.sessions = append(r.sessions, session)
	r.options = append(r.options, options)
	onStart := r.onStart
	r.mu.Unlock()

	if onStart != nil {
		onStart(options)
	}
	return session, nil
}

func (r *fakeRecognizer) attempt(i int) (*fakeSession, speechtotext.RecognitionOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessions[i], r.options[i]
}

// fakeStream is one reply body the test writes chunks into.
type fakeStream struct {
	request chat.Request
	writer  *io.PipeWriter
}

func (s *fakeStream) write(t *testing.T, chunk string) {
	t.Helper()

	if _, err := s.writer.Write([]byte(chunk)); err != nil {
		t.Fatalf("write chunk %q: %v", chunk, err)
	}
}

type fakeChat struct {
	streams chan *fakeStream
	err     error
}

func newFakeChat() *fakeChat {
	return &fakeChat{streams: make(chan *fakeStream, 8)}
}

func (c *fakeChat) Stream(ctx context.Context, request chat.Request) (io.ReadCloser, error) {
	if c.err != nil {
		return nil, c.err
	}

	reader, writer := io.Pipe()
	go func() {
		<-ctx.Done()
		reader.CloseWithError(ctx.Err())
	}()
	c.streams <- &fakeStream{request: request, writer: writer}
	return reader, nil
}

func (c *fakeChat) next(t *testing.T) *fakeStream {
	t.Helper()

	select {
	case stream := <-c.streams:
		return stream
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a chat stream")
		return nil
	}
}
