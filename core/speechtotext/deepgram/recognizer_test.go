package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/lumira-core/core/audio"
	"github.com/koscakluka/lumira-core/core/speechtotext"
)

type fakeInput struct {
	mu       sync.Mutex
	onAudio  func([]byte)
	started  int
	stopped  int
	startErr error
}

func (i *fakeInput) StartCapture(_ context.Context, onAudio func([]byte)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.startErr != nil {
		return i.startErr
	}
	i.started++
	i.onAudio = onAudio
	go onAudio(make([]byte, 320))
	return nil
}

func (i *fakeInput) StopCapture() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopped++
	return nil
}

func (i *fakeInput) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (i *fakeInput) stops() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.stopped
}

// fakeListenServer replies with its scripted messages once it receives the
// first audio frame.
type fakeListenServer struct {
	*httptest.Server

	mu       sync.Mutex
	query    string
	auth     string
	messages []string
	control  []string
	drop     bool
}

func newFakeListenServer(t *testing.T, messages ...string) *fakeListenServer {
	t.Helper()

	srv := &fakeListenServer{messages: messages}
	upgrader := websocket.Upgrader{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.mu.Lock()
		srv.query = r.URL.RawQuery
		srv.auth = r.Header.Get("Authorization")
		srv.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		replied := false
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage {
				srv.mu.Lock()
				srv.control = append(srv.control, string(msg))
				srv.mu.Unlock()
				if strings.Contains(string(msg), "CloseStream") {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				continue
			}
			if replied {
				continue
			}
			replied = true
			srv.mu.Lock()
			drop := srv.drop
			srv.mu.Unlock()
			if drop {
				conn.UnderlyingConn().Close()
				return
			}
			for _, reply := range srv.messages {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *fakeListenServer) endpoint() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

type recognitionOutcome struct {
	transcript string
	err        error
}

func startRecognition(t *testing.T, recognizer *Recognizer, opts ...speechtotext.RecognitionOption) (speechtotext.Session, chan recognitionOutcome, error) {
	t.Helper()

	outcomes := make(chan recognitionOutcome, 4)
	opts = append(opts,
		speechtotext.WithResultCallback(func(transcript string) { outcomes <- recognitionOutcome{transcript: transcript} }),
		speechtotext.WithErrorCallback(func(err error) { outcomes <- recognitionOutcome{err: err} }),
	)
	session, err := recognizer.StartRecognition(context.Background(), opts...)
	return session, outcomes, err
}

func waitOutcome(t *testing.T, outcomes chan recognitionOutcome) recognitionOutcome {
	t.Helper()

	select {
	case outcome := <-outcomes:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for recognition outcome")
		return recognitionOutcome{}
	}
}

func TestStartRecognitionWithoutKeyOrInputIsUnavailable(t *testing.T) {
	for name, recognizer := range map[string]*Recognizer{
		"no key":   NewRecognizer("", &fakeInput{}),
		"no input": NewRecognizer("key", nil),
		"nil":      nil,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := recognizer.StartRecognition(context.Background()); !errors.Is(err, speechtotext.ErrCapabilityUnavailable) {
				t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
			}
		})
	}
}

func TestStartRecognitionRejectsUnsupportedEncoding(t *testing.T) {
	recognizer := NewRecognizer("key", &fakeInput{})
	_, err := recognizer.StartRecognition(context.Background(),
		speechtotext.WithEncodingInfo(audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16}))
	if !errors.Is(err, speechtotext.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestRecognitionDeliversAccumulatedFinalTranscript(t *testing.T) {
	srv := newFakeListenServer(t,
		`{"type":"SpeechStarted"}`,
		`{"type":"Results","is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"what is"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"What is"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"on display?"}]}}`,
	)
	input := &fakeInput{}
	recognizer := NewRecognizer("secret", input)
	recognizer.SetEndpoint(srv.endpoint())

	started := make(chan struct{}, 1)
	_, outcomes, err := startRecognition(t, recognizer,
		speechtotext.WithLanguage("de-DE"),
		speechtotext.WithStartedCallback(func() { started <- struct{}{} }))
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	select {
	case <-started:
	default:
		t.Fatalf("expected started callback before StartRecognition returns")
	}

	outcome := waitOutcome(t, outcomes)
	if outcome.err != nil {
		t.Fatalf("unexpected recognition error: %v", outcome.err)
	}
	if outcome.transcript != "What is on display?" {
		t.Fatalf("unexpected transcript %q", outcome.transcript)
	}
	if input.stops() == 0 {
		t.Fatalf("expected capture to stop after the utterance")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.auth != "Token secret" {
		t.Fatalf("unexpected authorization header %q", srv.auth)
	}
	for _, param := range []string{"language=de-DE", "encoding=linear16", "sample_rate=16000", "model=nova-3"} {
		if !strings.Contains(srv.query, param) {
			t.Fatalf("expected %q in query %q", param, srv.query)
		}
	}
}

func TestUtteranceEndWithoutTranscriptKeepsListening(t *testing.T) {
	srv := newFakeListenServer(t,
		`{"type":"SpeechStarted"}`,
		`{"type":"UtteranceEnd"}`,
	)
	recognizer := NewRecognizer("secret", &fakeInput{})
	recognizer.SetEndpoint(srv.endpoint())

	session, outcomes, err := startRecognition(t, recognizer)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// UtteranceEnd with nothing heard keeps listening until the caller stops.
	select {
	case outcome := <-outcomes:
		t.Fatalf("unexpected outcome %+v", outcome)
	case <-time.After(100 * time.Millisecond):
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	select {
	case outcome := <-outcomes:
		t.Fatalf("expected no outcome after Stop, got %+v", outcome)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDroppedConnectionReportsError(t *testing.T) {
	srv := newFakeListenServer(t)
	srv.mu.Lock()
	srv.drop = true
	srv.mu.Unlock()
	recognizer := NewRecognizer("secret", &fakeInput{})
	recognizer.SetEndpoint(srv.endpoint())

	_, outcomes, err := startRecognition(t, recognizer)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	outcome := waitOutcome(t, outcomes)
	if outcome.err == nil {
		t.Fatalf("expected an error outcome, got transcript %q", outcome.transcript)
	}
}

func TestStartCaptureFailureIsUnavailable(t *testing.T) {
	srv := newFakeListenServer(t)
	recognizer := NewRecognizer("secret", &fakeInput{startErr: errors.New("no microphone")})
	recognizer.SetEndpoint(srv.endpoint())

	_, outcomes, err := startRecognition(t, recognizer)
	if !errors.Is(err, speechtotext.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	select {
	case outcome := <-outcomes:
		t.Fatalf("expected no outcome, got %+v", outcome)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessMessage(t *testing.T) {
	tests := []struct {
		name           string
		messages       []string
		wantTranscript string
		wantDone       bool
	}{
		{
			name:     "interim results are ignored",
			messages: []string{`{"type":"Results","is_final":false,"speech_final":true,"channel":{"alternatives":[{"transcript":"hi"}]}}`},
		},
		{
			name:           "speech final ends utterance",
			messages:       []string{`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":" hi "}]}}`},
			wantTranscript: "hi",
			wantDone:       true,
		},
		{
			name: "utterance end after speech ends utterance",
			messages: []string{
				`{"type":"SpeechStarted"}`,
				`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
				`{"type":"UtteranceEnd"}`,
			},
			wantTranscript: "hello",
			wantDone:       true,
		},
		{
			name:     "garbage is skipped",
			messages: []string{`not json`, `{"type":"Metadata"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &session{}
			var transcript string
			var done bool
			for _, msg := range tt.messages {
				transcript, done = s.processMessage([]byte(msg))
				if done {
					break
				}
			}
			if done != tt.wantDone || transcript != tt.wantTranscript {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tt.wantTranscript, tt.wantDone, transcript, done)
			}
		})
	}
}
