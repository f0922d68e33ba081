package deepgram

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/lumira-core/core/audio"
	"github.com/koscakluka/lumira-core/core/texttospeech"
)

type fakeOutput struct {
	mu        sync.Mutex
	audio     [][]byte
	clears    int
	holdMarks bool
	marks     []func(string)
}

func (o *fakeOutput) SendAudio(chunk []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.audio = append(o.audio, chunk)
	return nil
}

func (o *fakeOutput) ClearBuffer() {
	o.mu.Lock()
	o.clears++
	marks := o.marks
	o.marks = nil
	o.mu.Unlock()

	for _, mark := range marks {
		mark("cleared")
	}
}

func (o *fakeOutput) Mark(name string, callback func(string)) error {
	o.mu.Lock()
	if o.holdMarks {
		o.marks = append(o.marks, callback)
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	callback(name)
	return nil
}

func (o *fakeOutput) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16}
}

func (o *fakeOutput) heldMarks() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.marks)
}

func (o *fakeOutput) chunks() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.audio)
}

// fakeSpeakServer answers every Flush with one audio frame and Flushed.
type fakeSpeakServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []string
	query    string
	auth     string
	silent   bool
}

func newFakeSpeakServer(t *testing.T, silent bool) *fakeSpeakServer {
	s := &fakeSpeakServer{silent: silent}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.query = r.URL.RawQuery
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for {
			var msg map[string]string
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, msg["type"])
			s.mu.Unlock()

			switch msg["type"] {
			case "Flush":
				if s.silent {
					continue
				}
				_ = ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
				flushed, _ := json.Marshal(map[string]string{"type": "Flushed"})
				_ = ws.WriteMessage(websocket.TextMessage, flushed)
			case "Clear":
				cleared, _ := json.Marshal(map[string]string{"type": "Cleared"})
				_ = ws.WriteMessage(websocket.TextMessage, cleared)
			case "Close":
				return
			}
		}
	}))
	return s
}

func (s *fakeSpeakServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.received...)
}

func newTestSynthesizer(t *testing.T, server *fakeSpeakServer, output *fakeOutput) *Synthesizer {
	t.Helper()

	synth, err := NewSynthesizer("secret", output, VoiceLuna)
	if err != nil {
		t.Fatalf("NewSynthesizer returned error: %v", err)
	}
	synth.SetEndpoint("ws" + strings.TrimPrefix(server.URL, "http"))
	t.Cleanup(func() { synth.Close() })
	return synth
}

func TestSpeakPlaysAudioAndEndsAfterMark(t *testing.T) {
	server := newFakeSpeakServer(t, false)
	defer server.Close()
	output := &fakeOutput{}
	synth := newTestSynthesizer(t, server, output)

	ended := make(chan error, 1)
	if err := synth.Speak("Hello there.", func(err error) { ended <- err }); err != nil {
		t.Fatalf("Speak returned error: %v", err)
	}

	select {
	case err := <-ended:
		if err != nil {
			t.Fatalf("expected a clean end, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance never ended")
	}

	if output.chunks() != 1 {
		t.Fatalf("expected one audio chunk on the output, got %d", output.chunks())
	}
	if got := server.messages(); len(got) < 2 || got[0] != "Speak" || got[1] != "Flush" {
		t.Fatalf("unexpected messages %q", got)
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.auth != "token secret" {
		t.Fatalf("unexpected authorization header %q", server.auth)
	}
	for _, param := range []string{"model=aura-luna-en", "encoding=linear16", "sample_rate=24000", "container=none"} {
		if !strings.Contains(server.query, param) {
			t.Fatalf("expected %q in query %q", param, server.query)
		}
	}
}

func TestStopEndsUtteranceAndClears(t *testing.T) {
	server := newFakeSpeakServer(t, true)
	defer server.Close()
	output := &fakeOutput{}
	synth := newTestSynthesizer(t, server, output)

	ended := make(chan error, 2)
	if err := synth.Speak("A long answer.", func(err error) { ended <- err }); err != nil {
		t.Fatalf("Speak returned error: %v", err)
	}
	if err := synth.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	select {
	case err := <-ended:
		if !errors.Is(err, texttospeech.ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance never ended")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := server.messages()
		if len(got) > 0 && got[len(got)-1] == "Clear" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never received Clear, got %q", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	output.mu.Lock()
	clears := output.clears
	output.mu.Unlock()
	if clears != 1 {
		t.Fatalf("expected the output to be cleared once, got %d", clears)
	}
	if len(ended) != 0 {
		t.Fatalf("expected exactly one completion")
	}
	if err := synth.Stop(); err != nil {
		t.Fatalf("expected Stop while idle to be a no-op, got %v", err)
	}
}

func TestNewSynthesizerValidates(t *testing.T) {
	if _, err := NewSynthesizer("", &fakeOutput{}, DefaultVoice); err == nil {
		t.Fatalf("expected an error without api key")
	}
	if _, err := NewSynthesizer("key", &fakeOutput{}, Voice("robot")); err == nil {
		t.Fatalf("expected an error for an unknown voice")
	}
	if _, err := NewSynthesizer("key", nil, DefaultVoice); err == nil {
		t.Fatalf("expected an error without output")
	}
}

func TestStopAfterFlushedReportsStopped(t *testing.T) {
	server := newFakeSpeakServer(t, false)
	defer server.Close()
	output := &fakeOutput{holdMarks: true}
	synth := newTestSynthesizer(t, server, output)

	ended := make(chan error, 2)
	if err := synth.Speak("Still playing.", func(err error) { ended <- err }); err != nil {
		t.Fatalf("Speak returned error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for output.heldMarks() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("utterance was never marked on the output")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := synth.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	select {
	case err := <-ended:
		if !errors.Is(err, texttospeech.ErrStopped) {
			t.Fatalf("expected ErrStopped while the audio was still playing, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance never ended")
	}

	select {
	case err := <-ended:
		t.Fatalf("expected a single completion, got a second one: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
