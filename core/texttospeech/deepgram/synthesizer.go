package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/lumira-core/core/audio"
	"github.com/koscakluka/lumira-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/speak"

var _ texttospeech.Synthesizer = (*Synthesizer)(nil)

// Synthesizer speaks through Deepgram's streaming speak API and plays the
// returned audio on an output device. One websocket is kept open and reused
// across utterances.
type Synthesizer struct {
	apiKey   string
	voice    Voice
	endpoint string
	output   audio.Output
	options  texttospeech.SynthesizerOptions

	// writeMu guards websocket writes, gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	ws       *websocket.Conn
	current  *utterance
	clearing bool
	closed   bool
}

type utterance struct {
	text    string
	onEnded func(error)
	once    sync.Once
	span    trace.Span
}

func (u *utterance) end(err error) {
	u.once.Do(func() {
		if err != nil && !errors.Is(err, texttospeech.ErrStopped) {
			u.span.RecordError(err)
		}
		u.span.SetAttributes(attribute.Bool("speech.stopped", errors.Is(err, texttospeech.ErrStopped)))
		u.span.End()
		u.onEnded(err)
	})
}

// discard ends u without reporting, for utterances that never started.
func (u *utterance) discard(err error) {
	u.once.Do(func() {
		u.span.RecordError(err)
		u.span.End()
	})
}

func NewSynthesizer(apiKey string, output audio.Output, voice Voice, opts ...texttospeech.SynthesizerOption) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}
	if output == nil {
		return nil, fmt.Errorf("no audio output")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	return &Synthesizer{
		apiKey:   apiKey,
		voice:    voice,
		endpoint: defaultEndpoint,
		output:   output,
		options:  texttospeech.NewSynthesizerOptions(append([]texttospeech.SynthesizerOption{texttospeech.WithEncodingInfo(output.EncodingInfo())}, opts...)...),
	}, nil
}

// SetEndpoint points the synthesizer at a different speak endpoint. It takes
// effect on the next connection.
func (s *Synthesizer) SetEndpoint(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoint = endpoint
}

// Connect opens the websocket ahead of the first utterance.
func (s *Synthesizer) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.connectLocked(ctx)
	return err
}

func (s *Synthesizer) Speak(text string, onEnded func(error)) error {
	if onEnded == nil {
		onEnded = func(error) {}
	}

	s.mu.Lock()
	ws, err := s.connectLocked(context.Background())
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_, span := tracer.Start(context.Background(), "speak utterance")
	span.SetAttributes(attribute.String("speech.voice", string(s.voice)), attribute.Int("speech.text_length", len(text)))
	u := &utterance{text: text, onEnded: onEnded, span: span}
	previous := s.current
	s.current = u
	s.mu.Unlock()

	if previous != nil {
		previous.end(texttospeech.ErrStopped)
	}

	if err := s.write(ws, speakMessage{Type: "Speak", Text: text}); err != nil {
		s.abandon(u)
		u.discard(err)
		return err
	}
	if err := s.write(ws, controlMessage{Type: "Flush"}); err != nil {
		s.abandon(u)
		u.discard(err)
		return err
	}
	return nil
}

// Stop drops the playing utterance and any audio still buffered for it.
func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	u := s.current
	s.current = nil
	ws := s.ws
	if u != nil && ws != nil {
		s.clearing = true
	}
	s.mu.Unlock()

	if u == nil {
		return nil
	}

	u.end(texttospeech.ErrStopped)
	s.output.ClearBuffer()

	if ws == nil {
		return nil
	}
	if err := s.write(ws, controlMessage{Type: "Clear"}); err != nil {
		return fmt.Errorf("failed to clear deepgram buffer: %w", err)
	}
	return nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	s.closed = true
	ws := s.ws
	s.ws = nil
	u := s.current
	s.current = nil
	s.mu.Unlock()

	if u != nil {
		u.end(texttospeech.ErrStopped)
	}
	if ws == nil {
		return nil
	}

	if err := s.write(ws, controlMessage{Type: "Close"}); err != nil {
		if aggressiveCloseErr := ws.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
		}
		return nil
	}
	return ws.Close()
}

func (s *Synthesizer) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if s.closed {
		return nil, fmt.Errorf("synthesizer closed")
	}
	if s.ws != nil {
		return s.ws, nil
	}

	endpoint, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid speak endpoint: %w", err)
	}
	urlValues := url.Values{}
	urlValues.Set("encoding", s.options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(s.options.EncodingInfo.SampleRate))
	urlValues.Set("model", string(s.voice))
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(),
		http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	s.ws = ws
	s.clearing = false
	go s.processIncomingMessages(ws)
	return ws, nil
}

func (s *Synthesizer) processIncomingMessages(ws *websocket.Conn) {
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			s.connectionLost(ws, err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(msg)
		case websocket.TextMessage:
			var parsedMsg controlMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				s.handleFlushed()
			case "Cleared":
				s.mu.Lock()
				s.clearing = false
				s.mu.Unlock()
			case "Warning":
				logger.Warn("deepgram warning", "message", string(msg))
			}
		}
	}
}

func (s *Synthesizer) handleAudio(chunk []byte) {
	s.mu.Lock()
	drop := s.current == nil || s.clearing
	s.mu.Unlock()
	if drop {
		return
	}

	s.options.SpeechAudioCallback(chunk)
	if err := s.output.SendAudio(chunk); err != nil {
		logger.Warn("failed to send audio to output", "error", err)
	}
}

// handleFlushed waits for the output to play everything generated for the
// current utterance before reporting it as ended.
func (s *Synthesizer) handleFlushed() {
	s.mu.Lock()
	u := s.current
	clearing := s.clearing
	s.mu.Unlock()
	if u == nil || clearing {
		return
	}

	err := s.output.Mark(u.text, func(string) {
		s.mu.Lock()
		if s.current != u {
			s.mu.Unlock()
			return
		}
		s.current = nil
		s.mu.Unlock()
		u.end(nil)
	})
	if err != nil {
		logger.Warn("failed to mark end of utterance", "error", err)
		s.abandon(u)
		u.end(nil)
	}
}

func (s *Synthesizer) connectionLost(ws *websocket.Conn, err error) {
	s.mu.Lock()
	if s.ws == ws {
		s.ws = nil
	}
	u := s.current
	s.current = nil
	closed := s.closed
	s.mu.Unlock()

	if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		if u != nil {
			u.end(texttospeech.ErrStopped)
		}
		return
	}

	err = fmt.Errorf("deepgram connection lost: %w", err)
	logger.Warn("websocket read error", "error", err)
	if u != nil {
		u.end(err)
	}
	s.options.ErrorCallback(err)
}

func (s *Synthesizer) abandon(u *utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == u {
		s.current = nil
	}
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

func (s *Synthesizer) write(ws *websocket.Conn, msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
