// Package deepgram recognizes single utterances with Deepgram's streaming
// listen API, fed from a local audio input.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/lumira-core/core/audio"
	"github.com/koscakluka/lumira-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
)

var _ speechtotext.Recognizer = (*Recognizer)(nil)

type Recognizer struct {
	apiKey   string
	input    audio.Input
	endpoint string
	model    string
}

func NewRecognizer(apiKey string, input audio.Input) *Recognizer {
	return &Recognizer{apiKey: apiKey, input: input, endpoint: defaultEndpoint, model: defaultModel}
}

func (r *Recognizer) SetEndpoint(endpoint string) { r.endpoint = endpoint }

func (r *Recognizer) SetModel(model string) { r.model = model }

// StartRecognition opens a listen socket and starts capturing. The session
// ends by itself after the first finished utterance.
func (r *Recognizer) StartRecognition(ctx context.Context, opts ...speechtotext.RecognitionOption) (speechtotext.Session, error) {
	if r == nil || r.apiKey == "" || r.input == nil {
		return nil, speechtotext.ErrCapabilityUnavailable
	}

	ctx, span := tracer.Start(ctx, "start deepgram recognition")
	defer span.End()

	options := speechtotext.NewRecognitionOptions(append(
		[]speechtotext.RecognitionOption{speechtotext.WithEncodingInfo(r.input.EncodingInfo())},
		opts...,
	)...)

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding: %w", speechtotext.ErrCapabilityUnavailable, err)
	}

	span.SetAttributes(
		attribute.String("recognition.language", options.Language),
		attribute.String("recognition.encoding", encoding.Format.Name()),
		attribute.Int("recognition.sample_rate", encoding.SampleRate),
	)

	conn, err := r.connectWebsocket(ctx, *encoding, options)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	s := &session{conn: conn, input: r.input, options: options}
	go s.readAndProcessMessages(conn)

	if err := r.input.StartCapture(ctx, s.sendAudio); err != nil {
		span.RecordError(err)
		s.Stop()
		return nil, fmt.Errorf("%w: failed to start capture: %w", speechtotext.ErrCapabilityUnavailable, err)
	}
	options.StartedCallback()

	return s, nil
}

func (r *Recognizer) connectWebsocket(ctx context.Context, encoding encodingInfo, options speechtotext.RecognitionOptions) (*websocket.Conn, error) {
	listenUrl, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid listen endpoint: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("language", options.Language)
	queryParams.Set("alternatives", strconv.Itoa(options.MaxAlternatives))
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

type session struct {
	conn    *websocket.Conn
	connMu  sync.Mutex
	input   audio.Input
	options speechtotext.RecognitionOptions

	mu                    sync.Mutex
	accumulatedTranscript string
	unendedSegment        bool
	finished              bool
}

func (s *session) sendAudio(audio []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		logger.Warn("failed to write audio to deepgram", "error", err)
	}
}

// Stop ends capture without reporting anything.
func (s *session) Stop() error {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	return s.close()
}

func (s *session) close() error {
	captureErr := s.input.StopCapture()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return captureErr
	}

	conn := s.conn
	s.conn = nil
	writeErr := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	if writeErr == nil {
		return captureErr
	}
	return errors.Join(captureErr, conn.Close())
}

func (s *session) readAndProcessMessages(conn *websocket.Conn) {
	defer conn.Close()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.finish("", fmt.Errorf("deepgram connection lost: %w", err))
			} else {
				s.finish("", nil)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if transcript, done := s.processMessage(msg); done {
			s.finish(transcript, nil)
			return
		}
	}
}

// processMessage folds one listen message into the session and reports
// whether the utterance has ended.
func (s *session) processMessage(msg []byte) (string, bool) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return "", false
		}
		if !msgResp.IsFinal {
			return "", false
		}
		if len(msgResp.Channel.Alternatives) > 0 {
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				s.accumulatedTranscript = strings.TrimSpace(s.accumulatedTranscript + " " + transcript)
			}
		}
		if msgResp.SpeechFinal && s.accumulatedTranscript != "" {
			return s.accumulatedTranscript, true
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment && s.accumulatedTranscript != "" {
			return s.accumulatedTranscript, true
		}
		s.unendedSegment = false

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
	}

	return "", false
}

// finish reports the single terminal outcome unless Stop came first.
func (s *session) finish(transcript string, err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	if closeErr := s.close(); closeErr != nil {
		logger.Warn("failed to close deepgram session", "error", closeErr)
	}

	switch {
	case err != nil:
		s.options.ErrorCallback(err)
	case transcript == "":
		s.options.ErrorCallback(speechtotext.ErrNoSpeech)
	default:
		s.options.ResultCallback(transcript)
	}
}
