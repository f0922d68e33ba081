// Package backend speaks through the Lumira backend's /speak endpoint. The
// returned MP3 stream is piped into an external player process.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/lumira-core/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const scopeName = "github.com/koscakluka/lumira-core/core/texttospeech/backend"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const DefaultPlayer = "ffplay"

var defaultPlayerArgs = []string{"-nodisp", "-autoexit", "-loglevel", "error", "-i", "-"}

var _ texttospeech.Synthesizer = (*Synthesizer)(nil)

type Synthesizer struct {
	baseURL    string
	httpClient *http.Client
	player     string
	playerArgs []string
	options    texttospeech.SynthesizerOptions

	mu      sync.Mutex
	current *playback
}

type playback struct {
	cancel  context.CancelFunc
	onEnded func(error)
	once    sync.Once
}

func (p *playback) end(err error) {
	p.once.Do(func() { p.onEnded(err) })
}

type Option func(*Synthesizer)

// WithPlayer replaces the player command. The player must read the audio
// from stdin.
func WithPlayer(command string, args ...string) Option {
	return func(s *Synthesizer) {
		if command != "" {
			s.player = command
			s.playerArgs = args
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Synthesizer) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithSynthesizerOptions(opts ...texttospeech.SynthesizerOption) Option {
	return func(s *Synthesizer) { s.options = texttospeech.NewSynthesizerOptions(opts...) }
}

func NewSynthesizer(baseURL string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		player:     DefaultPlayer,
		playerArgs: defaultPlayerArgs,
		options:    texttospeech.NewSynthesizerOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether the player command can be found.
func (s *Synthesizer) Available() bool {
	_, err := exec.LookPath(s.player)
	return err == nil
}

func (s *Synthesizer) Speak(text string, onEnded func(error)) error {
	if onEnded == nil {
		onEnded = func(error) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx, span := tracer.Start(ctx, "speak utterance")
	span.SetAttributes(attribute.Int("speech.text_length", len(text)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/speak?text="+url.QueryEscape(text), nil)
	if err != nil {
		span.End()
		cancel()
		return fmt.Errorf("error creating HTTP request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.player, s.playerArgs...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		span.End()
		cancel()
		return fmt.Errorf("failed to create player stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		span.End()
		cancel()
		return fmt.Errorf("failed to start player: %w", err)
	}

	p := &playback{cancel: cancel, onEnded: onEnded}
	s.mu.Lock()
	previous := s.current
	s.current = p
	s.mu.Unlock()
	if previous != nil {
		previous.cancel()
		previous.end(texttospeech.ErrStopped)
	}

	go func() {
		defer span.End()
		defer cancel()

		streamErr := s.stream(req, stdin)
		waitErr := cmd.Wait()

		s.mu.Lock()
		if s.current == p {
			s.current = nil
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			p.end(texttospeech.ErrStopped)
			return
		}
		if err := errors.Join(streamErr, waitErr); err != nil {
			if stderr.Len() > 0 {
				err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
			}
			span.RecordError(err)
			logger.Warn("backend speech failed", "error", err)
			p.end(err)
			return
		}
		p.end(nil)
	}()
	return nil
}

// stream copies the speech audio into the player and closes its stdin.
func (s *Synthesizer) stream(req *http.Request, stdin io.WriteCloser) error {
	defer stdin.Close()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	body := io.TeeReader(resp.Body, audioCallbackWriter(s.options.SpeechAudioCallback))
	if _, err := io.Copy(stdin, body); err != nil {
		return fmt.Errorf("failed to pipe audio to player: %w", err)
	}
	return nil
}

func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	p := s.current
	s.current = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	p.cancel()
	p.end(texttospeech.ErrStopped)
	return nil
}

type audioCallbackWriter func([]byte)

func (w audioCallbackWriter) Write(p []byte) (int, error) {
	w(bytes.Clone(p))
	return len(p), nil
}
