package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/lumira-core/core/chat"
	"github.com/koscakluka/lumira-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultReadBufferSize = 4096

var errStreamIdle = errors.New("no data received within the idle timeout")

// ChatStreamer opens a streamed reply for a chat request. The returned body
// must stop blocking once ctx is cancelled.
type ChatStreamer interface {
	Stream(ctx context.Context, request chat.Request) (io.ReadCloser, error)
}

// FallbackMessages are written into the reply when an exchange fails.
type FallbackMessages struct {
	NetworkUnavailable string
	StreamRead         string
}

func DefaultFallbackMessages() FallbackMessages {
	return FallbackMessages{
		NetworkUnavailable: "⚠️ Error: Could not reach Lumira Backend. Is it running?",
		StreamRead:         "⚠️ Error: The reply was interrupted. Please try again.",
	}
}

type ExchangeState string

const (
	ExchangeStreaming ExchangeState = "streaming"
	ExchangeCompleted ExchangeState = "completed"
	ExchangeFailed    ExchangeState = "failed"
	ExchangeCancelled ExchangeState = "cancelled"
)

// Exchange is one streamed reply bound to one placeholder message.
type Exchange struct {
	id        string
	messageID MessageID

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state ExchangeState
	err   error
}

func (e *Exchange) ID() string           { return e.id }
func (e *Exchange) MessageID() MessageID { return e.messageID }

func (e *Exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Err returns the failure of a failed exchange, nil otherwise.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

// Done is closed once the exchange stopped reading.
func (e *Exchange) Done() <-chan struct{} { return e.done }

func (e *Exchange) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops reading, discards anything not yet processed and waits for the
// read loop to exit. The bound message keeps the text received so far.
func (e *Exchange) Cancel() {
	if e == nil {
		return
	}
	e.cancel()
	<-e.done
}

// finish records the terminal state. Only the first call has an effect.
func (e *Exchange) finish(state ExchangeState, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != ExchangeStreaming {
		return false
	}
	e.state = state
	e.err = err
	return true
}

func (e *Exchange) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

type streamIngestor struct {
	mu     sync.Mutex
	active *Exchange

	client         ChatStreamer
	conversation   *Conversation
	narrate        func(sentence string)
	readBufferSize int
	idleTimeout    time.Duration
	fallback       FallbackMessages

	emit eventEmitter
}

func newStreamIngestor(client ChatStreamer, conversation *Conversation, narrate func(string), emit eventEmitter) *streamIngestor {
	if narrate == nil {
		narrate = func(string) {}
	}
	if emit == nil {
		emit = noopEventEmitter
	}
	return &streamIngestor{
		client:         client,
		conversation:   conversation,
		narrate:        narrate,
		readBufferSize: DefaultReadBufferSize,
		fallback:       DefaultFallbackMessages(),
		emit:           emit,
	}
}

func (i *streamIngestor) isConfigured() bool {
	return i != nil && i.client != nil && i.conversation != nil
}

// Begin starts streaming the reply for request into messageID. Only one
// exchange may stream at a time. Cancelling ctx cancels the exchange.
func (i *streamIngestor) Begin(ctx context.Context, request chat.Request, messageID MessageID) (*Exchange, error) {
	if !i.isConfigured() {
		return nil, fmt.Errorf("%w: no chat client configured", ErrNetworkUnavailable)
	}

	i.mu.Lock()
	if i.active != nil && !i.active.finished() {
		i.mu.Unlock()
		return nil, ErrExchangeInFlight
	}

	ctx, cancel := context.WithCancel(ctx)
	exchange := &Exchange{
		id:        uuid.NewString(),
		messageID: messageID,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     ExchangeStreaming,
	}
	i.active = exchange
	i.mu.Unlock()

	i.emit(events.NewExchangeStarted(exchange.id, string(messageID)))
	go func() {
		defer close(exchange.done)
		defer cancel()
		if err := panicSafeNamedWorker("stream ingest", func(ctx context.Context) error {
			i.run(ctx, exchange, request)
			return nil
		})(ctx); err != nil {
			logger.Error("stream ingest stopped", "error", err)
			i.fail(exchange, "", fmt.Errorf("%w: %w", ErrStreamRead, err))
		}
	}()
	return exchange, nil
}

// Active returns the exchange that is still streaming, if any.
func (i *streamIngestor) Active() *Exchange {
	if i == nil {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active == nil || i.active.finished() {
		return nil
	}
	return i.active
}

func (i *streamIngestor) run(ctx context.Context, exchange *Exchange, request chat.Request) {
	ctx, span := tracer.Start(ctx, "stream chat response")
	defer span.End()
	span.SetAttributes(
		attribute.String("exchange.id", exchange.id),
		attribute.String("message.id", string(exchange.messageID)),
	)

	streamCtx, stopStream := context.WithCancelCause(ctx)
	defer stopStream(nil)

	var idle *time.Timer
	if i.idleTimeout > 0 {
		idle = time.AfterFunc(i.idleTimeout, func() { stopStream(errStreamIdle) })
		defer idle.Stop()
	}

	body, err := i.client.Stream(streamCtx, request)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			i.cancelled(exchange)
		case errors.Is(err, chat.ErrBadStatus):
			span.SetStatus(codes.Error, "bad status")
			i.fail(exchange, "", fmt.Errorf("%w: %w", ErrStreamRead, err))
		case errors.Is(context.Cause(streamCtx), errStreamIdle):
			span.SetStatus(codes.Error, "idle timeout")
			i.fail(exchange, "", fmt.Errorf("%w: %w", ErrStreamRead, errStreamIdle))
		default:
			span.SetStatus(codes.Error, "network unavailable")
			i.fail(exchange, "", fmt.Errorf("%w: %w", ErrNetworkUnavailable, err))
		}
		return
	}
	defer body.Close()

	var (
		decoder   = newTextDecoder()
		segmenter sentenceBuffer
		text      strings.Builder

		chunkCount, byteCount, sentenceCount int
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("response.chunk_count", chunkCount),
			attribute.Int("response.byte_count", byteCount),
			attribute.Int("response.sentence_count", sentenceCount),
		)
	}()

	narrate := func(sentence string) {
		if ctx.Err() != nil {
			return
		}
		sentenceCount++
		i.narrate(sentence)
	}
	consume := func(piece string) {
		if piece == "" || ctx.Err() != nil {
			return
		}
		text.WriteString(piece)
		i.conversation.UpdateText(exchange.messageID, text.String())
		for _, sentence := range segmenter.Feed(piece) {
			narrate(sentence)
		}
	}

	buf := make([]byte, i.readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if ctx.Err() != nil {
			i.cancelled(exchange)
			return
		}
		if n > 0 {
			if idle != nil {
				idle.Reset(i.idleTimeout)
			}
			if chunkCount == 0 {
				span.AddEvent("received first chunk")
			}
			chunkCount++
			byteCount += n
			consume(decoder.Decode(buf[:n]))
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if errors.Is(context.Cause(streamCtx), errStreamIdle) {
				readErr = errStreamIdle
			}
			err := fmt.Errorf("%w: %w", ErrStreamRead, readErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			consume(decoder.Flush())
			i.fail(exchange, text.String(), err)
			return
		}
	}

	consume(decoder.Flush())
	if rest, ok := segmenter.Flush(); ok {
		narrate(rest)
	}
	i.complete(exchange)
}

func (i *streamIngestor) complete(exchange *Exchange) {
	if !exchange.finish(ExchangeCompleted, nil) {
		return
	}
	i.conversation.FinishStreaming(exchange.messageID)
	i.emit(events.NewExchangeCompleted(exchange.id, string(exchange.messageID)))
}

func (i *streamIngestor) cancelled(exchange *Exchange) {
	if !exchange.finish(ExchangeCancelled, nil) {
		return
	}
	i.conversation.FinishStreaming(exchange.messageID)
	i.emit(events.NewExchangeCancelled(exchange.id, string(exchange.messageID)))
}

// fail writes the fallback notice into the bound message. Text received so
// far is kept and the notice is appended below it.
func (i *streamIngestor) fail(exchange *Exchange, partial string, err error) {
	if !exchange.finish(ExchangeFailed, err) {
		return
	}
	logger.Warn("chat exchange failed", "exchange", exchange.id, "error", err)

	notice := i.fallback.StreamRead
	if errors.Is(err, ErrNetworkUnavailable) {
		notice = i.fallback.NetworkUnavailable
	}
	text := notice
	if strings.TrimSpace(partial) != "" {
		text = partial + "\n\n" + notice
	}
	i.conversation.UpdateText(exchange.messageID, text)
	i.conversation.FinishStreaming(exchange.messageID)
	i.emit(events.NewExchangeFailed(exchange.id, string(exchange.messageID), err))
}
