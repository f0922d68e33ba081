package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/lumira-core/core/chat"
)

func newTestIngestor(client ChatStreamer) (*streamIngestor, *Conversation, *[]string) {
	conversation := NewConversation()
	narrated := &[]string{}
	ingestor := newStreamIngestor(client, conversation, func(sentence string) {
		*narrated = append(*narrated, sentence)
	}, nil)
	return ingestor, conversation, narrated
}

func TestIngestorStreamsIntoPlaceholder(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, narrated := newTestIngestor(client)
	id := conversation.AppendAssistantPlaceholder()

	exchange, err := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	stream := client.next(t)
	stream.write(t, "Hello.")
	stream.write(t, " How are")
	stream.write(t, " you")
	stream.writer.Close()

	if err := exchange.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if exchange.State() != ExchangeCompleted || exchange.Err() != nil {
		t.Fatalf("expected completed exchange, got %s %v", exchange.State(), exchange.Err())
	}
	if got := conversation.Snapshot()[0].Text; got != "Hello. How are you" {
		t.Fatalf("unexpected message text %q", got)
	}
	if strings.Join(*narrated, "|") != "Hello.| How are you" {
		t.Fatalf("expected the trailing fragment to be narrated at the end, got %q", *narrated)
	}
	if _, ok := conversation.InFlight(); ok {
		t.Fatalf("expected the message to stop streaming")
	}
	if ingestor.Active() != nil {
		t.Fatalf("expected no active exchange")
	}
}

func TestIngestorSmallReadBufferSplitsCharacters(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, narrated := newTestIngestor(client)
	ingestor.readBufferSize = 1
	id := conversation.AppendAssistantPlaceholder()

	exchange, err := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	stream := client.next(t)
	stream.write(t, "Žlica košta 5 €. Hvala!")
	stream.writer.Close()
	exchange.Wait(context.Background())

	if got := conversation.Snapshot()[0].Text; got != "Žlica košta 5 €. Hvala!" {
		t.Fatalf("unexpected message text %q", got)
	}
	if strings.Join(*narrated, "") != "Žlica košta 5 €. Hvala!" {
		t.Fatalf("unexpected narration %q", *narrated)
	}
}

func TestIngestorRejectsSecondExchange(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, _ := newTestIngestor(client)

	first, err := ingestor.Begin(context.Background(), chat.Request{Message: "one"}, conversation.AppendAssistantPlaceholder())
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if _, err := ingestor.Begin(context.Background(), chat.Request{Message: "two"}, conversation.AppendAssistantPlaceholder()); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("expected ErrExchangeInFlight, got %v", err)
	}

	first.Cancel()
	if first.State() != ExchangeCancelled {
		t.Fatalf("expected cancelled exchange, got %s", first.State())
	}
	if _, err := ingestor.Begin(context.Background(), chat.Request{Message: "three"}, conversation.AppendAssistantPlaceholder()); err != nil {
		t.Fatalf("expected Begin after cancel to succeed, got %v", err)
	}
}

func TestIngestorFailureKeepsPartialTextAndAppendsNotice(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, narrated := newTestIngestor(client)
	id := conversation.AppendAssistantPlaceholder()

	exchange, _ := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
	stream := client.next(t)
	stream.write(t, "Partial respo")
	stream.writer.CloseWithError(errors.New("connection reset"))
	exchange.Wait(context.Background())

	if exchange.State() != ExchangeFailed || !errors.Is(exchange.Err(), ErrStreamRead) {
		t.Fatalf("expected a stream read failure, got %s %v", exchange.State(), exchange.Err())
	}
	text := conversation.Snapshot()[0].Text
	want := "Partial respo\n\n" + DefaultFallbackMessages().StreamRead
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
	if len(*narrated) != 0 {
		t.Fatalf("expected the unterminated fragment not to be narrated, got %q", *narrated)
	}
}

func TestIngestorOpenFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  error
		wantText string
	}{
		{
			name:     "unreachable",
			err:      fmt.Errorf("%w: dial tcp: connection refused", chat.ErrUnreachable),
			wantErr:  ErrNetworkUnavailable,
			wantText: DefaultFallbackMessages().NetworkUnavailable,
		},
		{
			name:     "bad status",
			err:      fmt.Errorf("%w: 500 Internal Server Error", chat.ErrBadStatus),
			wantErr:  ErrStreamRead,
			wantText: DefaultFallbackMessages().StreamRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeChat{err: tt.err}
			ingestor, conversation, _ := newTestIngestor(client)
			id := conversation.AppendAssistantPlaceholder()

			exchange, err := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
			if err != nil {
				t.Fatalf("Begin returned error: %v", err)
			}
			exchange.Wait(context.Background())

			if !errors.Is(exchange.Err(), tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, exchange.Err())
			}
			if got := conversation.Snapshot()[0].Text; got != tt.wantText {
				t.Fatalf("expected %q, got %q", tt.wantText, got)
			}
		})
	}
}

func TestIngestorIdleTimeout(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, _ := newTestIngestor(client)
	ingestor.idleTimeout = 30 * time.Millisecond
	id := conversation.AppendAssistantPlaceholder()

	exchange, _ := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
	stream := client.next(t)
	stream.write(t, "Thinking")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exchange.Wait(ctx); err != nil {
		t.Fatalf("exchange never timed out: %v", err)
	}
	if !errors.Is(exchange.Err(), ErrStreamRead) {
		t.Fatalf("expected ErrStreamRead, got %v", exchange.Err())
	}
	if got := conversation.Snapshot()[0].Text; !strings.HasPrefix(got, "Thinking\n\n") {
		t.Fatalf("expected partial text followed by a notice, got %q", got)
	}
}

func TestIngestorCancelWritesNoFallback(t *testing.T) {
	client := newFakeChat()
	ingestor, conversation, _ := newTestIngestor(client)
	id := conversation.AppendAssistantPlaceholder()

	exchange, _ := ingestor.Begin(context.Background(), chat.Request{Message: "hi"}, id)
	stream := client.next(t)
	stream.write(t, "Half an ans")
	waitFor(t, "first chunk", func() bool { return conversation.Snapshot()[0].Text == "Half an ans" })

	exchange.Cancel()
	exchange.Cancel()

	if exchange.State() != ExchangeCancelled || exchange.Err() != nil {
		t.Fatalf("expected a clean cancellation, got %s %v", exchange.State(), exchange.Err())
	}
	if got := conversation.Snapshot()[0].Text; got != "Half an ans" {
		t.Fatalf("expected text to stay as received, got %q", got)
	}
	if _, err := stream.writer.Write([]byte("more")); err == nil {
		t.Fatalf("expected writes after cancel to fail")
	}
}
