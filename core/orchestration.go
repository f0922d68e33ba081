package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/lumira-core/core/chat"
	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/speechtotext"
	"github.com/koscakluka/lumira-core/core/texttospeech"
)

const DefaultGreeting = "Hello! I'm Lumira. Ask me anything about the products on display!"

// Orchestrator ties the transcript, the streamed replies, the narration of
// those replies and voice input together.
type Orchestrator struct {
	conversation *Conversation
	narration    *narrationQueue
	ingestor     *streamIngestor
	speech       *speechInput

	chatClient ChatStreamer
	synth      texttospeech.Synthesizer
	recognizer speechtotext.Recognizer

	greeting            string
	fallback            FallbackMessages
	readBufferSize      int
	streamIdleTimeout   time.Duration
	recognitionLanguage string
	listenTimeout       time.Duration
	eventHandler        func(events.Event)
	emit                eventEmitter

	// sendMu keeps cancel-then-begin of consecutive sends atomic.
	sendMu sync.Mutex

	mu         sync.Mutex
	draft      string
	activeFile string

	muted     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		greeting:            DefaultGreeting,
		fallback:            DefaultFallbackMessages(),
		readBufferSize:      DefaultReadBufferSize,
		recognitionLanguage: speechtotext.DefaultLanguage,
		listenTimeout:       DefaultListenTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.emit = newHandlerEventEmitter(o.eventHandler)
	o.conversation = newConversation(o.emit)
	o.narration = newNarrationQueue(o.synth, o.emit)
	o.ingestor = newStreamIngestor(o.chatClient, o.conversation, o.narrate, o.emit)
	o.ingestor.readBufferSize = o.readBufferSize
	o.ingestor.idleTimeout = o.streamIdleTimeout
	o.ingestor.fallback = o.fallback
	o.speech = newSpeechInput(o.recognizer, o.recognitionLanguage, o.listenTimeout, o.SetDraft, o.emit)

	if o.greeting != "" {
		o.conversation.AppendAssistant(o.greeting)
	}
	return o
}

// Send appends text as a user message and starts streaming the reply into a
// new assistant message. A reply still streaming is cancelled first and all
// narration is dropped. Network failures are not returned; they end up in the
// reply text and in the exchange's Err.
func (o *Orchestrator) Send(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if !o.ingestor.isConfigured() {
		return nil, ErrNoChatClient
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	if o.closed.Load() {
		return nil, ErrClosed
	}
	if previous := o.ingestor.Active(); previous != nil {
		previous.Cancel()
	}
	o.narration.CancelAll()

	o.conversation.AppendUser(text)
	messageID := o.conversation.AppendAssistantPlaceholder()
	return o.ingestor.Begin(ctx, chat.Request{Message: text, ActiveFile: o.ActiveFile()}, messageID)
}

// SendDraft sends and clears the current draft.
func (o *Orchestrator) SendDraft(ctx context.Context) (*Exchange, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}

	o.mu.Lock()
	draft := o.draft
	if strings.TrimSpace(draft) == "" {
		o.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	o.draft = ""
	o.mu.Unlock()

	o.emit(events.NewDraftUpdated(""))
	return o.Send(ctx, draft)
}

// Draft returns the pending outbound text.
func (o *Orchestrator) Draft() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.draft
}

// SetDraft replaces the pending outbound text. Recognized speech lands here.
func (o *Orchestrator) SetDraft(text string) {
	o.mu.Lock()
	o.draft = text
	o.mu.Unlock()

	o.emit(events.NewDraftUpdated(text))
}

func (o *Orchestrator) ActiveFile() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.activeFile
}

// SetActiveFile scopes subsequent questions to a knowledge base file. An
// empty name removes the scope.
func (o *Orchestrator) SetActiveFile(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.activeFile = name
}

// Listen starts a voice input attempt. Only a missing recognizer is
// reported here, every other outcome arrives as events.
func (o *Orchestrator) Listen(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if err := o.speech.Start(ctx); err != nil {
		return err
	}
	// Close may have run while the recognizer was connecting.
	if o.closed.Load() {
		o.speech.Stop()
		return ErrClosed
	}
	return nil
}

func (o *Orchestrator) StopListening() {
	o.speech.Stop()
}

func (o *Orchestrator) RecognitionState() RecognitionState {
	return o.speech.State()
}

func (o *Orchestrator) NarrationState() NarrationState {
	return o.narration.State()
}

// Exchange returns the reply still streaming, nil if there is none.
func (o *Orchestrator) Exchange() *Exchange {
	return o.ingestor.Active()
}

// Conversation returns a copy of the transcript.
func (o *Orchestrator) Conversation() []Message {
	return o.conversation.Snapshot()
}

// Close cancels the streaming reply, voice input and narration. Send,
// SendDraft and Listen return ErrClosed afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.sendMu.Lock()
		o.closed.Store(true)
		if active := o.ingestor.Active(); active != nil {
			active.Cancel()
		}
		o.sendMu.Unlock()

		o.speech.Stop()
		o.narration.Close()
	})
}

func (o *Orchestrator) narrate(sentence string) {
	if o.muted.Load() {
		return
	}
	o.narration.Enqueue(sentence)
}
