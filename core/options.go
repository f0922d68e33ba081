package orchestration

import (
	"time"

	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/speechtotext"
	"github.com/koscakluka/lumira-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

func WithChatClient(client ChatStreamer) OrchestratorOption {
	return func(o *Orchestrator) {
		if isNilCapability(client) {
			client = nil
		}
		o.chatClient = client
	}
}

// WithSynthesizer sets the voice used to narrate replies. Without one replies
// are only shown.
func WithSynthesizer(synth texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		if isNilCapability(synth) {
			synth = nil
		}
		o.synth = synth
	}
}

// WithRecognizer enables voice input.
func WithRecognizer(recognizer speechtotext.Recognizer) OrchestratorOption {
	return func(o *Orchestrator) {
		if isNilCapability(recognizer) {
			recognizer = nil
		}
		o.recognizer = recognizer
	}
}

// WithGreeting replaces the assistant message the conversation opens with.
// An empty greeting opens an empty conversation.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.greeting = greeting }
}

func WithActiveFile(name string) OrchestratorOption {
	return func(o *Orchestrator) { o.activeFile = name }
}

// WithFallbackMessages replaces the texts shown when a reply fails. Empty
// fields keep their defaults.
func WithFallbackMessages(messages FallbackMessages) OrchestratorOption {
	return func(o *Orchestrator) {
		if messages.NetworkUnavailable != "" {
			o.fallback.NetworkUnavailable = messages.NetworkUnavailable
		}
		if messages.StreamRead != "" {
			o.fallback.StreamRead = messages.StreamRead
		}
	}
}

func WithReadBufferSize(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			o.readBufferSize = size
		}
	}
}

// WithStreamIdleTimeout fails a reply that delivers no bytes for timeout.
// Zero disables the watchdog.
func WithStreamIdleTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.streamIdleTimeout = max(timeout, 0) }
}

func WithRecognitionLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		if language != "" {
			o.recognitionLanguage = language
		}
	}
}

// WithListenTimeout bounds a voice input attempt. Zero disables the timeout.
func WithListenTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.listenTimeout = max(timeout, 0) }
}

// WithEventHandler receives every event. The handler is called from
// component goroutines and must not block.
func WithEventHandler(handler func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.eventHandler = handler }
}

func WithMuted(muted bool) OrchestratorOption {
	return func(o *Orchestrator) { o.muted.Store(muted) }
}
