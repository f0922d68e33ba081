package orchestration

import (
	"errors"

	"github.com/koscakluka/lumira-core/core/speechtotext"
)

var (
	// ErrNetworkUnavailable means the chat request could not be sent.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrStreamRead means the reply failed after the request was accepted,
	// including non-2xx responses and idle stream timeouts.
	ErrStreamRead = errors.New("stream read failed")
	// ErrCapabilityUnavailable means no speech recognizer can be used.
	ErrCapabilityUnavailable = speechtotext.ErrCapabilityUnavailable
	// ErrRecognitionFailed covers no speech, denied permission and timeouts.
	ErrRecognitionFailed = errors.New("speech recognition failed")

	ErrEmptyMessage     = errors.New("message is empty")
	ErrExchangeInFlight = errors.New("another exchange is still streaming")
	ErrNoChatClient     = errors.New("no chat client configured")
	ErrClosed           = errors.New("orchestrator is closed")

	errListenTimeout = errors.New("listening timed out")
)
