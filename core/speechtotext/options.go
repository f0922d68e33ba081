package speechtotext

import (
	"context"
	"errors"

	"github.com/koscakluka/lumira-core/core/audio"
)

var (
	// ErrCapabilityUnavailable is returned by recognizers that cannot capture
	// or transcribe on this platform (no device, no credentials).
	ErrCapabilityUnavailable = errors.New("speech recognition unavailable")
	// ErrNoSpeech is reported when a session ended without any transcript.
	ErrNoSpeech = errors.New("no speech detected")
)

const (
	DefaultLanguage        = "en-US"
	DefaultMaxAlternatives = 1
)

// Recognizer opens single-shot capture sessions. Each session reports
// exactly one terminal callback: a result or an error.
type Recognizer interface {
	StartRecognition(ctx context.Context, opts ...RecognitionOption) (Session, error)
}

// Session is an open capture session.
type Session interface {
	// Stop ends capture. Calling it after the terminal callback is allowed.
	Stop() error
}

type RecognitionOptions struct {
	Language        string
	MaxAlternatives int

	StartedCallback func()
	ResultCallback  func(transcript string)
	ErrorCallback   func(err error)

	EncodingInfo audio.EncodingInfo
}

type RecognitionOption func(*RecognitionOptions)

func WithLanguage(language string) RecognitionOption {
	return func(o *RecognitionOptions) {
		if language != "" {
			o.Language = language
		}
	}
}

func WithMaxAlternatives(maxAlternatives int) RecognitionOption {
	return func(o *RecognitionOptions) {
		if maxAlternatives > 0 {
			o.MaxAlternatives = maxAlternatives
		}
	}
}

func WithStartedCallback(callback func()) RecognitionOption {
	return func(o *RecognitionOptions) { o.StartedCallback = callback }
}

func WithResultCallback(callback func(transcript string)) RecognitionOption {
	return func(o *RecognitionOptions) { o.ResultCallback = callback }
}

func WithErrorCallback(callback func(err error)) RecognitionOption {
	return func(o *RecognitionOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RecognitionOption {
	return func(o *RecognitionOptions) {
		if !encodingInfo.IsZero() {
			o.EncodingInfo = encodingInfo
		}
	}
}

// NewRecognitionOptions applies opts over defaults and no-op callbacks.
func NewRecognitionOptions(opts ...RecognitionOption) RecognitionOptions {
	options := RecognitionOptions{
		Language:        DefaultLanguage,
		MaxAlternatives: DefaultMaxAlternatives,
		EncodingInfo:    audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.StartedCallback == nil {
		options.StartedCallback = func() {}
	}
	if options.ResultCallback == nil {
		options.ResultCallback = func(string) {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	return options
}
