package texttospeech

import (
	"errors"

	"github.com/koscakluka/lumira-core/core/audio"
)

// ErrStopped is reported to the completion callback of an utterance that was
// cut short by Stop.
var ErrStopped = errors.New("speech stopped")

// Synthesizer is a single shared voice. Implementations play one utterance at
// a time; callers are expected to serialize Speak calls.
type Synthesizer interface {
	// Speak starts playing text asynchronously. onEnded is called exactly once
	// when playback ends: with nil when the utterance finished, with
	// [ErrStopped] when Stop interrupted it, or with the failure otherwise.
	// When Speak itself returns an error onEnded is never called.
	Speak(text string, onEnded func(error)) error
	// Stop immediately stops the current utterance, if any.
	Stop() error
}

type SynthesizerOptions struct {
	// Voice selects a provider specific voice or model.
	Voice string
	// SpeechAudioCallback is called with every audio chunk the provider
	// produces, before it is handed to the output.
	SpeechAudioCallback func(audio []byte)
	// ErrorCallback is called for errors that are not tied to a single
	// utterance, e.g. a broken connection.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type SynthesizerOption func(*SynthesizerOptions)

func WithVoice(voice string) SynthesizerOption {
	return func(o *SynthesizerOptions) { o.Voice = voice }
}

func WithSpeechAudioCallback(callback func([]byte)) SynthesizerOption {
	return func(o *SynthesizerOptions) { o.SpeechAudioCallback = callback }
}

func WithErrorCallback(callback func(error)) SynthesizerOption {
	return func(o *SynthesizerOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesizerOption {
	return func(o *SynthesizerOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

// NewSynthesizerOptions applies opts over no-op callbacks and the default
// encoding.
func NewSynthesizerOptions(opts ...SynthesizerOption) SynthesizerOptions {
	options := SynthesizerOptions{
		SpeechAudioCallback: func([]byte) {},
		ErrorCallback:       func(error) {},
		EncodingInfo:        audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.SpeechAudioCallback == nil {
		options.SpeechAudioCallback = func([]byte) {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	return options
}
