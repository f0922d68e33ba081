package main

import (
	"fmt"
	"log"
	"strings"

	orchestration "github.com/koscakluka/lumira-core/core"
	"github.com/koscakluka/lumira-core/core/audio"
	"github.com/koscakluka/lumira-core/core/audio/miniaudio"
	"github.com/koscakluka/lumira-core/core/audio/portaudio"
	"github.com/koscakluka/lumira-core/core/chat"
	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/knowledge"
	sttdeepgram "github.com/koscakluka/lumira-core/core/speechtotext/deepgram"
	"github.com/koscakluka/lumira-core/core/texttospeech"
	"github.com/koscakluka/lumira-core/core/texttospeech/backend"
	ttsdeepgram "github.com/koscakluka/lumira-core/core/texttospeech/deepgram"
	"github.com/koscakluka/lumira-core/internal/config"
)

type audioDevice interface {
	audio.Input
	audio.Output
	Close()
}

type runtime struct {
	orchestrator *orchestration.Orchestrator
	knowledge    *knowledge.Client
	closers      []func()
}

func newRuntime(cfg config.Config, handler func(events.Event)) *runtime {
	rt := &runtime{knowledge: knowledge.NewClient(cfg.BaseURL)}

	var device audioDevice
	if cfg.Speech == config.SpeechDeepgram || cfg.VoiceInputEnabled() {
		var err error
		if device, err = openAudioDevice(cfg.Audio); err != nil {
			log.Printf("Audio device unavailable: %v", err)
			device = nil
		} else if device != nil {
			rt.closers = append(rt.closers, device.Close)
		}
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithChatClient(chat.NewClient(cfg.BaseURL)),
		orchestration.WithEventHandler(handler),
		orchestration.WithActiveFile(cfg.ActiveFile),
		orchestration.WithMuted(cfg.Muted),
		orchestration.WithRecognitionLanguage(cfg.Language),
		orchestration.WithListenTimeout(cfg.ListenTimeout()),
		orchestration.WithStreamIdleTimeout(cfg.StreamIdleTimeout()),
	}
	if cfg.Greeting != "" {
		opts = append(opts, orchestration.WithGreeting(cfg.Greeting))
	}
	if synth := rt.newSynthesizer(cfg, device); synth != nil {
		opts = append(opts, orchestration.WithSynthesizer(synth))
	}
	if cfg.DeepgramAPIKey != "" && device != nil {
		opts = append(opts, orchestration.WithRecognizer(sttdeepgram.NewRecognizer(cfg.DeepgramAPIKey, device)))
	}

	rt.orchestrator = orchestration.NewOrchestrator(opts...)
	return rt
}

// Close stops the orchestrator before releasing the devices it plays on.
func (rt *runtime) Close() {
	rt.orchestrator.Close()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *runtime) newSynthesizer(cfg config.Config, device audioDevice) texttospeech.Synthesizer {
	onError := texttospeech.WithErrorCallback(func(err error) {
		log.Printf("Speech synthesis error: %v", err)
	})

	switch cfg.Speech {
	case config.SpeechDeepgram:
		if device == nil {
			log.Println("Deepgram speech needs an audio device, narration disabled")
			return nil
		}
		synth, err := ttsdeepgram.NewSynthesizer(cfg.DeepgramAPIKey, device, ttsdeepgram.Voice(cfg.DeepgramVoice), onError)
		if err != nil {
			log.Printf("Deepgram speech unavailable: %v", err)
			return nil
		}
		rt.closers = append(rt.closers, func() {
			if err := synth.Close(); err != nil {
				log.Printf("Failed to close deepgram synthesizer: %v", err)
			}
		})
		return synth

	case config.SpeechBackend:
		opts := []backend.Option{backend.WithSynthesizerOptions(onError)}
		if command, args, ok := playerCommand(cfg.Player); ok {
			opts = append(opts, backend.WithPlayer(command, args...))
		}
		synth := backend.NewSynthesizer(cfg.BaseURL, opts...)
		if !synth.Available() {
			log.Printf("Speech player %q not found, narration disabled", cfg.Player)
			return nil
		}
		return synth
	}

	return nil
}

func openAudioDevice(driver string) (audioDevice, error) {
	switch driver {
	case config.AudioMiniaudio:
		return miniaudio.NewClient()
	case config.AudioPortaudio:
		return portaudio.NewClient(portaudio.DefaultFramesPerBuffer)
	case config.AudioNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown audio driver %q", driver)
}

// playerCommand splits the configured player setting. Only a bare default
// player keeps the backend's own arguments, any given arguments replace them.
func playerCommand(setting string) (string, []string, bool) {
	fields := strings.Fields(setting)
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == backend.DefaultPlayer) {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
