// Package config loads the settings of the lumira command line client.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/koscakluka/lumira-core/core/chat"
	"github.com/koscakluka/lumira-core/core/speechtotext"
)

const (
	SpeechDeepgram = "deepgram"
	SpeechBackend  = "backend"
	SpeechNone     = "none"

	AudioMiniaudio = "miniaudio"
	AudioPortaudio = "portaudio"
	AudioNone      = "none"
)

type Config struct {
	BaseURL        string `json:"base_url,omitempty" jsonschema:"title=Base URL,description=Lumira backend API root,default=http://127.0.0.1:8000/api"`
	DeepgramAPIKey string `json:"deepgram_api_key,omitempty" jsonschema:"title=Deepgram API key,description=Enables Deepgram speech synthesis and recognition"`

	Speech        string `json:"speech,omitempty" jsonschema:"title=Speech,description=Which synthesizer narrates replies,enum=deepgram,enum=backend,enum=none,default=backend"`
	DeepgramVoice string `json:"deepgram_voice,omitempty" jsonschema:"title=Deepgram voice,description=Aura voice model used by the deepgram synthesizer,default=aura-asteria-en"`
	Player        string `json:"player,omitempty" jsonschema:"title=Player,description=Command playing backend speech from stdin,default=ffplay"`
	Audio         string `json:"audio,omitempty" jsonschema:"title=Audio,description=Audio device driver for microphone and deepgram playback,enum=miniaudio,enum=portaudio,enum=none,default=miniaudio"`

	Language             string `json:"language,omitempty" jsonschema:"title=Language,description=Recognition language,default=en-US"`
	ListenTimeoutSeconds int    `json:"listen_timeout_seconds,omitempty" jsonschema:"title=Listen timeout,description=Seconds to wait for a spoken utterance,minimum=1,default=10"`
	StreamIdleSeconds    int    `json:"stream_idle_seconds,omitempty" jsonschema:"title=Stream idle timeout,description=Seconds without reply bytes before the exchange fails (0 disables),minimum=0"`

	Muted      bool   `json:"muted,omitempty" jsonschema:"title=Muted,description=Start with narration muted"`
	ActiveFile string `json:"active_file,omitempty" jsonschema:"title=Active file,description=Knowledge base file questions are scoped to"`
	Greeting   string `json:"greeting,omitempty" jsonschema:"title=Greeting,description=First assistant message"`
}

func Default() Config {
	return Config{
		BaseURL:              chat.DefaultBaseURL,
		Speech:               SpeechBackend,
		DeepgramVoice:        "aura-asteria-en",
		Player:               "ffplay",
		Audio:                AudioMiniaudio,
		Language:             speechtotext.DefaultLanguage,
		ListenTimeoutSeconds: 10,
	}
}

// Load applies, in order, the defaults, the JSON file at path (if any), the
// given .env files (".env" when none are given) and the environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	stringVars := map[string]*string{
		"LUMIRA_BASE_URL":       &c.BaseURL,
		"DEEPGRAM_API_KEY":      &c.DeepgramAPIKey,
		"LUMIRA_SPEECH":         &c.Speech,
		"LUMIRA_DEEPGRAM_VOICE": &c.DeepgramVoice,
		"LUMIRA_PLAYER":         &c.Player,
		"LUMIRA_AUDIO":          &c.Audio,
		"LUMIRA_LANGUAGE":       &c.Language,
		"LUMIRA_ACTIVE_FILE":    &c.ActiveFile,
		"LUMIRA_GREETING":       &c.Greeting,
	}
	for name, field := range stringVars {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			*field = value
		}
	}

	intVars := map[string]*int{
		"LUMIRA_LISTEN_TIMEOUT_SECONDS": &c.ListenTimeoutSeconds,
		"LUMIRA_STREAM_IDLE_SECONDS":    &c.StreamIdleSeconds,
	}
	var errs []error
	for name, field := range intVars {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			continue
		}
		*field = parsed
	}

	if value, ok := os.LookupEnv("LUMIRA_MUTED"); ok && value != "" {
		muted, err := strconv.ParseBool(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid LUMIRA_MUTED: %w", err))
		} else {
			c.Muted = muted
		}
	}

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid base_url %q", c.BaseURL))
	}
	switch c.Speech {
	case SpeechDeepgram, SpeechBackend, SpeechNone:
	default:
		errs = append(errs, fmt.Errorf("unknown speech %q", c.Speech))
	}
	switch c.Audio {
	case AudioMiniaudio, AudioPortaudio, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("unknown audio %q", c.Audio))
	}
	if c.ListenTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("listen_timeout_seconds must be positive"))
	}
	if c.StreamIdleSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream_idle_seconds must not be negative"))
	}
	if c.Speech == SpeechDeepgram && c.DeepgramAPIKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - deepgram speech will not work")
	}

	return errors.Join(errs...)
}

func (c Config) ListenTimeout() time.Duration {
	return time.Duration(c.ListenTimeoutSeconds) * time.Second
}

func (c Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleSeconds) * time.Second
}

// VoiceInputEnabled reports whether a microphone can be used for recognition.
func (c Config) VoiceInputEnabled() bool {
	return c.DeepgramAPIKey != "" && c.Audio != AudioNone
}

// Schema renders the JSON schema of the config file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Config{})
	schema.Title = "Lumira client configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render config schema: %w", err)
	}
	return []byte(strings.TrimSpace(string(data)) + "\n"), nil
}
