package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"LUMIRA_BASE_URL", "DEEPGRAM_API_KEY", "LUMIRA_SPEECH", "LUMIRA_DEEPGRAM_VOICE",
	"LUMIRA_PLAYER", "LUMIRA_AUDIO", "LUMIRA_LANGUAGE", "LUMIRA_ACTIVE_FILE",
	"LUMIRA_GREETING", "LUMIRA_LISTEN_TIMEOUT_SECONDS", "LUMIRA_STREAM_IDLE_SECONDS",
	"LUMIRA_MUTED",
}

// clearEnv unsets every config variable for the test and restores them after.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range configEnvVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", missingEnvFile(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.ListenTimeout() != 10*time.Second {
		t.Fatalf("unexpected listen timeout %v", cfg.ListenTimeout())
	}
	if cfg.VoiceInputEnabled() {
		t.Fatalf("expected voice input disabled without a deepgram key")
	}
}

func TestLoadLayersFileEnvFileAndEnvironment(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "lumira.json", `{
		"base_url": "http://file.example/api",
		"speech": "none",
		"active_file": "catalog.pdf",
		"listen_timeout_seconds": 5
	}`)
	envFile := writeFile(t, "test.env", "LUMIRA_SPEECH=deepgram\nDEEPGRAM_API_KEY=from-dotenv\n")
	t.Setenv("LUMIRA_BASE_URL", "http://env.example/api")
	t.Setenv("LUMIRA_MUTED", "true")

	cfg, err := Load(path, envFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BaseURL != "http://env.example/api" {
		t.Fatalf("expected environment to override file, got %q", cfg.BaseURL)
	}
	if cfg.Speech != SpeechDeepgram || cfg.DeepgramAPIKey != "from-dotenv" {
		t.Fatalf("expected .env values, got speech=%q key=%q", cfg.Speech, cfg.DeepgramAPIKey)
	}
	if cfg.ActiveFile != "catalog.pdf" || cfg.ListenTimeoutSeconds != 5 {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if !cfg.Muted {
		t.Fatalf("expected muted from environment")
	}
	if cfg.Player != "ffplay" {
		t.Fatalf("expected default player to survive, got %q", cfg.Player)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "unknown field", file: `{"colour": "blue"}`, wantErr: "unknown field"},
		{name: "unknown speech", env: map[string]string{"LUMIRA_SPEECH": "robot"}, wantErr: "unknown speech"},
		{name: "bad base url", env: map[string]string{"LUMIRA_BASE_URL": "not a url"}, wantErr: "invalid base_url"},
		{name: "bad timeout", env: map[string]string{"LUMIRA_LISTEN_TIMEOUT_SECONDS": "soon"}, wantErr: "LUMIRA_LISTEN_TIMEOUT_SECONDS"},
		{name: "zero timeout", file: `{"listen_timeout_seconds": -1}`, wantErr: "must be positive"},
		{name: "bad muted", env: map[string]string{"LUMIRA_MUTED": "maybe"}, wantErr: "LUMIRA_MUTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for name, value := range tt.env {
				t.Setenv(name, value)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "lumira.json", tt.file)
			}

			_, err := Load(path, missingEnvFile(t))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSchemaDescribesConfigFile(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	for _, field := range []string{"base_url", "speech", "audio", "listen_timeout_seconds", "active_file"} {
		if _, ok := schema.Properties[field]; !ok {
			t.Fatalf("expected property %q in schema", field)
		}
	}
	if !strings.Contains(string(schema.Properties["speech"]), "deepgram") {
		t.Fatalf("expected speech enum in schema, got %s", schema.Properties["speech"])
	}
}
