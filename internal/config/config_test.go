package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.TurnTimeout != 60*time.Second {
		t.Fatalf("TurnTimeout = %v, want 60s", cfg.TurnTimeout)
	}
	if cfg.Knowledge.Collection != "astro_docs" {
		t.Fatalf("Collection = %q, want astro_docs", cfg.Knowledge.Collection)
	}
	if cfg.Session.Backend != BackendSQLite {
		t.Fatalf("Session.Backend = %q, want sqlite", cfg.Session.Backend)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: "7000"
turn_timeout: 15s
session:
  backend: redis
  redis_url: redis://cache:6379/1
knowledge:
  backend: memory
llm:
  chat_model: file-model
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_CHAT_MODEL", "env-model")
	t.Setenv("CHART_REQUEST_TIMEOUT", "3s")
	t.Setenv("KNOWLEDGE_DATA_DIR", "/srv/corpus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "7000" {
		t.Fatalf("Port = %q, want 7000", cfg.Port)
	}
	if cfg.TurnTimeout != 15*time.Second {
		t.Fatalf("TurnTimeout = %v, want 15s", cfg.TurnTimeout)
	}
	if cfg.Session.Backend != BackendRedis || cfg.Session.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("Session = %+v", cfg.Session)
	}
	if cfg.Knowledge.Backend != KnowledgeMemory {
		t.Fatalf("Knowledge.Backend = %q, want memory", cfg.Knowledge.Backend)
	}
	if cfg.LLM.ChatModel != "env-model" {
		t.Fatalf("ChatModel = %q, want env override", cfg.LLM.ChatModel)
	}
	if cfg.Chart.RequestTimeout != 3*time.Second || cfg.Knowledge.DataDir != "/srv/corpus" {
		t.Fatalf("Chart.RequestTimeout = %v, Knowledge.DataDir = %q", cfg.Chart.RequestTimeout, cfg.Knowledge.DataDir)
	}
	// Values absent from the file keep their defaults.
	if cfg.Chart.Ayanamsa != "Lahiri" {
		t.Fatalf("Ayanamsa = %q, want Lahiri", cfg.Chart.Ayanamsa)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Session.Backend = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for unknown session backend")
	}

	cfg = Defaults()
	cfg.Knowledge.Backend = "chroma"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for unknown knowledge backend")
	}
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("X_DURATION", "soon")
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_LIST", " a, ,b ")

	if got := getEnvDuration("X_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("getEnvDuration = %v, want fallback", got)
	}
	if got := getEnvInt("X_INT", 3); got != 3 {
		t.Fatalf("getEnvInt = %d, want fallback", got)
	}
	if got := getEnvBool("X_BOOL", true); !got {
		t.Fatal("getEnvBool = false, want fallback true")
	}
	got := getEnvList("X_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("getEnvList = %v, want [a b]", got)
	}
}
