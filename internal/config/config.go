// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Knowledge backends.
const (
	KnowledgeQdrant = "qdrant"
	KnowledgeMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`

	Session         SessionConfig         `yaml:"session"`
	Chart           ChartConfig           `yaml:"chart"`
	LLM             LLMConfig             `yaml:"llm"`
	Knowledge       KnowledgeConfig       `yaml:"knowledge"`
	ConversationLog ConversationLogConfig `yaml:"conversation_log"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Backend       string        `yaml:"backend"`
	DBPath        string        `yaml:"db_path"`
	RedisURL      string        `yaml:"redis_url"`
	TTL           time.Duration `yaml:"ttl"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ChartConfig points at the chart calculator sidecar and the geocoder.
type ChartConfig struct {
	ServiceAddr       string        `yaml:"service_addr"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	GeocoderURL       string        `yaml:"geocoder_url"`
	GeocoderUserAgent string        `yaml:"geocoder_user_agent"`
	Ayanamsa          string        `yaml:"ayanamsa"`
	HouseSystem       string        `yaml:"house_system"`
}

// LLMConfig configures the OpenAI-compatible model endpoint.
type LLMConfig struct {
	BaseURL               string        `yaml:"base_url"`
	APIKey                string        `yaml:"api_key"`
	ChatModel             string        `yaml:"chat_model"`
	StructuredModel       string        `yaml:"structured_model"`
	EmbeddingModel        string        `yaml:"embedding_model"`
	ChatTemperature       float64       `yaml:"chat_temperature"`
	StructuredTemperature float64       `yaml:"structured_temperature"`
	Timeout               time.Duration `yaml:"timeout"`
}

// KnowledgeConfig selects the vector index.
type KnowledgeConfig struct {
	Backend    string `yaml:"backend"`
	QdrantURL  string `yaml:"qdrant_url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorDim  int    `yaml:"vector_dim"`
	// DataDir seeds the memory backend at startup.
	DataDir    string `yaml:"data_dir"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	GlobalEnabled bool   `yaml:"global_enabled"`
	GlobalPath    string `yaml:"global_path"`
	QueueSize     int    `yaml:"queue_size"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	MaxBackups    int    `yaml:"max_backups"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:           "8080",
		AllowedOrigins: []string{"*"},
		TurnTimeout:    60 * time.Second,
		Session: SessionConfig{
			Backend:       BackendSQLite,
			DBPath:        "./data/kundali.db",
			RedisURL:      "redis://localhost:6379/0",
			TTL:           24 * time.Hour,
			CacheTTL:      time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Chart: ChartConfig{
			ServiceAddr:       "localhost:50051",
			ConnectTimeout:    5 * time.Second,
			RequestTimeout:    15 * time.Second,
			GeocoderURL:       "https://nominatim.openstreetmap.org",
			GeocoderUserAgent: "kundali-rag",
			Ayanamsa:          "Lahiri",
			HouseSystem:       "Equal",
		},
		LLM: LLMConfig{
			BaseURL:               "https://api.openai.com/v1",
			ChatModel:             "gpt-4o-mini",
			StructuredModel:       "gpt-4o-mini",
			EmbeddingModel:        "text-embedding-3-small",
			ChatTemperature:       0.7,
			StructuredTemperature: 0.1,
			Timeout:               30 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Backend:    KnowledgeQdrant,
			QdrantURL:  "http://localhost:6333",
			Collection: "astro_docs",
			VectorDim:  1536,
			DataDir:    "./data/corpus",
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       true,
			Dir:           "./data/logs/conversations",
			GlobalEnabled: false,
			GlobalPath:    "./data/logs/conversations/all.ndjson",
			QueueSize:     1000,
			MaxSizeMB:     10,
			MaxBackups:    5,
		},
	}
}

// Load reads configuration from an optional YAML file named by CONFIG_FILE
// and then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.ConversationLog.QueueSize <= 0 {
		cfg.ConversationLog.QueueSize = 1000
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.TurnTimeout = getEnvDuration("TURN_TIMEOUT", c.TurnTimeout)

	c.Session.Backend = strings.ToLower(getEnv("SESSION_BACKEND", c.Session.Backend))
	c.Session.DBPath = getEnv("DB_PATH", c.Session.DBPath)
	c.Session.RedisURL = getEnv("REDIS_URL", c.Session.RedisURL)
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Session.CacheTTL = getEnvDuration("SESSION_CACHE_TTL", c.Session.CacheTTL)
	c.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Session.SweepInterval)

	c.Chart.ServiceAddr = getEnv("CHART_SERVICE_ADDR", c.Chart.ServiceAddr)
	c.Chart.ConnectTimeout = getEnvDuration("CHART_CONNECT_TIMEOUT", c.Chart.ConnectTimeout)
	c.Chart.RequestTimeout = getEnvDuration("CHART_REQUEST_TIMEOUT", c.Chart.RequestTimeout)
	c.Chart.GeocoderURL = getEnv("GEOCODER_URL", c.Chart.GeocoderURL)
	c.Chart.GeocoderUserAgent = getEnv("GEOCODER_USER_AGENT", c.Chart.GeocoderUserAgent)
	c.Chart.Ayanamsa = getEnv("CHART_AYANAMSA", c.Chart.Ayanamsa)
	c.Chart.HouseSystem = getEnv("CHART_HOUSE_SYSTEM", c.Chart.HouseSystem)

	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.ChatModel = getEnv("OPENAI_CHAT_MODEL", c.LLM.ChatModel)
	c.LLM.StructuredModel = getEnv("OPENAI_STRUCTURED_MODEL", c.LLM.StructuredModel)
	c.LLM.EmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.ChatTemperature = getEnvFloat("OPENAI_CHAT_TEMPERATURE", c.LLM.ChatTemperature)
	c.LLM.StructuredTemperature = getEnvFloat("OPENAI_STRUCTURED_TEMPERATURE", c.LLM.StructuredTemperature)
	c.LLM.Timeout = getEnvDuration("OPENAI_TIMEOUT", c.LLM.Timeout)

	c.Knowledge.Backend = strings.ToLower(getEnv("KNOWLEDGE_BACKEND", c.Knowledge.Backend))
	c.Knowledge.QdrantURL = getEnv("QDRANT_URL", c.Knowledge.QdrantURL)
	c.Knowledge.APIKey = getEnv("QDRANT_API_KEY", c.Knowledge.APIKey)
	c.Knowledge.Collection = getEnv("QDRANT_COLLECTION", c.Knowledge.Collection)
	c.Knowledge.VectorDim = getEnvInt("QDRANT_VECTOR_DIM", c.Knowledge.VectorDim)
	c.Knowledge.DataDir = getEnv("KNOWLEDGE_DATA_DIR", c.Knowledge.DataDir)

	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	c.ConversationLog.GlobalEnabled = getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", c.ConversationLog.GlobalEnabled)
	c.ConversationLog.GlobalPath = getEnv("CONVERSATION_LOG_GLOBAL_PATH", c.ConversationLog.GlobalPath)
	c.ConversationLog.QueueSize = getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)
	c.ConversationLog.MaxSizeMB = getEnvInt("CONVERSATION_LOG_MAX_SIZE_MB", c.ConversationLog.MaxSizeMB)
	c.ConversationLog.MaxBackups = getEnvInt("CONVERSATION_LOG_MAX_BACKUPS", c.ConversationLog.MaxBackups)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("TURN_TIMEOUT must be > 0")
	}
	switch c.Session.Backend {
	case BackendSQLite:
		if c.Session.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Chart.ServiceAddr == "" {
		return fmt.Errorf("CHART_SERVICE_ADDR cannot be empty")
	}
	if c.Chart.GeocoderURL == "" {
		return fmt.Errorf("GEOCODER_URL cannot be empty")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL cannot be empty")
	}
	switch c.Knowledge.Backend {
	case KnowledgeQdrant:
		if c.Knowledge.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL cannot be empty")
		}
		if c.Knowledge.Collection == "" {
			return fmt.Errorf("QDRANT_COLLECTION cannot be empty")
		}
	case KnowledgeMemory:
	default:
		return fmt.Errorf("KNOWLEDGE_BACKEND must be %q or %q, got %q", KnowledgeQdrant, KnowledgeMemory, c.Knowledge.Backend)
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true when any browser origin is accepted.
func (c *Config) IsDevelopment() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			return true
		}
	}
	return len(c.AllowedOrigins) == 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
