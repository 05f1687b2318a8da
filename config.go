package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration. Values come from defaults, then an
// optional JSON file, then environment variables (a .env file is loaded into
// the environment first).
type Config struct {
	Port        int    `json:"port,omitempty"`
	Environment string `json:"environment,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
	LogFormat   string `json:"log_format,omitempty"` // "console" or "json"

	AI        AIConfig        `json:"ai,omitempty"`
	Chat      ChatConfig      `json:"chat,omitempty"`
	Knowledge KnowledgeConfig `json:"knowledge,omitempty"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Mail      MailConfig      `json:"mail,omitempty"`
	CORS      CORSConfig      `json:"cors,omitempty"`
}

// AIConfig selects and configures the chat backend.
type AIConfig struct {
	Provider string       `json:"provider,omitempty"` // "gemini" or "openai"
	Gemini   GeminiConfig `json:"gemini,omitempty"`
	OpenAI   OpenAIConfig `json:"openai,omitempty"`
}

// GeminiConfig holds Gemini model settings.
type GeminiConfig struct {
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// OpenAIConfig holds settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ChatConfig holds orchestrator and session store limits.
type ChatConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	MaxOutputTokens int32    `json:"max_output_tokens,omitempty"`
	MaxHistory      int      `json:"max_history,omitempty"`
	MaxSessions     int      `json:"max_sessions,omitempty"`
	SessionTTL      Duration `json:"session_ttl,omitempty"`
	Timeout         Duration `json:"timeout,omitempty"`
}

// KnowledgeConfig points at the corpus and picks the retrieval strategy.
type KnowledgeConfig struct {
	Path      string `json:"path,omitempty"`
	Retriever string `json:"retriever,omitempty"` // "keyword" or "vector"
	TopK      int    `json:"top_k,omitempty"`
	MaxChars  int    `json:"max_chars,omitempty"`
}

// DatabaseConfig selects the contact repository.
type DatabaseConfig struct {
	Driver   string `json:"driver,omitempty"`
	URL      string `json:"url,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
	// Path is the SQLite file or the badger directory.
	Path string `json:"path,omitempty"`
}

// PostgresDSN returns URL when set, otherwise a key/value DSN built from the parts.
func (d DatabaseConfig) PostgresDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// MailConfig holds the SMTP relay settings.
type MailConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	From         string `json:"from,omitempty"`
	OwnerAddress string `json:"owner_address,omitempty"`
}

// CORSConfig lists the extra origins browsers may call from.
type CORSConfig struct {
	FrontendURL   string `json:"frontend_url,omitempty"`
	TrustedSuffix string `json:"trusted_suffix,omitempty"`
}

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string like \"30m\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// IsProduction reports whether error details should be hidden from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func defaultConfig() *Config {
	return &Config{
		Port:        DefaultPort,
		Environment: DefaultEnvironment,
		LogLevel:    "info",
		LogFormat:   "console",
		AI: AIConfig{
			Provider: ProviderGemini,
			Gemini:   GeminiConfig{Model: DefaultChatModel, EmbeddingModel: DefaultEmbeddingModel},
			OpenAI:   OpenAIConfig{Model: DefaultOpenAIModel},
		},
		Chat: ChatConfig{
			Temperature:     DefaultTemperature,
			MaxOutputTokens: DefaultMaxOutputTokens,
			MaxHistory:      DefaultMaxHistoryTurns,
			MaxSessions:     DefaultMaxSessions,
			SessionTTL:      Duration(DefaultSessionIdleTTL),
			Timeout:         Duration(DefaultChatTimeout),
		},
		Knowledge: KnowledgeConfig{
			Retriever: RetrieverKeyword,
			TopK:      DefaultContextDocuments,
			MaxChars:  DefaultMaxContextChars,
		},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		Mail:     MailConfig{Host: DefaultSMTPHost, Port: DefaultSMTPPort},
		CORS:     CORSConfig{TrustedSuffix: DefaultTrustedSuffix},
	}
}

// LoadDotEnv loads .env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "load %s", path)
	}
	log.Debug().Str("path", path).Msg("loaded environment file")
	return nil
}

// LoadConfig builds the configuration. A missing file at path is only an
// error when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	return loadConfig(path, required, os.LookupEnv)
}

func loadConfig(path string, required bool, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse %s", path)
			}
			log.Debug().Str("path", path).Msg("loaded config file")
		case os.IsNotExist(err) && !required:
			log.Debug().Str("path", path).Msg("config file not found, using defaults and environment variables")
		default:
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		if cfg.Database.URL != "" || cfg.Database.Host != "" {
			cfg.Database.Driver = DriverPostgres
		} else {
			cfg.Database.Driver = DriverNone
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return errors.Errorf("unknown AI provider %q", c.AI.Provider)
	}
	switch c.Knowledge.Retriever {
	case RetrieverKeyword, RetrieverVector:
	default:
		return errors.Errorf("unknown knowledge retriever %q", c.Knowledge.Retriever)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverBadger, DriverNone:
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Chat.MaxHistory <= 0 || c.Chat.MaxHistory%2 != 0 {
		return errors.Errorf("chat max history must be a positive even number, got %d", c.Chat.MaxHistory)
	}
	if c.Chat.MaxOutputTokens <= 0 {
		return errors.Errorf("chat max output tokens must be positive, got %d", c.Chat.MaxOutputTokens)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// envReader applies environment overrides and remembers the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) str(dst *string, keys ...string) {
	for _, key := range keys {
		if v, ok := r.lookup(key); ok && v != "" {
			*dst = v
			return
		}
	}
}

func (r *envReader) int(dst *int, key string) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = errors.Wrapf(err, "invalid %s", key)
		return
	}
	*dst = n
}

// int32 reads a strictly positive 32-bit value.
func (r *envReader) int32(dst *int32, key string) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		r.err = errors.Wrapf(err, "invalid %s", key)
		return
	}
	if n <= 0 {
		r.err = errors.Errorf("invalid %s: must be positive, got %d", key, n)
		return
	}
	*dst = int32(n)
}

func (r *envReader) float32(dst *float32, key string) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		r.err = errors.Wrapf(err, "invalid %s", key)
		return
	}
	*dst = float32(f)
}

func (r *envReader) duration(dst *Duration, key string) {
	v, ok := r.lookup(key)
	if !ok || v == "" || r.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = errors.Wrapf(err, "invalid %s", key)
		return
	}
	*dst = Duration(d)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.int(&cfg.Port, "PORT")
	r.str(&cfg.Environment, "ENVIRONMENT", "NODE_ENV")
	r.str(&cfg.LogLevel, "LOG_LEVEL")
	r.str(&cfg.LogFormat, "LOG_FORMAT")

	r.str(&cfg.AI.Provider, "AI_PROVIDER")
	r.str(&cfg.AI.Gemini.APIKey, "GEMINI_API_KEY")
	r.str(&cfg.AI.Gemini.Model, "GEMINI_MODEL")
	r.str(&cfg.AI.Gemini.EmbeddingModel, "GEMINI_EMBEDDING_MODEL")
	r.str(&cfg.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	r.str(&cfg.AI.OpenAI.BaseURL, "OPENAI_BASE_URL")
	r.str(&cfg.AI.OpenAI.Model, "OPENAI_MODEL")

	r.float32(&cfg.Chat.Temperature, "CHAT_TEMPERATURE")
	r.int32(&cfg.Chat.MaxOutputTokens, "CHAT_MAX_OUTPUT_TOKENS")
	r.int(&cfg.Chat.MaxHistory, "CHAT_MAX_HISTORY")
	r.int(&cfg.Chat.MaxSessions, "CHAT_MAX_SESSIONS")
	r.duration(&cfg.Chat.SessionTTL, "CHAT_SESSION_TTL")
	r.duration(&cfg.Chat.Timeout, "CHAT_TIMEOUT")

	r.str(&cfg.Knowledge.Path, "KNOWLEDGE_PATH")
	r.str(&cfg.Knowledge.Retriever, "KNOWLEDGE_RETRIEVER")

	r.str(&cfg.Database.Driver, "DB_DRIVER")
	r.str(&cfg.Database.URL, "DATABASE_URL")
	r.str(&cfg.Database.Host, "DB_HOST")
	r.int(&cfg.Database.Port, "DB_PORT")
	r.str(&cfg.Database.User, "DB_USER")
	r.str(&cfg.Database.Password, "DB_PASSWORD")
	r.str(&cfg.Database.Name, "DB_NAME")
	r.str(&cfg.Database.SSLMode, "DB_SSLMODE")
	r.str(&cfg.Database.Path, "DB_PATH")

	r.str(&cfg.Mail.Host, "SMTP_HOST")
	r.int(&cfg.Mail.Port, "SMTP_PORT")
	r.str(&cfg.Mail.Username, "EMAIL_USER")
	r.str(&cfg.Mail.Password, "EMAIL_PASSWORD", "EMAIL_PASS")
	r.str(&cfg.Mail.From, "EMAIL_FROM")
	r.str(&cfg.Mail.OwnerAddress, "OWNER_EMAIL")

	r.str(&cfg.CORS.FrontendURL, "FRONTEND_URL")
	r.str(&cfg.CORS.TrustedSuffix, "CORS_TRUSTED_SUFFIX")

	return r.err
}
