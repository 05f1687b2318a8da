package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// App holds the services shared by the HTTP server, the MCP server and the
// interactive chat.
type App struct {
	cfg       *Config
	validator *InputValidator
	knowledge *KnowledgeBase
	sessions  *SessionStore
	chat      *ChatService
	contacts  *ContactService
	repo      ContactRepository
}

// NewApp builds every service from cfg. Missing AI or mail credentials and a
// disabled database do not fail startup; the affected operations report
// themselves unavailable instead.
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	sessions, err := NewSessionStore(SessionStoreOptions{
		MaxSessions:     cfg.Chat.MaxSessions,
		MaxHistoryTurns: cfg.Chat.MaxHistory,
		IdleTTL:         time.Duration(cfg.Chat.SessionTTL),
	})
	if err != nil {
		return nil, err
	}

	backend, err := newChatBackend(ctx, cfg.AI)
	if err != nil {
		return nil, err
	}

	retriever, err := newRetriever(ctx, cfg, backend)
	if err != nil {
		return nil, err
	}

	knowledge := NewKnowledgeBase(KnowledgeOptions{
		Path:      cfg.Knowledge.Path,
		Retriever: retriever,
		TopK:      cfg.Knowledge.TopK,
		MaxChars:  cfg.Knowledge.MaxChars,
	})

	chat := NewChatService(backend, knowledge, sessions, ChatOptions{
		Temperature:     cfg.Chat.Temperature,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		Timeout:         time.Duration(cfg.Chat.Timeout),
	})

	repo, err := OpenContactRepository(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "open contact repository")
	}
	if repo == nil {
		log.Warn().Msg("no database configured, contact submissions will not be stored")
	} else {
		log.Info().Str("driver", cfg.Database.Driver).Msg("contact repository ready")
	}

	validator := NewInputValidator()
	return &App{
		cfg:       cfg,
		validator: validator,
		knowledge: knowledge,
		sessions:  sessions,
		chat:      chat,
		contacts:  NewContactService(validator, NewMailer(cfg.Mail), repo),
		repo:      repo,
	}, nil
}

// Close releases the contact repository.
func (a *App) Close() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}

// newChatBackend returns nil without error when the selected provider has no key.
func newChatBackend(ctx context.Context, cfg AIConfig) (ChatBackend, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, nil
		}
		b, err := NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		if err != nil {
			return nil, err
		}
		log.Info().Str("provider", ProviderOpenAI).Str("model", b.model).Msg("chat backend configured")
		return b, nil
	default:
		if cfg.Gemini.APIKey == "" {
			return nil, nil
		}
		b, err := NewGeminiBackend(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		log.Info().Str("provider", ProviderGemini).Str("model", b.model).Msg("chat backend configured")
		return b, nil
	}
}

// newRetriever returns the vector retriever when requested and a Gemini key is
// available, otherwise nil so the knowledge base uses keyword matching.
func newRetriever(ctx context.Context, cfg *Config, backend ChatBackend) (Retriever, error) {
	if cfg.Knowledge.Retriever != RetrieverVector {
		return nil, nil
	}

	var client *genai.Client
	if gb, ok := backend.(*GeminiBackend); ok {
		client = gb.Client()
	} else if cfg.AI.Gemini.APIKey != "" {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.AI.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create genai client for embeddings")
		}
		client = c
	}
	if client == nil {
		log.Warn().Msg("vector retrieval needs GEMINI_API_KEY, using keyword retrieval")
		return nil, nil
	}

	return NewVectorRetriever(makeGeminiEmbedder(client, cfg.AI.Gemini.EmbeddingModel))
}

// setupLogging configures the global zerolog logger. Console output goes to
// w unless format is "json".
func setupLogging(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}
