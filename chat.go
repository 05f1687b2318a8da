package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ChatOptions holds the fixed generation parameters of the orchestrator.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// ChatService combines session history, knowledge context and the AI backend.
type ChatService struct {
	backend   ChatBackend
	knowledge ContextProvider
	sessions  *SessionStore
	opts      ChatOptions
	configErr error
}

// NewChatService wires the orchestrator. A nil backend means no credential was
// configured: the service is still usable but every Chat call fails with
// ErrChatNotConfigured.
func NewChatService(backend ChatBackend, knowledge ContextProvider, sessions *SessionStore, opts ChatOptions) *ChatService {
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultChatTimeout
	}

	s := &ChatService{
		backend:   backend,
		knowledge: knowledge,
		sessions:  sessions,
		opts:      opts,
	}
	if backend == nil {
		s.configErr = ErrChatNotConfigured
		log.Warn().Msg("no AI credential configured, chat is disabled")
	}
	return s
}

// Enabled reports whether a backend is configured.
func (s *ChatService) Enabled() bool {
	return s.configErr == nil
}

// Chat sends message within the conversation identified by sessionID and
// records the exchange on success. The first message of a session is prefixed
// with knowledge context; later messages go out unchanged since the backend
// receives the history.
func (s *ChatService) Chat(ctx context.Context, message, sessionID string) (*ChatReply, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	logger := log.With().Str("session_id", sessionID).Str("provider", s.backend.Name()).Logger()

	if err := s.knowledge.Load(ctx); err != nil {
		logger.Debug().Err(err).Msg("continuing without knowledge corpus")
	}

	sess := s.sessions.Acquire(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	history := sess.turns()
	outgoing := message
	if len(history) == 0 {
		outgoing = s.knowledge.BuildContext(ctx, message) + UserQuestionMarker + message
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.backend.Generate(callCtx, GenerateRequest{
		History:         history,
		Message:         outgoing,
		Temperature:     s.opts.Temperature,
		MaxOutputTokens: s.opts.MaxOutputTokens,
	})
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("chat backend call failed")
		return nil, &UpstreamError{Provider: s.backend.Name(), Err: err}
	}

	sess.appendExchange(
		ChatTurn{Role: RoleUser, Content: message},
		ChatTurn{Role: RoleAssistant, Content: res.Text},
		s.sessions.MaxHistoryTurns(),
	)
	sess.touch(time.Now())

	logger.Debug().
		Int("history", len(sess.history)).
		Int("total_tokens", res.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("chat exchange completed")

	return &ChatReply{Message: res.Text, Usage: res.Usage}, nil
}

// ClearHistory forgets the conversation. Unknown sessions are ignored.
func (s *ChatService) ClearHistory(sessionID string) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	s.sessions.Delete(sessionID)
	log.Debug().Str("session_id", sessionID).Msg("chat history cleared")
}

// History returns the stored turns of a session.
func (s *ChatService) History(sessionID string) []ChatTurn {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	turns, _ := s.sessions.History(sessionID)
	return turns
}
