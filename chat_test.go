package main

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records requests and replies with a canned answer.
type fakeBackend struct {
	mu       sync.Mutex
	requests []GenerateRequest
	reply    string
	usage    ChatUsage
	err      error
	delay    time.Duration
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply, usage, err, delay := f.reply, f.usage, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if reply == "" {
		reply = "echo: " + req.Message
	}
	return &GenerateResult{Text: reply, Usage: usage}, nil
}

func (f *fakeBackend) calls() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateRequest(nil), f.requests...)
}

// staticKnowledge returns a fixed context block.
type staticKnowledge struct {
	text  string
	loads atomic.Int32
}

func (k *staticKnowledge) Load(context.Context) error {
	k.loads.Add(1)
	return nil
}

func (k *staticKnowledge) BuildContext(context.Context, string) string { return k.text }

func newTestChatService(t *testing.T, backend ChatBackend) (*ChatService, *SessionStore) {
	t.Helper()
	sessions, err := NewSessionStore(SessionStoreOptions{MaxHistoryTurns: 10})
	require.NoError(t, err)
	return NewChatService(backend, &staticKnowledge{text: "CTX"}, sessions, ChatOptions{}), sessions
}

func TestChatInjectsContextOnFirstTurnOnly(t *testing.T) {
	backend := &fakeBackend{reply: "Jane builds distributed systems."}
	svc, sessions := newTestChatService(t, backend)
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "What does Jane do?", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Jane builds distributed systems.", reply.Message)

	_, err = svc.Chat(ctx, "And before that?", "s1")
	require.NoError(t, err)

	calls := backend.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "CTX\n\nUser question: What does Jane do?", calls[0].Message)
	assert.Empty(t, calls[0].History)
	assert.Equal(t, "And before that?", calls[1].Message)
	assert.Equal(t, []ChatTurn{
		{Role: RoleUser, Content: "What does Jane do?"},
		{Role: RoleAssistant, Content: "Jane builds distributed systems."},
	}, calls[1].History)

	// The stored user turn is the raw message, not the context-prefixed one.
	turns, ok := sessions.History("s1")
	require.True(t, ok)
	require.Len(t, turns, 4)
	assert.Equal(t, "What does Jane do?", turns[0].Content)
	assert.Equal(t, "And before that?", turns[2].Content)
}

func TestChatPassesGenerationOptions(t *testing.T) {
	backend := &fakeBackend{}
	svc, _ := newTestChatService(t, backend)

	_, err := svc.Chat(context.Background(), "hi", "")
	require.NoError(t, err)

	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.7, calls[0].Temperature, 1e-6)
	assert.EqualValues(t, 500, calls[0].MaxOutputTokens)
}

func TestChatUsesDefaultSession(t *testing.T) {
	svc, sessions := newTestChatService(t, &fakeBackend{})

	_, err := svc.Chat(context.Background(), "hi", "")
	require.NoError(t, err)

	turns, ok := sessions.History(DefaultSessionID)
	require.True(t, ok)
	assert.Len(t, turns, 2)
	assert.Len(t, svc.History(""), 2)
}

func TestChatReportsUsage(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeBackend{usage: ChatUsage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}})

	reply, err := svc.Chat(context.Background(), "hi", "s")
	require.NoError(t, err)
	assert.Equal(t, ChatUsage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}, reply.Usage)
}

func TestChatWithoutUsageReportsZero(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeBackend{})

	reply, err := svc.Chat(context.Background(), "hi", "s")
	require.NoError(t, err)
	assert.Equal(t, ChatUsage{}, reply.Usage)
}

func TestChatWithoutBackendIsNotConfigured(t *testing.T) {
	svc, sessions := newTestChatService(t, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Chat(context.Background(), "hi", "s1")
	require.ErrorIs(t, err, ErrChatNotConfigured)
	assert.Equal(t, 0, sessions.Len(), "no session may be created")
}

func TestChatUpstreamFailureLeavesHistoryUnchanged(t *testing.T) {
	backend := &fakeBackend{}
	svc, sessions := newTestChatService(t, backend)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "first", "s1")
	require.NoError(t, err)

	backend.mu.Lock()
	backend.err = errors.New("quota exceeded")
	backend.mu.Unlock()

	_, err = svc.Chat(ctx, "second", "s1")
	require.Error(t, err)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "fake", upstream.Provider)

	turns, _ := sessions.History("s1")
	assert.Len(t, turns, 2)
}

func TestChatTimeout(t *testing.T) {
	backend := &fakeBackend{delay: time.Second}
	sessions, err := NewSessionStore(SessionStoreOptions{})
	require.NoError(t, err)
	svc := NewChatService(backend, &staticKnowledge{}, sessions, ChatOptions{Timeout: 10 * time.Millisecond})

	_, err = svc.Chat(context.Background(), "slow", "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, svc.History("s1"))
}

func TestChatSerializesSameSession(t *testing.T) {
	backend := &fakeBackend{delay: 5 * time.Millisecond}
	svc, sessions := newTestChatService(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Chat(context.Background(), "ping", "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every request after the first sees a history that already holds the
	// previous exchanges, and only the first gets context.
	calls := backend.calls()
	require.Len(t, calls, 8)
	withContext := 0
	for _, c := range calls {
		if c.Message != "ping" {
			withContext++
		}
	}
	assert.Equal(t, 1, withContext)

	turns, _ := sessions.History("shared")
	assert.Len(t, turns, 10)
}

func TestClearHistory(t *testing.T) {
	backend := &fakeBackend{}
	svc, _ := newTestChatService(t, backend)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "hello", "s1")
	require.NoError(t, err)

	svc.ClearHistory("s1")
	assert.Empty(t, svc.History("s1"))
	svc.ClearHistory("never-seen")

	_, err = svc.Chat(ctx, "hello again", "s1")
	require.NoError(t, err)
	calls := backend.calls()
	assert.Equal(t, "CTX\n\nUser question: hello again", calls[len(calls)-1].Message)
}

func TestChatLoadsKnowledge(t *testing.T) {
	sessions, err := NewSessionStore(SessionStoreOptions{})
	require.NoError(t, err)
	knowledge := &staticKnowledge{}
	svc := NewChatService(&fakeBackend{}, knowledge, sessions, ChatOptions{})

	_, err = svc.Chat(context.Background(), "hi", "s")
	require.NoError(t, err)
	assert.EqualValues(t, 1, knowledge.loads.Load())
}
