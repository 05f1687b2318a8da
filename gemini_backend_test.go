package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiRoleMappingRoundTrip(t *testing.T) {
	history := []ChatTurn{
		{Role: RoleUser, Content: "Who are you?"},
		{Role: RoleAssistant, Content: "I'm the portfolio assistant."},
		{Role: RoleUser, Content: "What can you do?"},
		{Role: RoleAssistant, Content: "Answer questions about the owner."},
	}

	contents := toGeminiContents(history)
	require.Len(t, contents, len(history))
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)

	back := make([]ChatTurn, 0, len(contents))
	for _, c := range contents {
		back = append(back, fromGeminiContent(c))
	}
	assert.Equal(t, history, back)
}

func TestGeminiResult(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: "model",
				Parts: []*genai.Part{
					{Text: "thinking it over", Thought: true},
					{Text: "Hello "},
					{Text: "there."},
				},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     11,
			CandidatesTokenCount: 5,
			TotalTokenCount:      16,
		},
	}

	res, err := geminiResult(resp)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", res.Text)
	assert.Equal(t, ChatUsage{PromptTokens: 11, CompletionTokens: 5, TotalTokens: 16}, res.Usage)
}

func TestGeminiResultWithoutUsage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "ok"}}}}},
	}

	res, err := geminiResult(resp)
	require.NoError(t, err)
	assert.Equal(t, ChatUsage{}, res.Usage)
}

func TestGeminiResultEmpty(t *testing.T) {
	_, err := geminiResult(&genai.GenerateContentResponse{})
	require.Error(t, err)

	_, err = geminiResult(nil)
	require.Error(t, err)
}

func TestBackendsRequireKey(t *testing.T) {
	_, err := NewGeminiBackend(t.Context(), "", "")
	require.ErrorIs(t, err, ErrChatNotConfigured)

	_, err = NewOpenAIBackend("", "", "")
	require.ErrorIs(t, err, ErrChatNotConfigured)
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages([]ChatTurn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	assert.Len(t, msgs, 2)
}
