package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// Gemini content roles
const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiBackend talks to the Gemini API through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a GenAI client for apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, ErrChatNotConfigured
	}
	if model == "" {
		model = DefaultChatModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	return &GeminiBackend{client: client, model: model}, nil
}

// Client exposes the underlying client, shared with the knowledge embedder.
func (g *GeminiBackend) Client() *genai.Client {
	return g.client
}

func (g *GeminiBackend) Name() string {
	return ProviderGemini
}

// Generate sends the history plus the new message and returns the model's reply.
func (g *GeminiBackend) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	contents := toGeminiContents(req.History)
	contents = append(contents, genai.NewContentFromText(req.Message, geminiRoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}

	return geminiResult(resp)
}

// toGeminiContents converts stored turns to Gemini contents. The assistant
// role is called "model" on the Gemini side.
func toGeminiContents(history []ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := geminiRoleUser
		if turn.Role == RoleAssistant {
			role = geminiRoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	return contents
}

// fromGeminiContent converts a Gemini content back to a turn.
func fromGeminiContent(c *genai.Content) ChatTurn {
	role := RoleUser
	if c.Role == geminiRoleModel {
		role = RoleAssistant
	}
	var sb strings.Builder
	for _, part := range c.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return ChatTurn{Role: role, Content: sb.String()}
}

func geminiResult(resp *genai.GenerateContentResponse) (*GenerateResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("empty response (check safety filters)")
	}

	result := &GenerateResult{Text: fromGeminiContent(resp.Candidates[0].Content).Content}
	if um := resp.UsageMetadata; um != nil {
		result.Usage = ChatUsage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return result, nil
}
