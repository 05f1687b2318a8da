package main

import "context"

// GenerateRequest is one chat exchange sent to an AI backend.
type GenerateRequest struct {
	History         []ChatTurn
	Message         string
	Temperature     float32
	MaxOutputTokens int32
}

// GenerateResult is the backend's answer to a GenerateRequest.
type GenerateResult struct {
	Text  string
	Usage ChatUsage
}

// ChatBackend is a generative-AI service that continues a conversation.
type ChatBackend interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
