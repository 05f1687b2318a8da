package main

import (
	"context"
	"math"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// makeGeminiEmbedder creates an embedding function using Gemini's embedding API.
// Texts starting with QueryTaskPrefix are embedded as retrieval queries,
// everything else as documents.
func makeGeminiEmbedder(client *genai.Client, modelName string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		taskType := TaskTypeDocument
		if strings.HasPrefix(text, QueryTaskPrefix) {
			taskType = TaskTypeQuery
			text = strings.TrimPrefix(text, QueryTaskPrefix)
		}

		contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
		dim := int32(EmbeddingDimension)
		res, err := client.Models.EmbedContent(ctx, modelName, contents, &genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, errors.Wrap(err, "embed content")
		}
		if len(res.Embeddings) == 0 {
			return nil, errors.New("no embeddings returned")
		}
		values := res.Embeddings[0].Values
		normalize(values)
		return values, nil
	}
}

// normalize performs L2 normalization on a vector of float32 values.
// chromem-go's cosine similarity assumes unit vectors.
func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] /= magnitude
	}
}
