package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorpus = `owner: Jane Doe
summary: Backend engineer based in Berlin.
documents:
  - id: skills
    title: Skills
    tags: [skills, languages]
    content: Go, Rust and PostgreSQL.
  - title: Projects
    tags: [projects]
    content: A distributed key value store and a chat assistant.
  - id: contact
    title: Contact
    tags: [contact, email]
    content: Use the contact form.
`

func writeCorpus(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestParseKnowledgeCorpus(t *testing.T) {
	corpus, err := ParseKnowledgeCorpus([]byte(testCorpus))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", corpus.Owner)
	require.Len(t, corpus.Documents, 3)
	assert.Equal(t, "doc-2", corpus.Documents[1].ID)

	_, err = ParseKnowledgeCorpus([]byte("documents:\n  - id: a\n  - id: a\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = ParseKnowledgeCorpus([]byte("documents: [unterminated"))
	require.Error(t, err)
}

func TestDefaultCorpusLoads(t *testing.T) {
	kb := NewKnowledgeBase(KnowledgeOptions{})
	require.NoError(t, kb.Load(context.Background()))
	require.NotNil(t, kb.Corpus())
	assert.NotEmpty(t, kb.Corpus().Documents)
}

func TestKeywordRetrieverRanksByOverlap(t *testing.T) {
	corpus, err := ParseKnowledgeCorpus([]byte(testCorpus))
	require.NoError(t, err)

	r := NewKeywordRetriever()
	ctx := context.Background()
	require.NoError(t, r.Index(ctx, corpus.Documents))

	docs, err := r.Retrieve(ctx, "Which languages and skills does she have?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "skills", docs[0].ID)

	docs, err = r.Retrieve(ctx, "How can I send an email?", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "contact", docs[0].ID)

	docs, err = r.Retrieve(ctx, "the and for", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestKeywordRetrieverRespectsK(t *testing.T) {
	corpus, err := ParseKnowledgeCorpus([]byte(testCorpus))
	require.NoError(t, err)

	r := NewKeywordRetriever()
	require.NoError(t, r.Index(context.Background(), corpus.Documents))

	docs, err := r.Retrieve(context.Background(), "skills projects contact", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestBuildContext(t *testing.T) {
	kb := NewKnowledgeBase(KnowledgeOptions{Path: writeCorpus(t, testCorpus)})
	ctx := context.Background()
	require.NoError(t, kb.Load(ctx))

	text := kb.BuildContext(ctx, "What projects has she built?")
	assert.Contains(t, text, "Jane Doe's portfolio website")
	assert.Contains(t, text, "About Jane Doe:\nBackend engineer based in Berlin.")
	assert.Contains(t, text, "### Projects\nA distributed key value store")
	assert.NotContains(t, text, "### Contact")
}

func TestBuildContextIsBounded(t *testing.T) {
	kb := NewKnowledgeBase(KnowledgeOptions{Path: writeCorpus(t, testCorpus), MaxChars: 40})
	ctx := context.Background()
	require.NoError(t, kb.Load(ctx))

	text := kb.BuildContext(ctx, "projects")
	assert.Equal(t, 40, len([]rune(text)))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "héllo", truncateRunes("héllo", 0))
}

func TestKnowledgeLoadsOnce(t *testing.T) {
	path := writeCorpus(t, testCorpus)
	kb := NewKnowledgeBase(KnowledgeOptions{Path: path})
	ctx := context.Background()

	require.NoError(t, kb.Load(ctx))
	require.NoError(t, os.Remove(path))
	require.NoError(t, kb.Load(ctx))
	assert.Len(t, kb.Corpus().Documents, 3)
}

func TestKnowledgeLoadFailureStillBuildsContext(t *testing.T) {
	kb := NewKnowledgeBase(KnowledgeOptions{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	ctx := context.Background()

	err := kb.Load(ctx)
	require.Error(t, err)
	assert.Equal(t, err, kb.Load(ctx), "the first result is remembered")
	assert.Nil(t, kb.Corpus())

	text := kb.BuildContext(ctx, "anything")
	assert.Contains(t, text, "portfolio website")
	assert.NotContains(t, text, "Relevant information")
}

// failingRetriever indexes fine but fails every query.
type failingRetriever struct{}

func (failingRetriever) Index(context.Context, []KnowledgeDocument) error { return nil }

func (failingRetriever) Retrieve(context.Context, string, int) ([]KnowledgeDocument, error) {
	return nil, errors.New("vector store down")
}

func TestBuildContextFallsBackToKeywords(t *testing.T) {
	kb := NewKnowledgeBase(KnowledgeOptions{Path: writeCorpus(t, testCorpus), Retriever: failingRetriever{}})
	ctx := context.Background()
	require.NoError(t, kb.Load(ctx))

	text := kb.BuildContext(ctx, "skills")
	assert.Contains(t, text, "### Skills")
}

// unindexableRetriever fails to build its index, like an embedding API that
// is rate limiting.
type unindexableRetriever struct{ retrieves int }

func (*unindexableRetriever) Index(context.Context, []KnowledgeDocument) error {
	return errors.New("429 rate limited")
}

func (r *unindexableRetriever) Retrieve(context.Context, string, int) ([]KnowledgeDocument, error) {
	r.retrieves++
	return nil, errors.New("not indexed")
}

func TestLoadKeepsCorpusWhenIndexFails(t *testing.T) {
	retriever := &unindexableRetriever{}
	kb := NewKnowledgeBase(KnowledgeOptions{Path: writeCorpus(t, testCorpus), Retriever: retriever})
	ctx := context.Background()

	require.NoError(t, kb.Load(ctx))
	require.NotNil(t, kb.Corpus())

	text := kb.BuildContext(ctx, "skills")
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "### Skills")
	assert.Zero(t, retriever.retrieves, "queries go straight to keyword match")
}

// keywordEmbedder maps text onto one axis per topic so similarity is predictable.
func keywordEmbedder(_ context.Context, text string) ([]float32, error) {
	topics := []string{"skills", "projects", "contact"}
	text = strings.ToLower(strings.TrimPrefix(text, QueryTaskPrefix))

	v := make([]float32, len(topics))
	for i, topic := range topics {
		v[i] = 0.01
		if strings.Contains(text, topic) {
			v[i] += 1
		}
	}
	normalize(v)
	return v, nil
}

func TestVectorRetriever(t *testing.T) {
	corpus, err := ParseKnowledgeCorpus([]byte(testCorpus))
	require.NoError(t, err)

	vr, err := NewVectorRetriever(keywordEmbedder)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, vr.Index(ctx, corpus.Documents))

	docs, err := vr.Retrieve(ctx, "show me the projects", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0].ID)

	docs, err = vr.Retrieve(ctx, "contact", 10)
	require.NoError(t, err)
	require.Len(t, docs, 3, "k is clamped to the collection size")
	assert.Equal(t, "contact", docs[0].ID)

	// Re-indexing replaces the previous documents.
	require.NoError(t, vr.Index(ctx, corpus.Documents[:1]))
	docs, err = vr.Retrieve(ctx, "contact", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "skills", docs[0].ID)
}

func TestKnowledgeBaseWithVectorRetriever(t *testing.T) {
	vr, err := NewVectorRetriever(keywordEmbedder)
	require.NoError(t, err)

	kb := NewKnowledgeBase(KnowledgeOptions{Path: writeCorpus(t, testCorpus), Retriever: vr, TopK: 1})
	ctx := context.Background()
	require.NoError(t, kb.Load(ctx))

	text := kb.BuildContext(ctx, "what about contact details")
	assert.Contains(t, text, "### Contact")
	assert.NotContains(t, text, "### Skills")
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
