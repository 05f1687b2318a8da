package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed knowledge/default.yaml
var defaultKnowledge []byte

// KnowledgeDocument is one section of the knowledge corpus.
type KnowledgeDocument struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Tags    []string `yaml:"tags" json:"tags,omitempty"`
	Content string   `yaml:"content" json:"content"`
}

// KnowledgeCorpus is the static background the assistant answers from.
type KnowledgeCorpus struct {
	Owner     string              `yaml:"owner" json:"owner"`
	Summary   string              `yaml:"summary" json:"summary"`
	Documents []KnowledgeDocument `yaml:"documents" json:"documents"`
}

// ParseKnowledgeCorpus decodes a YAML corpus and checks document ids.
func ParseKnowledgeCorpus(data []byte) (*KnowledgeCorpus, error) {
	var corpus KnowledgeCorpus
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, errors.Wrap(err, "parse knowledge corpus")
	}

	seen := make(map[string]bool, len(corpus.Documents))
	for i, doc := range corpus.Documents {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			id = fmt.Sprintf("doc-%d", i+1)
			corpus.Documents[i].ID = id
		}
		if seen[id] {
			return nil, errors.Errorf("duplicate knowledge document id %q", id)
		}
		seen[id] = true
	}
	return &corpus, nil
}

// Retriever selects the documents most relevant to a query.
type Retriever interface {
	Index(ctx context.Context, docs []KnowledgeDocument) error
	Retrieve(ctx context.Context, query string, k int) ([]KnowledgeDocument, error)
}

// ContextProvider is what the chat orchestrator needs from the knowledge layer.
type ContextProvider interface {
	Load(ctx context.Context) error
	BuildContext(ctx context.Context, message string) string
}

// KnowledgeOptions configures a KnowledgeBase.
type KnowledgeOptions struct {
	// Path of a YAML corpus. Empty uses the embedded default corpus.
	Path string
	// Retriever used for document selection. Nil uses keyword matching.
	Retriever Retriever
	TopK      int
	MaxChars  int
}

// KnowledgeBase loads the corpus exactly once and derives per-message context.
type KnowledgeBase struct {
	read      func() ([]byte, error)
	retriever Retriever
	fallback  *KeywordRetriever
	topK      int
	maxChars  int

	once    sync.Once
	corpus  *KnowledgeCorpus
	loadErr error
}

// NewKnowledgeBase creates a knowledge base. Nothing is read until Load.
func NewKnowledgeBase(opts KnowledgeOptions) *KnowledgeBase {
	if opts.TopK <= 0 {
		opts.TopK = DefaultContextDocuments
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxContextChars
	}

	read := func() ([]byte, error) { return defaultKnowledge, nil }
	if path := opts.Path; path != "" {
		read = func() ([]byte, error) { return os.ReadFile(path) }
	}

	fallback := NewKeywordRetriever()
	retriever := opts.Retriever
	if retriever == nil {
		retriever = fallback
	}

	return &KnowledgeBase{
		read:      read,
		retriever: retriever,
		fallback:  fallback,
		topK:      opts.TopK,
		maxChars:  opts.MaxChars,
	}
}

// Load reads and indexes the corpus. Only the first call does any work; later
// calls return the same result.
func (kb *KnowledgeBase) Load(ctx context.Context) error {
	kb.once.Do(func() {
		kb.loadErr = kb.load(ctx)
		if kb.loadErr != nil {
			log.Error().Err(kb.loadErr).Msg("knowledge corpus unavailable, answering without it")
		}
	})
	return kb.loadErr
}

func (kb *KnowledgeBase) load(ctx context.Context) error {
	data, err := kb.read()
	if err != nil {
		return errors.Wrap(err, "read knowledge corpus")
	}
	corpus, err := ParseKnowledgeCorpus(data)
	if err != nil {
		return err
	}

	if err := kb.fallback.Index(ctx, corpus.Documents); err != nil {
		return err
	}
	if kb.retriever != Retriever(kb.fallback) {
		if err := kb.retriever.Index(ctx, corpus.Documents); err != nil {
			log.Warn().Err(err).Msg("knowledge index failed, falling back to keyword match")
			kb.retriever = kb.fallback
		}
	}

	kb.corpus = corpus
	log.Info().Int("documents", len(corpus.Documents)).Msg("knowledge corpus loaded")
	return nil
}

// Corpus returns the loaded corpus, or nil before a successful Load.
func (kb *KnowledgeBase) Corpus() *KnowledgeCorpus {
	return kb.corpus
}

// Document looks up one corpus document by id.
func (kb *KnowledgeBase) Document(id string) (KnowledgeDocument, error) {
	if kb.corpus == nil {
		return KnowledgeDocument{}, ErrKnowledgeUnavailable
	}
	for _, doc := range kb.corpus.Documents {
		if doc.ID == id {
			return doc, nil
		}
	}
	return KnowledgeDocument{}, errors.Wrapf(ErrDocumentNotFound, "document %q", id)
}

// BuildContext renders the background text for message, bounded by MaxChars.
func (kb *KnowledgeBase) BuildContext(ctx context.Context, message string) string {
	owner := "the site owner"
	var summary string
	var docs []KnowledgeDocument

	if kb.corpus != nil {
		if o := strings.TrimSpace(kb.corpus.Owner); o != "" {
			owner = o
		}
		summary = strings.TrimSpace(kb.corpus.Summary)

		var err error
		docs, err = kb.retriever.Retrieve(ctx, message, kb.topK)
		if err != nil {
			log.Warn().Err(err).Msg("knowledge retrieval failed, using keyword match")
			docs, _ = kb.fallback.Retrieve(ctx, message, kb.topK)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a friendly assistant on %s's portfolio website. ", owner)
	fmt.Fprintf(&sb, "Answer questions about %s's background, skills and projects using only the information below. ", owner)
	sb.WriteString("If the answer is not there, say so politely and suggest the contact form. Keep answers short.")
	if summary != "" {
		fmt.Fprintf(&sb, "\n\nAbout %s:\n%s", owner, summary)
	}
	if len(docs) > 0 {
		sb.WriteString("\n\nRelevant information:")
		for _, doc := range docs {
			fmt.Fprintf(&sb, "\n### %s\n%s", doc.Title, strings.TrimSpace(doc.Content))
		}
	}

	return truncateRunes(sb.String(), kb.maxChars)
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// KeywordRetriever ranks documents by word overlap with the query.
type KeywordRetriever struct {
	mu   sync.RWMutex
	docs []indexedDocument
}

type indexedDocument struct {
	doc     KnowledgeDocument
	title   map[string]bool
	tags    map[string]bool
	content map[string]bool
}

func NewKeywordRetriever() *KeywordRetriever {
	return &KeywordRetriever{}
}

func (r *KeywordRetriever) Index(_ context.Context, docs []KnowledgeDocument) error {
	indexed := make([]indexedDocument, 0, len(docs))
	for _, doc := range docs {
		indexed = append(indexed, indexedDocument{
			doc:     doc,
			title:   tokenSet(doc.Title),
			tags:    tokenSet(strings.Join(doc.Tags, " ")),
			content: tokenSet(doc.Content),
		})
	}

	r.mu.Lock()
	r.docs = indexed
	r.mu.Unlock()
	return nil
}

func (r *KeywordRetriever) Retrieve(_ context.Context, query string, k int) ([]KnowledgeDocument, error) {
	terms := tokenSet(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		doc   KnowledgeDocument
		score int
	}

	r.mu.RLock()
	var hits []scored
	for _, d := range r.docs {
		score := 0
		for term := range terms {
			if d.title[term] {
				score += 3
			}
			if d.tags[term] {
				score += 2
			}
			if d.content[term] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: d.doc, score: score})
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]KnowledgeDocument, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out, nil
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "you": true, "your": true,
	"what": true, "who": true, "how": true, "does": true, "did": true, "has": true,
	"have": true, "with": true, "about": true, "can": true, "tell": true, "this": true,
	"that": true, "his": true, "her": true, "their": true, "any": true, "was": true,
}

// tokenSet lowercases s and returns its distinct words of three or more
// characters, minus common stop words.
func tokenSet(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}
