package main

import (
	"context"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VectorRetriever ranks knowledge documents by embedding similarity using an
// in-process chromem-go collection.
type VectorRetriever struct {
	db         *chromem.DB
	collection *chromem.Collection
	embFunc    chromem.EmbeddingFunc
	mu         sync.RWMutex
	docs       map[string]KnowledgeDocument
}

// NewVectorRetriever creates an empty in-memory collection using embFunc.
func NewVectorRetriever(embFunc chromem.EmbeddingFunc) (*VectorRetriever, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(KnowledgeCollectionName, nil, embFunc)
	if err != nil {
		return nil, errors.Wrap(err, "create knowledge collection")
	}

	return &VectorRetriever{
		db:         db,
		collection: collection,
		embFunc:    embFunc,
		docs:       make(map[string]KnowledgeDocument),
	}, nil
}

// Index embeds and stores docs, replacing anything indexed before.
func (vr *VectorRetriever) Index(ctx context.Context, docs []KnowledgeDocument) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()

	if vr.collection.Count() > 0 {
		if err := vr.db.DeleteCollection(KnowledgeCollectionName); err != nil {
			return errors.Wrap(err, "delete knowledge collection")
		}
		col, err := vr.db.GetOrCreateCollection(KnowledgeCollectionName, nil, vr.embFunc)
		if err != nil {
			return errors.Wrap(err, "recreate knowledge collection")
		}
		vr.collection = col
	}

	documents := make([]chromem.Document, 0, len(docs))
	byID := make(map[string]KnowledgeDocument, len(docs))
	for _, doc := range docs {
		documents = append(documents, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Title + "\n" + doc.Content,
			Metadata: map[string]string{"title": doc.Title},
		})
		byID[doc.ID] = doc
	}
	if len(documents) > 0 {
		if err := vr.collection.AddDocuments(ctx, documents, 4); err != nil {
			return errors.Wrap(err, "embed knowledge documents")
		}
	}

	vr.docs = byID
	log.Debug().Int("documents", len(documents)).Msg("indexed knowledge into vector collection")
	return nil
}

// Retrieve returns up to k documents most similar to query.
func (vr *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]KnowledgeDocument, error) {
	vr.mu.RLock()
	defer vr.mu.RUnlock()

	count := vr.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if count < k {
		k = count
	}

	results, err := vr.collection.Query(ctx, QueryTaskPrefix+query, k, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "query knowledge collection")
	}

	out := make([]KnowledgeDocument, 0, len(results))
	for _, res := range results {
		if doc, ok := vr.docs[res.ID]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}
