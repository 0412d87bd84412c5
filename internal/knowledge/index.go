// Package knowledge provides filtered semantic search over the astrology
// knowledge base.
package knowledge

import (
	"context"
)

// Payload keys.
const (
	// PayloadDocumentKey holds the document text.
	PayloadDocumentKey = "document"
	// PayloadIDKey holds the caller's document id.
	PayloadIDKey = "doc_id"
)

// SearchResult holds parallel lists of matched contents and metadata.
// Metadatas may be shorter than Documents.
type SearchResult struct {
	Documents []string
	Metadatas []map[string]any
}

// Document is a single indexable chunk.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Index runs a semantic search restricted by cond. A nil cond matches all.
type Index interface {
	Search(ctx context.Context, query string, topK int, cond Condition) (SearchResult, error)
}

// Writer loads documents into an index.
type Writer interface {
	Upsert(ctx context.Context, docs []Document) error
	Reset(ctx context.Context) error
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
