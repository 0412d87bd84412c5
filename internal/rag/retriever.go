package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/knowledge"
)

// DefaultTopK is the number of documents fetched per turn.
const DefaultTopK = 5

// Retriever runs filtered semantic searches against the knowledge index.
type Retriever struct {
	index  knowledge.Index
	topK   int
	logger *slog.Logger
}

// NewRetriever creates a Retriever over index.
func NewRetriever(index knowledge.Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:  index,
		topK:   DefaultTopK,
		logger: logger.With("component", "retriever"),
	}
}

// BuildCondition turns a filter into an index condition. Each indexed
// document carries a single category, so categories are alternatives.
func BuildCondition(f *domain.MetadataFilter) knowledge.Condition {
	var conds []knowledge.Condition
	for _, cat := range domain.Categories {
		if values := f.Values(cat); len(values) > 0 {
			conds = append(conds, knowledge.In(cat, values))
		}
	}
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return knowledge.Or(conds...)
	}
}

// Retrieve returns up to DefaultTopK documents and the sorted, distinct
// context keys found in their metadata. Index failures yield empty results.
func (r *Retriever) Retrieve(ctx context.Context, query string, f *domain.MetadataFilter) ([]domain.RetrievedDocument, []string) {
	docs := []domain.RetrievedDocument{}
	keys := []string{}

	query = strings.TrimSpace(query)
	if query == "" || r.index == nil {
		return docs, keys
	}

	cond := BuildCondition(f)
	res, err := r.index.Search(ctx, query, r.topK, cond)
	if err != nil {
		r.logger.Warn("Knowledge search failed, continuing without context",
			"error", &domain.DependencyError{Op: "semantic_search", Err: err},
			"query", query)
		return docs, keys
	}

	seen := make(map[string]struct{})
	for i, content := range res.Documents {
		if i == r.topK {
			break
		}
		meta := map[string]any{}
		if i < len(res.Metadatas) && res.Metadatas[i] != nil {
			meta = res.Metadatas[i]
		}
		docs = append(docs, domain.RetrievedDocument{Content: content, Metadata: meta})

		for _, cat := range domain.Categories {
			for _, v := range metadataValues(meta[cat]) {
				seen[domain.ContextKey(cat, v)] = struct{}{}
			}
		}
	}

	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.logger.Info("Retrieved documents", "count", len(docs), "context_keys", keys)
	return docs, keys
}

func metadataValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, metadataValues(e)...)
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
