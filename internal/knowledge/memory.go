package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryIndex is an in-process Index and Writer. With an Embedder it ranks
// by cosine similarity; without one it ranks by shared query terms.
type MemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	docs     []memoryDoc
	byID     map[string]int
}

type memoryDoc struct {
	Document
	vector []float32
	terms  map[string]struct{}
}

// NewMemoryIndex creates an empty index. embedder may be nil.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder, byID: map[string]int{}}
}

// Len returns the number of stored documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Upsert stores docs, replacing any with the same id.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []Document) error {
	var vecs [][]float32
	if m.embedder != nil && len(docs) > 0 {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Content
		}
		var err error
		vecs, err = m.embedder.Embed(ctx, texts)
		if err != nil {
			return opErr("upsert", OperationErrorEmbedFailed, "embed documents failed", err)
		}
		if len(vecs) != len(docs) {
			return opErr("upsert", OperationErrorEmbedFailed,
				fmt.Sprintf("embedder returned %d vectors for %d documents", len(vecs), len(docs)), nil)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		md := memoryDoc{Document: d, terms: termSet(d.Content)}
		if vecs != nil {
			md.vector = vecs[i]
		}
		if idx, ok := m.byID[d.ID]; ok && d.ID != "" {
			m.docs[idx] = md
			continue
		}
		m.byID[d.ID] = len(m.docs)
		m.docs = append(m.docs, md)
	}
	return nil
}

// Reset removes every document.
func (m *MemoryIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	m.byID = map[string]int{}
	return nil
}

// Search returns up to topK documents matching cond, best first.
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int, cond Condition) (SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	var qvec []float32
	if m.embedder != nil {
		vecs, err := m.embedder.Embed(ctx, []string{query})
		if err != nil {
			return SearchResult{}, opErr("search", OperationErrorEmbedFailed, "embed query failed", err)
		}
		if len(vecs) == 1 {
			qvec = vecs[0]
		}
	}
	qterms := termSet(query)

	type scored struct {
		doc   *memoryDoc
		score float64
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []scored
	for i := range m.docs {
		d := &m.docs[i]
		if len(cond) > 0 {
			ok, err := cond.Match(d.Metadata)
			if err != nil {
				return SearchResult{}, opErr("search", OperationErrorUnsupportedFilter, "evaluate condition failed", err)
			}
			if !ok {
				continue
			}
		}
		var score float64
		if qvec != nil && d.vector != nil {
			score = cosine(qvec, d.vector)
		} else {
			score = overlap(qterms, d.terms)
		}
		hits = append(hits, scored{doc: d, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score == hits[j].score {
			return hits[i].doc.ID < hits[j].doc.ID
		}
		return hits[i].score > hits[j].score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := SearchResult{
		Documents: make([]string, len(hits)),
		Metadatas: make([]map[string]any, len(hits)),
	}
	for i, h := range hits {
		out.Documents[i] = h.doc.Content
		meta := make(map[string]any, len(h.doc.Metadata))
		for k, v := range h.doc.Metadata {
			meta[k] = v
		}
		out.Metadatas[i] = meta
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}

func overlap(q, d map[string]struct{}) float64 {
	if len(q) == 0 {
		return 0
	}
	n := 0
	for t := range q {
		if _, ok := d[t]; ok {
			n++
		}
	}
	return float64(n) / float64(len(q))
}
