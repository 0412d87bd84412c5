package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorBodyBytes = 1024

var pointIDNamespace = uuid.MustParse("6b1f7c52-3f0e-4a8e-9a43-1d6c1f0b7a21")

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	Timeout    time.Duration
}

// QdrantIndex searches a qdrant collection over its REST API.
type QdrantIndex struct {
	cfg      QdrantConfig
	baseURL  string
	embedder Embedder
	http     *http.Client
	logger   *slog.Logger
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewQdrantIndex creates an index. It does not contact the server; call
// Ready to verify the collection.
func NewQdrantIndex(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantIndex, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantIndex{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		embedder: embedder,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "qdrant", "collection", cfg.Collection),
	}, nil
}

// Search embeds query and returns the topK payloads matching cond.
func (q *QdrantIndex) Search(ctx context.Context, query string, topK int, cond Condition) (SearchResult, error) {
	const op = "search"
	if strings.TrimSpace(query) == "" {
		return SearchResult{}, opErr(op, OperationErrorValidation, "query required", nil)
	}
	if topK <= 0 {
		topK = 5
	}

	vecs, err := q.embedder.Embed(ctx, []string{query})
	if err != nil {
		return SearchResult{}, opErr(op, OperationErrorEmbedFailed, "embed query failed", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return SearchResult{}, opErr(op, OperationErrorEmbedFailed, "embedder returned no vector", nil)
	}

	req := map[string]any{
		"vector":       vecs[0],
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(cond) > 0 {
		filter, err := translateCondition(cond)
		if err != nil {
			return SearchResult{}, err
		}
		req["filter"] = filter.asMap()
	}

	var hits []qdrantHit
	if err := q.doJSON(ctx, op, http.MethodPost, q.collectionPath("/points/search"), req, &hits); err != nil {
		return SearchResult{}, err
	}

	out := SearchResult{
		Documents: make([]string, 0, len(hits)),
		Metadatas: make([]map[string]any, 0, len(hits)),
	}
	for _, h := range hits {
		content, _ := h.Payload[PayloadDocumentKey].(string)
		meta := make(map[string]any, len(h.Payload))
		for k, v := range h.Payload {
			if k == PayloadDocumentKey || k == PayloadIDKey {
				continue
			}
			meta[k] = v
		}
		out.Documents = append(out.Documents, content)
		out.Metadatas = append(out.Metadatas, meta)
	}
	return out, nil
}

// Upsert embeds and stores docs. Point ids are derived from Document.ID so
// re-ingesting the same corpus overwrites instead of duplicating.
func (q *QdrantIndex) Upsert(ctx context.Context, docs []Document) error {
	const op = "upsert"
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" {
			return opErr(op, OperationErrorValidation, "document id is required", nil)
		}
		texts[i] = d.Content
	}
	vecs, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		return opErr(op, OperationErrorEmbedFailed, "embed documents failed", err)
	}
	if len(vecs) != len(docs) {
		return opErr(op, OperationErrorEmbedFailed,
			fmt.Sprintf("embedder returned %d vectors for %d documents", len(vecs), len(docs)), nil)
	}

	points := make([]map[string]any, 0, len(docs))
	for i, d := range docs {
		if q.cfg.VectorDim > 0 && len(vecs[i]) != q.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("document %q dimension mismatch: expected=%d got=%d", d.ID, q.cfg.VectorDim, len(vecs[i])), nil)
		}
		payload := make(map[string]any, len(d.Metadata)+2)
		for k, v := range d.Metadata {
			payload[k] = v
		}
		payload[PayloadDocumentKey] = d.Content
		payload[PayloadIDKey] = d.ID
		points = append(points, map[string]any{
			"id":      PointID(d.ID),
			"vector":  vecs[i],
			"payload": payload,
		})
	}

	return q.doJSON(ctx, op, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Reset drops and recreates the collection.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	const op = "reset"
	if q.cfg.VectorDim <= 0 {
		return opErr(op, OperationErrorValidation, "vector dimension required to create collection", nil)
	}
	if err := q.doJSON(ctx, op, http.MethodDelete, q.collectionPath(""), nil, nil); err != nil {
		q.logger.Warn("Delete collection failed, creating anyway", "error", err)
	}
	req := map[string]any{
		"vectors": map[string]any{"size": q.cfg.VectorDim, "distance": "Cosine"},
	}
	if err := q.doJSON(ctx, op, http.MethodPut, q.collectionPath(""), req, nil); err != nil {
		return err
	}
	q.logger.Info("Collection recreated", "vector_dim", q.cfg.VectorDim)
	return nil
}

// Ready checks that the collection exists and has the expected vector size.
func (q *QdrantIndex) Ready(ctx context.Context) error {
	const op = "ready"
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := q.doJSON(ctx, op, http.MethodGet, q.collectionPath(""), nil, &result); err != nil {
		return err
	}
	size := result.Config.Params.Vectors.Size
	if size != 0 && q.cfg.VectorDim > 0 && size != q.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", q.cfg.Collection, q.cfg.VectorDim, size), nil)
	}
	return nil
}

// PointID maps a document id to a deterministic qdrant point id.
func PointID(docID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(docID)).String()
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return "/collections/" + q.cfg.Collection + suffix
}

func (q *QdrantIndex) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:    OperationErrorQueryFailed,
			Op:      op,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") || strings.EqualFold(s, "acknowledged") || strings.EqualFold(s, "completed") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
