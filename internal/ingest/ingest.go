// Package ingest loads the astrology corpus from disk into a knowledge index.
//
// JSON files hold objects of objects; every inner key/value pair becomes one
// document. TXT files hold one statement per line. The file stem decides the
// metadata category each document is tagged with.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/knowledge"
)

// DefaultBatchSize is the number of documents embedded per upsert.
const DefaultBatchSize = 64

// ContentTypeKey is the metadata key naming the source collection.
const ContentTypeKey = "content_type"

const contentTypeGeneral = "general"

type stemRule struct {
	category string
	// fixed is the category value; empty means the JSON main key.
	fixed string
}

var stemRules = map[string]stemRule{
	"zodiac_traits":      {category: domain.CategoryZodiacs},
	"planetary_impact":   {category: domain.CategoryPlanetaryFactors},
	"nakshtras":          {category: domain.CategoryNakshatra},
	"love_guidance":      {category: domain.CategoryLifeAreas, fixed: "love"},
	"spiritual_guidance": {category: domain.CategoryLifeAreas, fixed: "spirituality"},
	"carrer_guidance":    {category: domain.CategoryLifeAreas, fixed: "career"},
	"career_guidance":    {category: domain.CategoryLifeAreas, fixed: "career"},
}

// Metadata returns the metadata for a document from file stem with the
// given JSON main key (empty for text files).
func Metadata(stem, mainKey string) map[string]any {
	rule, ok := stemRules[stem]
	if !ok {
		return map[string]any{ContentTypeKey: contentTypeGeneral}
	}
	meta := map[string]any{ContentTypeKey: stem}
	value := rule.fixed
	if value == "" {
		value = canonical(rule.category, strings.TrimSpace(mainKey))
	}
	if value != "" {
		meta[rule.category] = value
	}
	return meta
}

// canonical maps v onto the enum spelling of category when it matches
// case-insensitively.
func canonical(category, v string) string {
	for _, e := range domain.CategoryEnum(category) {
		if strings.EqualFold(e, v) {
			return e
		}
	}
	return v
}

// DocumentID builds a stable id from its parts.
func DocumentID(parts ...string) string {
	id := strings.Join(parts, "_")
	return strings.ToLower(strings.ReplaceAll(id, " ", "_"))
}

// LoadDirectory reads every *.json and *.txt file directly under dir.
func LoadDirectory(dir string) ([]knowledge.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	var docs []knowledge.Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".txt" {
			continue
		}
		fileDocs, err := LoadFile(filepath.Join(dir, e.Name()), nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// LoadFile reads a single JSON or TXT file. extra metadata is merged over
// the stem-derived metadata.
func LoadFile(path string, extra map[string]any) ([]knowledge.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var docs []knowledge.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		docs, err = parseJSON(stem, data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".txt":
		docs = parseText(stem, string(data))
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	for _, d := range docs {
		for k, v := range extra {
			d.Metadata[k] = v
		}
	}
	return docs, nil
}

func parseJSON(stem string, data []byte) ([]knowledge.Document, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var docs []knowledge.Document
	for _, mainKey := range sortedKeys(root) {
		inner, ok := root[mainKey].(map[string]any)
		if !ok {
			continue
		}
		for i, subKey := range sortedKeys(inner) {
			docs = append(docs, knowledge.Document{
				ID:       DocumentID(stem, mainKey, subKey, fmt.Sprint(i)),
				Content:  subKey + ": " + valueString(inner[subKey]),
				Metadata: Metadata(stem, mainKey),
			})
		}
	}
	return docs, nil
}

func parseText(stem, content string) []knowledge.Document {
	var docs []knowledge.Document
	n := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		n++
		docs = append(docs, knowledge.Document{
			ID:       DocumentID(stem, "sentence", fmt.Sprint(n)),
			Content:  line,
			Metadata: Metadata(stem, ""),
		})
	}
	return docs
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = valueString(item)
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ingest writes docs to w in batches, optionally recreating the index
// first. It returns the number of documents written.
func Ingest(ctx context.Context, w knowledge.Writer, docs []knowledge.Document, batchSize int, recreate bool, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if recreate {
		if err := w.Reset(ctx); err != nil {
			return 0, fmt.Errorf("reset index: %w", err)
		}
	}

	written := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		if err := w.Upsert(ctx, docs[start:end]); err != nil {
			return written, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		written = end
		logger.Info("Ingested batch", "from", start, "to", end, "total", len(docs))
	}
	return written, nil
}
