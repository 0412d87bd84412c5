// Package rag holds the per-turn retrieval core: the planner that decides
// whether and how to search the knowledge base, the retriever that runs
// the filtered search, and the composer that writes the reply.
package rag

import (
	"context"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// Extractor produces a JSON object matching a strict schema.
type Extractor interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
}

// TextGenerator produces free text for a system prompt and a conversation.
type TextGenerator interface {
	GenerateText(ctx context.Context, system string, history []domain.Message) (string, error)
}
