package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/kundali-rag/internal/domain"
)

const decisionSchemaName = "retrieval_decision"

// Planner decides per turn whether the knowledge base should be searched,
// and with which query and filter. It never fails: every error collapses
// to a decision without retrieval.
type Planner struct {
	extractor Extractor
	schema    map[string]any
	logger    *slog.Logger
}

// NewPlanner creates a Planner backed by extractor.
func NewPlanner(extractor Extractor, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		extractor: extractor,
		schema:    DecisionSchema(),
		logger:    logger.With("component", "planner"),
	}
}

// DecisionSchema returns the strict JSON schema the extractor must follow.
func DecisionSchema() map[string]any {
	filterProps := make(map[string]any, len(domain.Categories))
	for _, cat := range domain.Categories {
		filterProps[cat] = map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "enum": domain.CategoryEnum(cat)},
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"needs_retrieval", "query", "filter", "reasoning"},
		"properties": map[string]any{
			"needs_retrieval": map[string]any{"type": "boolean"},
			"query":           map[string]any{"type": []string{"string", "null"}},
			"reasoning":       map[string]any{"type": []string{"string", "null"}},
			"filter": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "null"},
					map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             domain.Categories,
						"properties":           filterProps,
					},
				},
			},
		},
	}
}

type plannerOutput struct {
	NeedsRetrieval *bool                  `json:"needs_retrieval"`
	Query          *string                `json:"query"`
	Filter         *domain.MetadataFilter `json:"filter"`
	Reasoning      *string                `json:"reasoning"`
}

// Plan returns the retrieval decision for message. Without a chart it
// returns the no-retrieval default without calling the model.
func (p *Planner) Plan(ctx context.Context, message string, c *domain.Chart, priorResults []domain.RetrievedDocument, priorKeys []string) domain.RetrievalDecision {
	if c == nil {
		p.logger.Warn("No chart in session, skipping retrieval planning")
		return domain.NoRetrieval()
	}

	raw, err := p.extractor.GenerateJSON(ctx,
		plannerSystemPrompt(c, priorResults, priorKeys),
		plannerUserPrompt(message),
		decisionSchemaName,
		p.schema)
	if err != nil {
		p.logger.Error("Retrieval planning failed", "error", &domain.DependencyError{Op: "extract_structured", Err: err})
		return domain.NoRetrieval()
	}

	out, err := decodePlannerOutput(raw)
	if err != nil {
		p.logger.Error("Planner output violates schema", "error", &domain.DependencyError{Op: "extract_structured", Err: err})
		return domain.NoRetrieval()
	}

	decision := buildDecision(out, c)
	if decision.NeedsRetrieval {
		p.logger.Info("Retrieval planned",
			"needs_retrieval", decision.NeedsRetrieval,
			"query", decision.Query,
			"context_keys", decision.ContextKeys)
	} else {
		p.logger.Info("Retrieval not needed", "reasoning", decision.Reasoning)
	}
	return decision
}

func decodePlannerOutput(raw map[string]any) (plannerOutput, error) {
	var out plannerOutput
	data, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("re-encode output: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode output: %w", err)
	}
	if out.NeedsRetrieval == nil {
		return out, errors.New("needs_retrieval missing")
	}
	if out.Filter != nil {
		for _, cat := range domain.Categories {
			for _, v := range out.Filter.Values(cat) {
				if !domain.ValidCategoryValue(cat, v) {
					return out, fmt.Errorf("%s value %q not in enum", cat, v)
				}
			}
		}
	}
	return out, nil
}

func buildDecision(out plannerOutput, c *domain.Chart) domain.RetrievalDecision {
	decision := domain.RetrievalDecision{}
	if out.Reasoning != nil {
		decision.Reasoning = strings.TrimSpace(*out.Reasoning)
	}

	query := ""
	if out.Query != nil {
		query = strings.TrimSpace(*out.Query)
	}
	if !*out.NeedsRetrieval || query == "" {
		return decision
	}

	decision.NeedsRetrieval = true
	decision.Query = query

	filter := sanitizeFilter(out.Filter, c)
	if !filter.IsEmpty() {
		decision.Filter = filter
		decision.ContextKeys = filter.ContextKeys()
	}
	return decision
}

// sanitizeFilter keeps zodiac values only when they are one of the
// native's Sun, Moon or Ascendant signs.
func sanitizeFilter(f *domain.MetadataFilter, c *domain.Chart) *domain.MetadataFilter {
	if f == nil {
		return nil
	}
	native := make(map[string]struct{}, 3)
	for _, s := range c.NativeSigns() {
		if s != "" {
			native[s] = struct{}{}
		}
	}

	out := &domain.MetadataFilter{
		PlanetaryFactors: dedupe(f.PlanetaryFactors),
		LifeAreas:        dedupe(f.LifeAreas),
		Nakshatras:       dedupe(f.Nakshatras),
	}
	for _, z := range dedupe(f.Zodiacs) {
		if _, ok := native[z]; ok {
			out.Zodiacs = append(out.Zodiacs, z)
		}
	}
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
