package domain

// MetadataFilter narrows retrieval. Categories are combined by the
// retriever; values within a category are alternatives.
type MetadataFilter struct {
	Zodiacs          []string `json:"zodiacs,omitempty"`
	PlanetaryFactors []string `json:"planetary_factors,omitempty"`
	LifeAreas        []string `json:"life_areas,omitempty"`
	Nakshatras       []string `json:"nakshtra,omitempty"`
}

// Values returns the values set for a category.
func (f *MetadataFilter) Values(category string) []string {
	if f == nil {
		return nil
	}
	switch category {
	case CategoryZodiacs:
		return f.Zodiacs
	case CategoryPlanetaryFactors:
		return f.PlanetaryFactors
	case CategoryLifeAreas:
		return f.LifeAreas
	case CategoryNakshatra:
		return f.Nakshatras
	default:
		return nil
	}
}

// IsEmpty reports whether no category carries a value.
func (f *MetadataFilter) IsEmpty() bool {
	if f == nil {
		return true
	}
	for _, c := range Categories {
		if len(f.Values(c)) > 0 {
			return false
		}
	}
	return true
}

// ContextKeys returns "category:value" labels for every value in the filter.
func (f *MetadataFilter) ContextKeys() []string {
	var keys []string
	for _, c := range Categories {
		for _, v := range f.Values(c) {
			keys = append(keys, ContextKey(c, v))
		}
	}
	return keys
}

// ContextKey formats a normalized context key.
func ContextKey(category, value string) string {
	return category + ":" + value
}

// RetrievalDecision is the planner output for one turn.
// Query and Filter are only set when NeedsRetrieval is true.
type RetrievalDecision struct {
	NeedsRetrieval bool            `json:"needs_retrieval"`
	Query          string          `json:"query,omitempty"`
	Filter         *MetadataFilter `json:"filter,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty"`
	ContextKeys    []string        `json:"context_keys,omitempty"`
}

// NoRetrieval is the safe default decision.
func NoRetrieval() RetrievalDecision {
	return RetrievalDecision{NeedsRetrieval: false}
}

// RetrievedDocument is one knowledge-base hit.
type RetrievedDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}
