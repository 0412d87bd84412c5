package knowledge

import (
	"errors"
	"testing"
)

func TestConditionMatch(t *testing.T) {
	t.Parallel()

	meta := map[string]any{"zodiacs": "Leo", "content_type": "zodiac_traits"}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"in hit", In("zodiacs", []string{"Aries", "Leo"}), true},
		{"in miss", In("zodiacs", []string{"Aries"}), false},
		{"missing field", In("life_areas", []string{"love"}), false},
		{"or any", Or(In("life_areas", []string{"love"}), In("zodiacs", []string{"Leo"})), true},
		{"or none", Or(In("life_areas", []string{"love"}), In("nakshtra", []string{"Magha"})), false},
		{"and all", And(In("zodiacs", []string{"Leo"}), Condition{"content_type": "zodiac_traits"}), true},
		{"and one fails", And(In("zodiacs", []string{"Leo"}), Condition{"content_type": "general"}), false},
		{"eq", Condition{"zodiacs": map[string]any{"$eq": "Leo"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.cond.Match(meta)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionUnsupportedOperator(t *testing.T) {
	t.Parallel()

	_, err := Condition{"$not": map[string]any{}}.Match(map[string]any{})
	if err == nil {
		t.Fatal("Match() error = nil, want unsupported operator error")
	}
}

func TestTranslateSingleIn(t *testing.T) {
	t.Parallel()

	got, err := translateCondition(In("zodiacs", []string{"Leo", "Aries"}))
	if err != nil {
		t.Fatalf("translateCondition() error = %v", err)
	}
	if len(got.Must) != 1 || len(got.Should) != 0 {
		t.Fatalf("filter = %+v, want one must condition", got)
	}
	cond := got.Must[0].(map[string]any)
	match := cond["match"].(map[string]any)
	anyVals, ok := match["any"].([]any)
	if cond["key"] != "zodiacs" || !ok || len(anyVals) != 2 {
		t.Fatalf("condition = %v", cond)
	}
}

func TestTranslateOrBecomesShould(t *testing.T) {
	t.Parallel()

	got, err := translateCondition(Or(
		In("zodiacs", []string{"Capricorn"}),
		In("planetary_factors", []string{"Saturn"}),
	))
	if err != nil {
		t.Fatalf("translateCondition() error = %v", err)
	}
	if len(got.Must) != 0 || len(got.Should) != 2 {
		t.Fatalf("filter = %+v, want two should clauses", got.asMap())
	}
}

func TestTranslateOrWithSiblingStaysNested(t *testing.T) {
	t.Parallel()

	cond := Or(In("zodiacs", []string{"Leo"}), In("life_areas", []string{"love"}))
	cond["content_type"] = "general"

	got, err := translateCondition(cond)
	if err != nil {
		t.Fatalf("translateCondition() error = %v", err)
	}
	if len(got.Must) != 2 || len(got.Should) != 0 {
		t.Fatalf("filter = %+v, want nested should inside must", got.asMap())
	}
}

func TestTranslateRejectsEmptyIn(t *testing.T) {
	t.Parallel()

	_, err := translateCondition(In("zodiacs", nil))
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("error = %v, want validation OperationError", err)
	}
}
