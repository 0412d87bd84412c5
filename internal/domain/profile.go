// Package domain contains core domain types for the kundali chat service.
package domain

import (
	"strings"
)

// Supported reply languages.
const (
	LanguageEnglish = "en"
	LanguageHindi   = "hi"
)

// UserProfile carries the birth data needed to compute a chart and the
// language the native wants answers in.
type UserProfile struct {
	Name              string `json:"name" validate:"required"`
	BirthDate         string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthTime         string `json:"birth_time" validate:"required,datetime=15:04"`
	BirthPlace        string `json:"birth_place" validate:"required"`
	PreferredLanguage string `json:"preferred_language" validate:"omitempty,oneof=en hi"`
}

// Language returns the normalized reply language, defaulting to English.
func (p *UserProfile) Language() string {
	if p == nil {
		return LanguageEnglish
	}
	if strings.EqualFold(strings.TrimSpace(p.PreferredLanguage), LanguageHindi) {
		return LanguageHindi
	}
	return LanguageEnglish
}

// LanguageName returns the human readable name of the reply language.
func LanguageName(code string) string {
	if code == LanguageHindi {
		return "Hindi"
	}
	return "English"
}
