package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// Fallback replies used when generation fails.
const (
	ApologyEnglish = "I apologize, I was unable to process your query."
	ApologyHindi   = "मुझे क्षमा करें, मैं आपकी क्वेरी को संसाधित करने में असमर्थ था।"
)

// Apology returns the fallback reply for language.
func Apology(language string) string {
	if language == domain.LanguageHindi {
		return ApologyHindi
	}
	return ApologyEnglish
}

// ComposeInput is everything the composer sees for one turn.
type ComposeInput struct {
	Message   string
	Chart     *domain.Chart
	Documents []domain.RetrievedDocument
	History   []domain.Message
	Language  string
	Reasoning string
}

// Composer writes the assistant reply.
type Composer struct {
	generator TextGenerator
	now       func() time.Time
	logger    *slog.Logger
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithClock sets the clock used to find the running dasa.
func WithClock(now func() time.Time) ComposerOption {
	return func(c *Composer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewComposer creates a Composer backed by generator.
func NewComposer(generator TextGenerator, logger *slog.Logger, opts ...ComposerOption) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Composer{
		generator: generator,
		now:       time.Now,
		logger:    logger.With("component", "composer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose returns a non-empty reply in the requested language. Generation
// failures and empty outputs yield the fixed apology.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) string {
	language := in.Language
	if language != domain.LanguageHindi {
		language = domain.LanguageEnglish
	}

	system := composerSystemPrompt(ChartSummary(in.Chart, c.now()), in.Documents, in.Reasoning, language)

	turns := make([]domain.Message, 0, len(in.History)+1)
	turns = append(turns, in.History...)
	turns = append(turns, domain.Message{Role: domain.RoleUser, Content: in.Message, CreatedAt: c.now()})

	reply, err := c.generator.GenerateText(ctx, system, turns)
	if err != nil {
		c.logger.Error("Reply generation failed", "error", &domain.DependencyError{Op: "generate_text", Err: err})
		return Apology(language)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		c.logger.Warn("Reply generation returned empty text")
		return Apology(language)
	}
	return reply
}
