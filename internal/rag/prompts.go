package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

const (
	previewRunes   = 200
	previewResults = 3
	maxAspects     = 5
)

const plannerPolicy = `You are an expert in Vedic astrology deciding whether a question needs a knowledge-base lookup.

Decide:
1. needs_retrieval. Set it to false when the question can be answered from general astrological knowledge or from the previous context listed below. Set it to true when specific information about the native's signs, planets, nakshatras or life areas has to be fetched. In a grey area, retrieve.
2. filter (only when retrieving):
   - zodiacs: ONLY the native's Sun sign, Moon sign or Ascendant. Never a sign taken from a planetary position. Sun sign for personality and identity, Moon sign for emotions, Ascendant for general life.
   - planetary_factors: planets relevant to the question.
   - life_areas: love, spirituality or career when the question is about that area.
   - nakshtra: the Sun or Moon nakshatra when the question is about nakshatras.
3. query (only when retrieving): five or six keywords for semantic search, e.g. "Capricorn sun sign personality traits career".
4. reasoning: up to 40 words with hints that help answer the question.

The knowledge base covers personality traits, career, love and spirituality guidance per zodiac sign, planetary influences and nakshatra traits.

If the question is unsafe, explicit, harmful or unrelated to astrology, set needs_retrieval to false and query to null.`

const composerPolicy = `You are an experienced Vedic astrologer giving warm, grounded guidance based on the native's kundali.

Guidelines:
- Answer in 30 to 50 words. Be direct, optimistic and practical.
- Refer to concrete placements (planets, signs, houses, nakshatras, the running dasa) when they help.
- Explain in plain language and avoid jargon.
- For questions about the present ("today", "this month", "right now") use the running dasa and bhukti together with the birth chart.
- For relationship questions look at Venus, Mars, Jupiter, the 7th house and the Moon sign. For career questions look at the Sun, Mercury, Saturn and the 10th house.
- Stay within astrology. Give no medical, legal or financial advice.
- If the request is unsafe, explicit or unrelated to astrology, politely say you can only help with astrological guidance about their kundali.`

func plannerSystemPrompt(c *domain.Chart, priorResults []domain.RetrievedDocument, priorKeys []string) string {
	var b strings.Builder
	b.WriteString(plannerPolicy)
	b.WriteString("\n\nAvailable Zodiac Signs: ")
	b.WriteString(strings.Join(domain.ZodiacSigns, ", "))
	b.WriteString("\nAvailable Planetary Factors: ")
	b.WriteString(strings.Join(domain.PlanetaryFactors, ", "))
	b.WriteString("\nAvailable Life Areas: ")
	b.WriteString(strings.Join(domain.LifeAreas, ", "))
	b.WriteString("\nAvailable Nakshatras: ")
	b.WriteString(strings.Join(domain.Nakshatras, ", "))
	b.WriteString("\n\nUser's Kundali:\n")
	b.WriteString(plannerChartSummary(c))

	if len(priorResults) > 0 {
		b.WriteString("\nPrevious Context Available:\n")
		for i, r := range priorResults {
			if i == previewResults {
				break
			}
			fmt.Fprintf(&b, "%d. %s...\n", i+1, truncateRunes(r.Content, previewRunes))
		}
		b.WriteString("If the question can be answered from the previous context above, set needs_retrieval to false.\n")
	}
	if len(priorKeys) > 0 {
		fmt.Fprintf(&b, "Previous Context Keys Used: %s\n", strings.Join(priorKeys, ", "))
	}
	return b.String()
}

func plannerChartSummary(c *domain.Chart) string {
	kp := c.KeyPositions
	planets := make([]string, 0, len(c.Planets))
	for _, p := range c.Planets {
		planets = append(planets, fmt.Sprintf("%s: %s", p.Object, orUnknown(p.Rasi)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Sun Sign: %s\n", orUnknown(kp.Sun.Sign))
	fmt.Fprintf(&b, "- Moon Sign: %s\n", orUnknown(kp.Moon.Sign))
	fmt.Fprintf(&b, "- Ascendant: %s\n", orUnknown(kp.Ascendant.Sign))
	fmt.Fprintf(&b, "- Lagna Lord: %s\n", orUnknown(kp.LagnaLord))
	fmt.Fprintf(&b, "- Sun Nakshatra: %s\n", orUnknown(kp.Sun.Nakshatra))
	fmt.Fprintf(&b, "- Moon Nakshatra: %s\n", orUnknown(kp.Moon.Nakshatra))
	fmt.Fprintf(&b, "- Planets: %s\n", strings.Join(planets, ", "))
	return b.String()
}

func plannerUserPrompt(message string) string {
	return "User Question: " + message
}

// ChartSummary renders the chart section of the reply prompt. The dasa
// block is omitted when no period contains now.
func ChartSummary(c *domain.Chart, now time.Time) string {
	if c == nil {
		return ""
	}
	kp := c.KeyPositions

	var b strings.Builder
	b.WriteString("Key Positions:\n")
	fmt.Fprintf(&b, "- Sun: %s (Nakshatra: %s, Nakshatra Lord: %s)\n",
		orUnknown(kp.Sun.Sign), orUnknown(kp.Sun.Nakshatra), orUnknown(kp.Sun.NakshatraLord))
	fmt.Fprintf(&b, "- Moon: %s (Nakshatra: %s, Nakshatra Lord: %s)\n",
		orUnknown(kp.Moon.Sign), orUnknown(kp.Moon.Nakshatra), orUnknown(kp.Moon.NakshatraLord))
	fmt.Fprintf(&b, "- Ascendant (Lagna): %s (Lagna Lord: %s)\n",
		orUnknown(kp.Ascendant.Sign), orUnknown(kp.LagnaLord))

	if len(c.Planets) > 0 {
		b.WriteString("\nPlanetary Positions:\n")
		for _, p := range c.Planets {
			house := "Unknown"
			if p.HouseNr != nil {
				house = fmt.Sprintf("%d", *p.HouseNr)
			}
			fmt.Fprintf(&b, "- %s: %s in House %s", p.Object, orUnknown(p.Rasi), house)
			if p.Nakshatra != "" {
				fmt.Fprintf(&b, " (Nakshatra: %s)", p.Nakshatra)
			}
			if p.IsRetrograde {
				b.WriteString(" (Retrograde)")
			}
			b.WriteString("\n")
		}
	}

	if period, ok := CurrentPeriod(c, now); ok {
		b.WriteString("\nCurrent Vimshottari Dasa Period:\n")
		fmt.Fprintf(&b, "- %s: %s to %s\n", period.Dasa.Name, period.Dasa.Start, period.Dasa.End)
		if period.Bhukti != nil {
			fmt.Fprintf(&b, "  - Current Bhukti: %s (%s to %s)\n",
				period.Bhukti.Name, period.Bhukti.Start, period.Bhukti.End)
		}
	}

	if len(c.Aspects) > 0 {
		b.WriteString("\nPlanetary Aspects:\n")
		for i, a := range c.Aspects {
			if i == maxAspects {
				break
			}
			fmt.Fprintf(&b, "- %s aspects %s (%s, %d°)\n", a.P1, a.P2, a.AspectType, a.AspectDeg)
		}
	}
	return b.String()
}

func composerSystemPrompt(chartSummary string, docs []domain.RetrievedDocument, reasoning, language string) string {
	var b strings.Builder
	b.WriteString(composerPolicy)

	if chartSummary != "" {
		b.WriteString("\n\nUser's Birth Kundali Details:\n")
		b.WriteString(chartSummary)
	}
	if len(docs) > 0 {
		b.WriteString("\nRelevant Astrological Information:\n")
		for i, d := range docs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, d.Content)
		}
	}
	if strings.TrimSpace(reasoning) != "" {
		b.WriteString("\nReasoning Summary:\n")
		b.WriteString(reasoning)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nIMPORTANT: You MUST respond strictly in %s (%s).", domain.LanguageName(language), language)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
