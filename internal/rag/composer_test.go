package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func TestComposeFallsBackToApology(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		gen      *fakeGenerator
		language string
		want     string
	}{
		{name: "error english", gen: &fakeGenerator{err: errors.New("503")}, language: "en", want: ApologyEnglish},
		{name: "error hindi", gen: &fakeGenerator{err: errors.New("503")}, language: "hi", want: ApologyHindi},
		{name: "empty reply", gen: &fakeGenerator{reply: "  \n"}, language: "en", want: ApologyEnglish},
		{name: "unknown language", gen: &fakeGenerator{err: errors.New("503")}, language: "fr", want: ApologyEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewComposer(tt.gen, testLogger())
			got := c.Compose(context.Background(), ComposeInput{Message: "hi", Chart: testChart(), Language: tt.language})
			if got != tt.want {
				t.Fatalf("Compose() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComposePassesContextAndHistory(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{echo: true}
	c := NewComposer(gen, testLogger(), WithClock(fixedClock(2020, time.March, 1)))

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "Tell me about my career"},
		{Role: domain.RoleAssistant, Content: "Your Sun in Capricorn favours steady work."},
	}
	reply := c.Compose(context.Background(), ComposeInput{
		Message:   "And my love life?",
		Chart:     testChart(),
		Documents: []domain.RetrievedDocument{{Content: "Cancer moons seek emotional security."}},
		History:   history,
		Language:  "hi",
		Reasoning: "Use the Moon sign",
	})

	for _, want := range []string{
		"- Sun: Capricorn (Nakshatra: Shravana, Nakshatra Lord: Moon)",
		"Relevant Astrological Information:\n1. Cancer moons seek emotional security.",
		"Reasoning Summary:\nUse the Moon sign",
		"respond strictly in Hindi (hi)",
	} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply missing %q:\n%s", want, reply)
		}
	}

	if len(gen.history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(gen.history))
	}
	last := gen.history[2]
	if last.Role != domain.RoleUser || last.Content != "And my love life?" {
		t.Fatalf("last turn = %+v", last)
	}
}

func TestChartSummaryFormat(t *testing.T) {
	t.Parallel()

	got := ChartSummary(testChart(), time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC))
	want := `Key Positions:
- Sun: Capricorn (Nakshatra: Shravana, Nakshatra Lord: Moon)
- Moon: Cancer (Nakshatra: Pushya, Nakshatra Lord: Saturn)
- Ascendant (Lagna): Leo (Lagna Lord: Sun)

Planetary Positions:
- Sun: Capricorn in House 6 (Nakshatra: Shravana)
- Saturn: Scorpio in House 4 (Retrograde)
- Rahu: Aquarius in House Unknown

Current Vimshottari Dasa Period:
- Ketu: 01-01-2020 to 01-01-2027
  - Current Bhukti: Ketu-Ketu (01-01-2020 to 01-06-2020)

Planetary Aspects:
- Mars aspects Saturn (Trine, 120°)
`
	if got != want {
		t.Fatalf("ChartSummary() =\n%s\nwant\n%s", got, want)
	}
}

func TestChartSummaryOmitsDasaOutsideAllPeriods(t *testing.T) {
	t.Parallel()

	got := ChartSummary(testChart(), time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC))
	if strings.Contains(got, "Vimshottari") {
		t.Fatalf("summary should omit the dasa section:\n%s", got)
	}
	if ChartSummary(nil, time.Now()) != "" {
		t.Fatal("nil chart should render nothing")
	}
}

func TestChartSummaryLimitsAspects(t *testing.T) {
	t.Parallel()

	c := testChart()
	c.Aspects = nil
	for i := 0; i < 8; i++ {
		c.Aspects = append(c.Aspects, domain.Aspect{P1: "Sun", P2: "Moon", AspectType: "Opposition", AspectDeg: 180})
	}
	got := ChartSummary(c, time.Now())
	if n := strings.Count(got, " aspects "); n != maxAspects {
		t.Fatalf("aspect lines = %d, want %d", n, maxAspects)
	}
}
