package rag

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/knowledge"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func testChart() *domain.Chart {
	return &domain.Chart{
		UserName: "Asha",
		KeyPositions: domain.KeyPositions{
			Sun:       domain.Position{Sign: "Capricorn", Nakshatra: "Shravana", NakshatraLord: "Moon"},
			Moon:      domain.Position{Sign: "Cancer", Nakshatra: "Pushya", NakshatraLord: "Saturn"},
			Ascendant: domain.Position{Sign: "Leo"},
			LagnaLord: "Sun",
		},
		Planets: []domain.Planet{
			{Object: "Sun", Rasi: "Capricorn", HouseNr: intPtr(6), Nakshatra: "Shravana"},
			{Object: "Saturn", Rasi: "Scorpio", HouseNr: intPtr(4), IsRetrograde: true},
			{Object: "Rahu", Rasi: "Aquarius"},
		},
		Aspects: []domain.Aspect{
			{P1: "Mars", P2: "Saturn", AspectType: "Trine", AspectDeg: 120},
		},
		VimshottariDasa: []domain.DasaPeriod{
			{
				Name:  "Ketu",
				Start: "01-01-2020",
				End:   "01-01-2027",
				Bhuktis: []domain.BhuktiPeriod{
					{Name: "Ketu-Ketu", Start: "01-01-2020", End: "01-06-2020"},
					{Name: "Ketu-Venus", Start: "02-06-2020", End: "01-08-2021"},
				},
			},
			{Name: "Venus", Start: "02-01-2027", End: "01-01-2047"},
		},
	}
}

type fakeExtractor struct {
	mu     sync.Mutex
	out    map[string]any
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeExtractor) GenerateJSON(_ context.Context, system, user, _ string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.user = user
	return f.out, f.err
}

type fakeGenerator struct {
	reply   string
	err     error
	echo    bool
	system  string
	history []domain.Message
}

func (f *fakeGenerator) GenerateText(_ context.Context, system string, history []domain.Message) (string, error) {
	f.system = system
	f.history = history
	if f.err != nil {
		return "", f.err
	}
	if f.echo {
		return system, nil
	}
	return f.reply, nil
}

type fakeIndex struct {
	res   knowledge.SearchResult
	err   error
	calls int
	query string
	topK  int
	cond  knowledge.Condition
}

func (f *fakeIndex) Search(_ context.Context, query string, topK int, cond knowledge.Condition) (knowledge.SearchResult, error) {
	f.calls++
	f.query = query
	f.topK = topK
	f.cond = cond
	return f.res, f.err
}
