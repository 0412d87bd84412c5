package rag

import (
	"testing"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

func TestDashaInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "inside dasa and bhukti",
			now:  time.Date(2020, time.March, 1, 9, 0, 0, 0, time.UTC),
			want: "Ketu Dasa (01-01-2020 to 01-01-2027), Ketu-Ketu Bhukti (01-01-2020 to 01-06-2020)",
		},
		{
			name: "inclusive start",
			now:  time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
			want: "Ketu Dasa (01-01-2020 to 01-01-2027), Ketu-Ketu Bhukti (01-01-2020 to 01-06-2020)",
		},
		{
			name: "inside dasa outside bhuktis",
			now:  time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC),
			want: "Ketu Dasa (01-01-2020 to 01-01-2027)",
		},
		{
			name: "no period",
			now:  time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
			want: NotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DashaInfo(testChart(), tt.now); got != tt.want {
				t.Fatalf("DashaInfo() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := DashaInfo(nil, time.Now()); got != NotAvailable {
		t.Fatalf("DashaInfo(nil) = %q", got)
	}
}

func TestCurrentPeriodParsing(t *testing.T) {
	t.Parallel()

	c := &domain.Chart{VimshottariDasa: []domain.DasaPeriod{
		{Name: "Broken", Start: "someday", End: "later"},
		{Name: "Sun", Start: "2019-06-01", End: "2020-06-01"},
		{Name: "Moon", Start: "01-01-2020", End: "01-01-2030"},
	}}

	p, ok := CurrentPeriod(c, time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("CurrentPeriod() found nothing")
	}
	if p.Dasa.Name != "Sun" {
		t.Fatalf("dasa = %q, want first match Sun", p.Dasa.Name)
	}
	if p.Bhukti != nil {
		t.Fatalf("bhukti = %+v, want nil", p.Bhukti)
	}
}
