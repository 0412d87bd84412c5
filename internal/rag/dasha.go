package rag

import (
	"fmt"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// NotAvailable is reported when no dasa period contains the current date.
const NotAvailable = "Not available"

var dashaDateLayouts = []string{"02-01-2006", "2006-01-02"}

// Period is the running dasa and, when one matches, its running bhukti.
type Period struct {
	Dasa   domain.DasaPeriod
	Bhukti *domain.BhuktiPeriod
}

// CurrentPeriod finds the first major period whose range contains the
// date of now, then the first sub-period inside it. Bounds are inclusive
// and periods with unparseable dates are skipped.
func CurrentPeriod(c *domain.Chart, now time.Time) (Period, bool) {
	if c == nil {
		return Period{}, false
	}
	today := dateOf(now)

	for _, dasa := range c.VimshottariDasa {
		if !contains(dasa.Start, dasa.End, today) {
			continue
		}
		p := Period{Dasa: dasa}
		for i := range dasa.Bhuktis {
			b := dasa.Bhuktis[i]
			if contains(b.Start, b.End, today) {
				p.Bhukti = &b
				break
			}
		}
		return p, true
	}
	return Period{}, false
}

// DashaInfo renders the running period for API responses.
func DashaInfo(c *domain.Chart, now time.Time) string {
	p, ok := CurrentPeriod(c, now)
	if !ok {
		return NotAvailable
	}
	info := fmt.Sprintf("%s Dasa (%s to %s)", p.Dasa.Name, p.Dasa.Start, p.Dasa.End)
	if p.Bhukti != nil {
		info += fmt.Sprintf(", %s Bhukti (%s to %s)", p.Bhukti.Name, p.Bhukti.Start, p.Bhukti.End)
	}
	return info
}

func contains(start, end string, day time.Time) bool {
	s, err := parseDashaDate(start)
	if err != nil {
		return false
	}
	e, err := parseDashaDate(end)
	if err != nil {
		return false
	}
	return !day.Before(s) && !day.After(e)
}

func parseDashaDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dashaDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse dasa date %q: %w", s, lastErr)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
