package revenue

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// PERIOD - The billing window invoices are keyed by
// =============================================================================

// Period is a calendar month. Month is a two-digit string ("01".."12") and
// Year a four-digit string, matching the stored invoice key.
type Period struct {
	Month string
	Year  string
}

// NewPeriod builds a period from a year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Month: fmt.Sprintf("%02d", int(month)), Year: fmt.Sprintf("%04d", year)}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return NewPeriod(t.Year(), t.Month())
}

// ParsePeriod validates the string forms of a period key.
func ParsePeriod(month, year string) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks the two-digit month and four-digit year forms.
func (p Period) Validate() error {
	if len(p.Month) != 2 || len(p.Year) != 4 || !digits(p.Month) || !digits(p.Year) {
		return fmt.Errorf("%w: month %q year %q", ErrInvalidPeriod, p.Month, p.Year)
	}
	m, err := strconv.Atoi(p.Month)
	if err != nil || m < 1 || m > 12 {
		return fmt.Errorf("%w: month %q", ErrInvalidPeriod, p.Month)
	}
	return nil
}

// digits reports whether s is made only of ASCII digits. strconv.Atoi
// alone accepts a sign.
func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Contains reports whether t falls in the period's calendar month.
func (p Period) Contains(t time.Time) bool {
	return t.Format("2006") == p.Year && t.Format("01") == p.Month
}

// Start returns the first day of the period in UTC.
func (p Period) Start() time.Time {
	y, _ := strconv.Atoi(p.Year)
	m, _ := strconv.Atoi(p.Month)
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Previous returns the month before p.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p Period) String() string { return p.Year + "-" + p.Month }

// =============================================================================
// WINDOWS - What the aggregator filters events by
// =============================================================================

// Window selects the events that belong to an aggregation.
type Window interface {
	Contains(t time.Time) bool
}

// DateRange is an inclusive day range [From, To].
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(r.From)) && !d.After(truncateDay(r.To))
}

// Validate rejects ranges that end before they start.
func (r DateRange) Validate() error {
	if truncateDay(r.To).Before(truncateDay(r.From)) {
		return fmt.Errorf("%w: range ends before it starts", ErrInvalidPeriod)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
