package domain

import "fmt"

type Period string

const (
	PeriodTotal Period = "total"
	PeriodDaily Period = "daily"
)

const secondsPerDay = 86400

// Periods lists the granularities every rollup is kept at, "total" first:
// daily cumulative fields are copied from the total snapshot of the same event.
var Periods = []Period{PeriodTotal, PeriodDaily}

func (p Period) Valid() bool {
	return p == PeriodTotal || p == PeriodDaily
}

// Bucket maps a unix timestamp (seconds) to the canonical bucket start of the period.
// "total" is always bucket 0, "daily" is the start of the UTC day.
func Bucket(ts uint64, p Period) uint64 {
	switch p {
	case PeriodDaily:
		return ts - ts%secondsPerDay
	default:
		return 0
	}
}

func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}
