package provider

import (
	"fmt"
	"strings"
	"time"
)

// dayMonthParser turns yearless "30 Dec" / "2 Jan" labels into dates. The
// labels arrive in ascending order starting in the query's start year, so a
// month lower than the previous one means the series crossed into a new year.
type dayMonthParser struct {
	year      int
	lastMonth time.Month
}

func newDayMonthParser(startYear int) *dayMonthParser {
	return &dayMonthParser{year: startYear}
}

func (p *dayMonthParser) parse(label string) (time.Time, error) {
	label = strings.TrimSpace(label)
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"2 Jan", "Jan 2", "2 January"} {
		if t, err = time.Parse(layout, label); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day-month %q: %w", label, err)
	}

	if p.lastMonth != 0 && t.Month() < p.lastMonth {
		p.year++
	}
	p.lastMonth = t.Month()

	return time.Date(p.year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
