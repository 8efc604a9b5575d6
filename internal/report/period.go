package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ErrInvalidPeriod is returned for unknown period labels and inverted ranges.
var ErrInvalidPeriod = errors.New("invalid period")

// Period labels.
const (
	PeriodAll    = "ALL"
	PeriodDay    = "1D"
	PeriodWeek   = "1W"
	PeriodMonth  = "1M"
	PeriodCustom = "custom"
)

// ParsePeriod returns the window ending at now for a rolling period label.
// Labels are case-insensitive; an empty label means ALL.
func ParsePeriod(label string, now time.Time) (domain.Window, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "", PeriodAll:
		return domain.Window{Label: PeriodAll, End: now}, nil
	case PeriodDay:
		return domain.Window{Label: PeriodDay, Start: now.Add(-24 * time.Hour), End: now}, nil
	case PeriodWeek:
		return domain.Window{Label: PeriodWeek, Start: now.AddDate(0, 0, -7), End: now}, nil
	case PeriodMonth:
		return domain.Window{Label: PeriodMonth, Start: now.AddDate(0, -1, 0), End: now}, nil
	}
	return domain.Window{}, fmt.Errorf("report.ParsePeriod: %w: %q", ErrInvalidPeriod, label)
}

// CustomWindow builds a window from two dates (YYYY-MM-DD, read in loc) or
// RFC 3339 timestamps. A date-only "to" covers that whole day. An empty
// "from" is unbounded and an empty "to" means now.
func CustomWindow(from, to string, loc *time.Location, now time.Time) (domain.Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := domain.Window{Label: PeriodCustom, End: now}
	if from != "" {
		start, _, err := parseBound(from, loc)
		if err != nil {
			return domain.Window{}, fmt.Errorf("report.CustomWindow: from: %w", err)
		}
		w.Start = start
	}
	if to != "" {
		end, dateOnly, err := parseBound(to, loc)
		if err != nil {
			return domain.Window{}, fmt.Errorf("report.CustomWindow: to: %w", err)
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		}
		w.End = end
	}
	if !w.Start.IsZero() && !w.End.After(w.Start) {
		return domain.Window{}, fmt.Errorf("report.CustomWindow: %w: %s is not after %s",
			ErrInvalidPeriod, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return w, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return t, false, nil
}
