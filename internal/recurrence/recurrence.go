// Package recurrence turns a booking anchor and repetition rule into the
// dates of a series.
package recurrence

import (
	"fmt"
	"time"

	"carebook/internal/domain"
	"carebook/internal/models"
)

// Expander generates series dates. MaxSessions bounds the number of stepped
// dates considered, blocked or not.
type Expander struct {
	MaxSessions int
}

func NewExpander(maxSessions int) Expander {
	if maxSessions <= 0 {
		maxSessions = models.DefaultMaxSeriesSessions
	}
	return Expander{MaxSessions: maxSessions}
}

// Stride returns the step in days for rule, or 0 for a single booking.
func Stride(rule string) (int, error) {
	switch rule {
	case models.RecurrenceNone, "":
		return 0, nil
	case models.RecurrenceWeekly:
		return 7, nil
	case models.RecurrenceBiweekly:
		return 14, nil
	default:
		return 0, fmt.Errorf("%w: unknown recurrence rule %q", domain.ErrValidation, rule)
	}
}

// Expand returns the ordered session dates. A single booking yields the
// anchor regardless of the calendar. Recurring rules step from the anchor up
// to and including end, silently dropping blocked dates; if every date is
// blocked the result is domain.ErrNoValidDates.
func (e Expander) Expand(anchor, rule, end, providerID string, cal domain.Calendar) ([]string, error) {
	start, err := time.Parse(models.DateLayout, anchor)
	if err != nil || !models.ValidDay(anchor) {
		return nil, fmt.Errorf("%w: anchor date %q is not YYYY-MM-DD", domain.ErrValidation, anchor)
	}

	stride, err := Stride(rule)
	if err != nil {
		return nil, err
	}
	if stride == 0 {
		return []string{anchor}, nil
	}

	if end == "" {
		return nil, fmt.Errorf("%w: end date is required for %s bookings", domain.ErrValidation, rule)
	}
	last, err := time.Parse(models.DateLayout, end)
	if err != nil || !models.ValidDay(end) {
		return nil, fmt.Errorf("%w: end date %q is not YYYY-MM-DD", domain.ErrValidation, end)
	}
	if last.Before(start) {
		return nil, fmt.Errorf("%w: end date %s is before %s", domain.ErrValidation, end, anchor)
	}

	var dates []string
	steps := 0
	for d := start; !d.After(last); d = d.AddDate(0, 0, stride) {
		steps++
		if e.MaxSessions > 0 && steps > e.MaxSessions {
			return nil, fmt.Errorf("%w: series exceeds %d sessions", domain.ErrValidation, e.MaxSessions)
		}
		day := d.Format(models.DateLayout)
		if cal != nil && cal.IsBlocked(providerID, day) {
			continue
		}
		dates = append(dates, day)
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: every %s date between %s and %s is blocked", domain.ErrNoValidDates, rule, anchor, end)
	}
	return dates, nil
}
