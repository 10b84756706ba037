// Package conflict flags overlapping appointments on a provider's day.
// Results are advisory and never block a booking.
package conflict

import (
	"sort"
	"strings"

	"carebook/internal/models"
)

type interval struct {
	id         string
	start, end int
}

// ParseRange parses "HH:MM-HH:MM" into a half-open [start, end) in minutes.
// Point times, empty or reversed ranges are not ranges.
func ParseRange(s string) (start, end int, ok bool) {
	from, to, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	start, ok = models.ParseClock(strings.TrimSpace(from))
	if !ok {
		return 0, 0, false
	}
	end, ok = models.ParseClock(strings.TrimSpace(to))
	if !ok || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// Detect returns the sorted ids of appointments that overlap at least one
// other. Appointments with an unparsable time never conflict.
func Detect(appts []*models.Appointment) []string {
	spans := make([]interval, 0, len(appts))
	for _, a := range appts {
		start, end, ok := ParseRange(a.Time)
		if !ok {
			continue
		}
		spans = append(spans, interval{id: a.ID, start: start, end: end})
	}

	hit := make(map[string]struct{})
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.start < b.end && b.start < a.end {
				hit[a.id] = struct{}{}
				hit[b.id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(hit))
	for id := range hit {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SameDay keeps the confirmed appointments of providerID on date.
func SameDay(appts []*models.Appointment, providerID, date string) []*models.Appointment {
	var out []*models.Appointment
	for _, a := range appts {
		if a.ProviderID == providerID && a.Date == date && a.Status == models.StatusConfirmed {
			out = append(out, a)
		}
	}
	return out
}

// Warning runs Detect over one provider's day and wraps a non-empty result.
func Warning(appts []*models.Appointment, providerID, date string) *models.ConflictWarning {
	ids := Detect(SameDay(appts, providerID, date))
	if len(ids) == 0 {
		return nil
	}
	return &models.ConflictWarning{ProviderID: providerID, Date: date, AppointmentIDs: ids}
}
