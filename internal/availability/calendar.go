// Package availability tracks the dates each provider has blacked out.
package availability

import (
	"fmt"
	"sort"
	"sync"

	"carebook/internal/domain"
	"carebook/internal/models"
)

// Calendar is a per-provider set of blocked YYYY-MM-DD dates. The zero value
// is not usable; call NewCalendar.
type Calendar struct {
	mu      sync.RWMutex
	blocked map[string]map[string]struct{}
}

var _ domain.Calendar = (*Calendar)(nil)

func NewCalendar() *Calendar {
	return &Calendar{blocked: make(map[string]map[string]struct{})}
}

// FromDates builds a calendar for a single provider.
func FromDates(providerID string, dates []string) *Calendar {
	c := NewCalendar()
	c.Set(providerID, dates)
	return c
}

func (c *Calendar) IsBlocked(providerID, date string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocked[providerID][date]
	return ok
}

// Toggle flips date for providerID and reports whether it is now blocked.
func (c *Calendar) Toggle(providerID, date string) (bool, error) {
	if !models.ValidDay(date) {
		return false, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrValidation, date)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	days, ok := c.blocked[providerID]
	if !ok {
		days = make(map[string]struct{})
		c.blocked[providerID] = days
	}
	if _, blocked := days[date]; blocked {
		delete(days, date)
		return false, nil
	}
	days[date] = struct{}{}
	return true, nil
}

// Set replaces providerID's blocked dates. Non-canonical entries are dropped.
func (c *Calendar) Set(providerID string, dates []string) {
	days := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if models.ValidDay(d) {
			days[d] = struct{}{}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[providerID] = days
}

// Dates returns providerID's blocked dates in order.
func (c *Calendar) Dates(providerID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.blocked[providerID]))
	for d := range c.blocked[providerID] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
