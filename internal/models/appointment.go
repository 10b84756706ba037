package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// AppointmentAction is the evidence recorded at check-in or check-out.
type AppointmentAction struct {
	Timestamp      time.Time `json:"timestamp"`
	Location       GeoPoint  `json:"location"`
	PhotoRef       string    `json:"photo_ref,omitempty"`
	Verified       bool      `json:"verified"`
	DistanceMeters float64   `json:"distance_meters"`
}

type Appointment struct {
	ID          string             `json:"id"`
	ProviderID  string             `json:"provider_id"`
	ClientID    string             `json:"client_id"`
	Date        string             `json:"date"`
	Time        string             `json:"time"`
	ServiceName string             `json:"service_name"`
	Cost        Money              `json:"cost"`
	Fee         Money              `json:"fee"`
	Earnings    Money              `json:"earnings"`
	Status      string             `json:"status"`
	SeriesID    string             `json:"series_id,omitempty"`
	Target      GeoPoint           `json:"target"`
	Notes       string             `json:"notes,omitempty"`
	CheckIn     *AppointmentAction `json:"check_in,omitempty"`
	CheckOut    *AppointmentAction `json:"check_out,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Version     int64              `json:"version"`
}

// StartsAt resolves the appointment's date and start time in loc. A range
// uses its start; a point time is used as is.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", a.Date, err)
	}
	start := a.Time
	if i := strings.IndexByte(start, '-'); i >= 0 {
		start = start[:i]
	}
	minutes, ok := ParseClock(strings.TrimSpace(start))
	if !ok {
		return time.Time{}, fmt.Errorf("parse time %q", a.Time)
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(s, ":")
	if !found || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	if h == 24 && m != 0 {
		return 0, false
	}
	return h*60 + m, true
}

// ValidDay reports whether s is a canonical YYYY-MM-DD date.
func ValidDay(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}

type CareLog struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	AuthorID      string    `json:"author_id"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConflictWarning is advisory: overlapping confirmed appointments on one
// provider's day. It never blocks a booking.
type ConflictWarning struct {
	ProviderID     string   `json:"provider_id"`
	Date           string   `json:"date"`
	AppointmentIDs []string `json:"appointment_ids"`
}

func (a *Appointment) SetVersion(v int64) { a.Version = v }
