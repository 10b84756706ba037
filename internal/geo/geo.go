package geo

import (
	"fmt"
	"math"

	"carebook/internal/domain"
	"carebook/internal/models"
)

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b models.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * (math.Pi / 180)
	dLng := (b.Lng - a.Lng) * (math.Pi / 180)
	lat1 := a.Lat * (math.Pi / 180)
	lat2 := b.Lat * (math.Pi / 180)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// Valid reports whether p is a real coordinate.
func Valid(p models.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// RadiusVerifier accepts evidence reported within MaxMeters of the target.
type RadiusVerifier struct {
	MaxMeters float64
}

var _ domain.LocationVerifier = RadiusVerifier{}

func NewRadiusVerifier(maxMeters float64) RadiusVerifier {
	if maxMeters <= 0 {
		maxMeters = models.DefaultCheckInRadiusMeters
	}
	return RadiusVerifier{MaxMeters: maxMeters}
}

func (v RadiusVerifier) Verify(target, reported models.GeoPoint) (float64, bool, error) {
	if !Valid(reported) {
		return 0, false, fmt.Errorf("%w: reported coordinates %v out of range", domain.ErrValidation, reported)
	}
	if !Valid(target) {
		return 0, false, fmt.Errorf("%w: target coordinates %v out of range", domain.ErrValidation, target)
	}
	d := Haversine(target, reported)
	return d, d <= v.MaxMeters, nil
}
