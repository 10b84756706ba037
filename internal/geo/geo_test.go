package geo

import (
	"math"
	"testing"

	"carebook/internal/domain"
	"carebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	berlin := models.GeoPoint{Lat: 52.5200, Lng: 13.4050}
	paris := models.GeoPoint{Lat: 48.8566, Lng: 2.3522}

	assert.InDelta(t, 877_500, Haversine(berlin, paris), 2_000)
	assert.Zero(t, Haversine(berlin, berlin))
	assert.InDelta(t, Haversine(berlin, paris), Haversine(paris, berlin), 1e-6)

	// One thousandth of a degree of latitude is about 111 m.
	near := models.GeoPoint{Lat: berlin.Lat + 0.001, Lng: berlin.Lng}
	assert.InDelta(t, 111.2, Haversine(berlin, near), 0.5)
}

func TestRadiusVerifier(t *testing.T) {
	v := NewRadiusVerifier(300)
	target := models.GeoPoint{Lat: 40.7128, Lng: -74.0060}

	tests := []struct {
		name     string
		reported models.GeoPoint
		verified bool
	}{
		{"on site", target, true},
		{"about 220m away", models.GeoPoint{Lat: target.Lat + 0.002, Lng: target.Lng}, true},
		{"about 555m away", models.GeoPoint{Lat: target.Lat + 0.005, Lng: target.Lng}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok, err := v.Verify(target, tt.reported)
			require.NoError(t, err)
			assert.Equal(t, tt.verified, ok)
			assert.GreaterOrEqual(t, d, 0.0)
		})
	}
}

func TestRadiusVerifier_InvalidCoordinates(t *testing.T) {
	v := NewRadiusVerifier(0)
	assert.Equal(t, float64(models.DefaultCheckInRadiusMeters), v.MaxMeters)

	_, _, err := v.Verify(models.GeoPoint{}, models.GeoPoint{Lat: 91})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = v.Verify(models.GeoPoint{Lat: math.NaN()}, models.GeoPoint{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
