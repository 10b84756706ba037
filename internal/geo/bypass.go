//go:build staging

package geo

import (
	"carebook/internal/domain"
	"carebook/internal/models"
)

// BypassVerifier records the real distance but always reports the evidence
// as verified. It only exists in staging builds for field testing.
type BypassVerifier struct{}

var _ domain.LocationVerifier = BypassVerifier{}

func (BypassVerifier) Verify(target, reported models.GeoPoint) (float64, bool, error) {
	if !Valid(reported) || !Valid(target) {
		return 0, true, nil
	}
	return Haversine(target, reported), true, nil
}
