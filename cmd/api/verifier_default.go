//go:build !staging

package main

import (
	"carebook/internal/config"
	"carebook/internal/domain"
	"carebook/internal/geo"

	"github.com/rs/zerolog"
)

func newVerifier(cfg config.SchedulingConfig, _ *zerolog.Logger) domain.LocationVerifier {
	return geo.NewRadiusVerifier(cfg.CheckInRadiusMeters)
}
