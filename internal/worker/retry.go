package worker

import (
	"math/rand/v2"
	"time"

	"carebook/internal/config"
)

const (
	defaultRetryDelay = time.Second
	maxBackoffShift   = 30
)

// RetryPolicy spaces out re-runs of a failed job. Delays double from
// InitialDelay up to MaxDelay; Jitter spreads each one by up to that
// fraction so jobs failing together do not retry in lockstep.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64

	// rand returns a value in [0, 1). Nil uses math/rand/v2.
	rand func() float64
}

// RetryPolicyFromConfig reads the retry knobs of the effects section.
func RetryPolicyFromConfig(cfg config.EffectsConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		Jitter:       cfg.RetryJitter,
	}
}

// Backoff is the un-jittered delay before retry number attempt (1-based).
func (r RetryPolicy) Backoff(attempt int) time.Duration {
	base := r.InitialDelay
	if base <= 0 {
		base = defaultRetryDelay
	}
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	d := base << shift
	if d < base || (r.MaxDelay > 0 && d > r.MaxDelay) {
		if r.MaxDelay > 0 {
			return r.MaxDelay
		}
		return base
	}
	return d
}

// NextDelay is Backoff with jitter applied. It never goes below half of
// InitialDelay nor above MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	d := r.Backoff(attempt)
	if r.Jitter <= 0 {
		return d
	}

	jitter := min(r.Jitter, 1)
	roll := rand.Float64
	if r.rand != nil {
		roll = r.rand
	}
	// roll in [0,1) maps to a factor in [1-jitter, 1+jitter).
	d = time.Duration(float64(d) * (1 + jitter*(2*roll()-1)))

	floor := r.InitialDelay / 2
	if floor <= 0 {
		floor = defaultRetryDelay / 2
	}
	if d < floor {
		d = floor
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
