package policies

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultRetryBaseInterval        = 500 * time.Millisecond
	DefaultRetryMultiplier          = 4.0
	DefaultRetryRandomizationFactor = 0.5
	DefaultRetryMaxInterval         = time.Hour
)

type RetryBackoff struct {
	BaseInterval        time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
}

func DefaultRetryBackoff() RetryBackoff {
	return RetryBackoff{
		BaseInterval:        DefaultRetryBaseInterval,
		Multiplier:          DefaultRetryMultiplier,
		RandomizationFactor: DefaultRetryRandomizationFactor,
		MaxInterval:         DefaultRetryMaxInterval,
	}
}

// Interval returns base * multiplier^(retry-1), jittered by the
// randomization factor. Retry numbers below one are treated as one.
func (p RetryBackoff) Interval(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	defaults := DefaultRetryBackoff()
	if p.BaseInterval <= 0 {
		p.BaseInterval = defaults.BaseInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaults.Multiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		p.RandomizationFactor = defaults.RandomizationFactor
	}
	if p.MaxInterval < p.BaseInterval {
		p.MaxInterval = defaults.MaxInterval
	}

	exponential := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseInterval,
		RandomizationFactor: p.RandomizationFactor,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
	}
	exponential.Reset()

	interval := exponential.NextBackOff()
	for i := 1; i < retry; i++ {
		interval = exponential.NextBackOff()
	}
	return interval
}
