package realtime

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls reconnection after an unexpected close.
type Policy struct {
	Interval   time.Duration // delay before the first reconnection attempt
	Decay      float64       // multiplier applied to the delay on each further attempt
	MaxRetries int           // consecutive failures before giving up; negative retries forever
	Timeout    time.Duration // handshake timeout per attempt
	MinUptime  time.Duration // a connection open this long restores the retry budget
}

// DefaultPolicy matches the dashboard's historical reconnecting socket settings.
func DefaultPolicy() Policy {
	return Policy{
		Interval:   time.Second,
		Decay:      1.5,
		MaxRetries: 5,
		Timeout:    2 * time.Second,
		MinUptime:  5 * time.Second,
	}
}

// normalize fills zero fields from DefaultPolicy
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.Decay <= 0 {
		p.Decay = def.Decay
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MinUptime <= 0 {
		p.MinUptime = def.MinUptime
	}
	return p
}

// Delay returns the wait before reconnection attempt n (n >= 1): Interval * Decay^(n-1).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalize()
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.Interval) * math.Pow(p.Decay, float64(attempt-1)))
}

// NewBackOff returns a fresh schedule yielding Delay(1), Delay(2), ... and
// backoff.Stop once MaxRetries delays have been handed out.
func (p Policy) NewBackOff() backoff.BackOff {
	p = p.normalize()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Interval
	exp.Multiplier = p.Decay
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()

	if p.MaxRetries < 0 {
		return exp
	}
	return backoff.WithMaxRetries(exp, uint64(p.MaxRetries))
}
