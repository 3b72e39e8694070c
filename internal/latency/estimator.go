package latency

import (
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/exp/constraints"
)

const DefaultMaxLatency = 5 * time.Second

// Estimator turns an authority-stamped position into the position playback
// should be at on receipt. Timestamps come from another machine's clock, so
// every derived delay is clamped to [0, maxLatency].
type Estimator struct {
	clock      clockwork.Clock
	maxLatency time.Duration
}

func NewEstimator(clock clockwork.Clock, maxLatency time.Duration) *Estimator {
	if maxLatency <= 0 {
		maxLatency = DefaultMaxLatency
	}

	return &Estimator{
		clock:      clock,
		maxLatency: maxLatency,
	}
}

// Latency is the clamped delay between ts and now.
func (e *Estimator) Latency(ts time.Time) time.Duration {
	if ts.IsZero() {
		return 0
	}

	return clamp(e.clock.Since(ts), 0, e.maxLatency)
}

// AdjustedPosition compensates position for the delay since ts. Stationary
// positions (paused, freshly loaded) are returned unchanged.
func (e *Estimator) AdjustedPosition(position float64, ts time.Time, playing bool) float64 {
	if !playing {
		return position
	}

	return position + e.Latency(ts).Seconds()
}

// Elapsed advances position by the time since anchor regardless of play
// state. Used for the first render after joining a paused room. An anchor
// older than maxLatency means the position has been standing still since, so
// position is returned unchanged.
func (e *Estimator) Elapsed(position float64, anchor time.Time) float64 {
	if anchor.IsZero() {
		return position
	}

	since := e.clock.Since(anchor)
	if since > e.maxLatency {
		return position
	}

	return position + clamp(since, 0, e.maxLatency).Seconds()
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
