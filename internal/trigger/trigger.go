// Package trigger implements the schedule that drives a Source's poll
// cadence.
package trigger

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned when a TimeInterval's derived flush_rounds
// would be zero, which would mean a source never flushes.
var ErrInvalidInterval = errors.New("alumet: flush_interval must be >= poll_interval")

// TimeInterval is the only trigger variant in the current design: a source
// polls every PollInterval and flushes its accumulated buffer downstream
// every FlushInterval.
type TimeInterval struct {
	Start         time.Time
	PollInterval  time.Duration
	FlushInterval time.Duration

	flushRounds int
}

// NewTimeInterval validates and configures a TimeInterval, deriving
// flush_rounds = flush_interval / poll_interval. flush_rounds is always
// >= 1: the buffer flushes after polling, so at least one poll precedes
// any flush.
func NewTimeInterval(start time.Time, poll, flush time.Duration) (*TimeInterval, error) {
	if poll <= 0 || flush < poll {
		return nil, ErrInvalidInterval
	}
	rounds := int(flush / poll)
	if rounds < 1 {
		rounds = 1
	}
	return &TimeInterval{
		Start:         start,
		PollInterval:  poll,
		FlushInterval: flush,
		flushRounds:   rounds,
	}, nil
}

// FlushRounds returns the number of poll ticks between two downstream
// sends.
func (t *TimeInterval) FlushRounds() int {
	return t.flushRounds
}

// ShouldFlush reports whether round i (1-indexed, per spec) is a flush
// round.
func (t *TimeInterval) ShouldFlush(round int) bool {
	return round%t.flushRounds == 0
}

// NewTicker returns a ticker that fires every PollInterval, counted from
// the call (Start is not used). A ticker rather than repeated time.Sleep
// keeps drift from accumulating across many rounds.
func (t *TimeInterval) NewTicker() *time.Ticker {
	return time.NewTicker(t.PollInterval)
}
