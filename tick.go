package ptree

import (
	"time"

	"github.com/benbjohnson/clock"
)

// ticker gates the cooperative tick to the configured frequency. The
// clock is injectable so tests drive time by hand.
type ticker struct {
	clock  clock.Clock
	period time.Duration
	next   time.Time
}

func newTicker(c clock.Clock, hz int) *ticker {
	return &ticker{clock: c, period: time.Second / time.Duration(hz)}
}

// due reports whether a tick should run now and, when it should,
// schedules the next one.
func (t *ticker) due() bool {
	now := t.clock.Now()
	if now.Before(t.next) {
		return false
	}
	t.next = now.Add(t.period)
	return true
}
