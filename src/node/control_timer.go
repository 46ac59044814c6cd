package node

import (
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// maxJitter is the largest fraction of the interval added to a period.
const maxJitter = 10

// ControlTimer paces the maintenance ticks. The next period only starts when
// the previous tick was consumed, so a slow tick delays the next one instead
// of piling them up.
type ControlTimer struct {
	interval     time.Duration
	timerFactory timerFactory
	tickCh       chan struct{}
	shutdownCh   chan struct{}
}

// NewControlTimer ticks every interval, as measured by timerFactory.
func NewControlTimer(interval time.Duration, timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		interval:     interval,
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewJitterControlTimer returns a ControlTimer whose periods exceed interval
// by up to a tenth, so that nodes started together drift apart.
func NewJitterControlTimer(interval time.Duration) *ControlTimer {
	return NewControlTimer(interval, func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		if span := int64(d) / maxJitter; span > 0 {
			d += time.Duration(rand.Int63n(span))
		}
		return time.After(d)
	})
}

// Run delivers ticks on tickCh until Shutdown.
func (c *ControlTimer) Run() {
	for {
		select {
		case <-c.timerFactory(c.interval):
		case <-c.shutdownCh:
			return
		}

		select {
		case c.tickCh <- struct{}{}:
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown stops Run. It must be called once.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
