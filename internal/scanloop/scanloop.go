// Package scanloop drives the periodic sweeps that expire reservations and
// deactivate stale shares.
package scanloop

import (
	"math/rand/v2"
	"time"
)

// Run calls fn once per interval until stopCh closes. Each wait lasts
// minInterval plus a fresh random draw from [0, jitterRange), so sweepers
// sharing a configured cadence still spread their writes across the single
// SQLite writer.
func Run(stopCh <-chan struct{}, minInterval, jitterRange time.Duration, fn func()) {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if jitterRange < 0 {
		jitterRange = 0
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		timer.Reset(nextWait(minInterval, jitterRange))
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()
	}
}

func nextWait(minInterval, jitterRange time.Duration) time.Duration {
	if jitterRange <= 0 {
		return minInterval
	}
	return minInterval + rand.N(jitterRange)
}
