// Package quota caps per-user resource creation with fixed-window counters.
// This throttles how many resources a user may create per period, not request
// volume; allocators consult it before touching storage so a quota violation
// never leaves partial state behind.
package quota

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Operation keys consumed by the allocators.
const (
	OpRegionCreate = "region_create"
	OpHostCreate   = "host_create"
)

// ExceededError reports a fixed-window quota violation.
type ExceededError struct {
	UserID    string
	Operation string
	Limit     int
	Window    time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d per %s", e.Operation, e.Limit, e.Window)
}

// Limit pairs a count cap with its window.
type Limit struct {
	Count  int
	Window time.Duration
}

type window struct {
	startNs int64
	count   int
}

// Enforcer tracks fixed-window counters per (user, operation). The window
// starts on the first increment after expiry; counters live only in memory
// and reset on restart.
type Enforcer struct {
	limits  map[string]Limit
	windows *xsync.Map[string, window]

	// nowFn overrides the clock in tests.
	nowFn func() time.Time
}

// NewEnforcer builds an Enforcer for the given per-operation limits.
func NewEnforcer(limits map[string]Limit) *Enforcer {
	return &Enforcer{
		limits:  limits,
		windows: xsync.NewMap[string, window](),
		nowFn:   time.Now,
	}
}

// Check consumes one unit of quota for (userID, operation) and returns the
// remaining count in the current window. Operations with no configured limit
// are unrestricted.
func (e *Enforcer) Check(userID, operation string) (remaining int, err error) {
	limit, ok := e.limits[operation]
	if !ok {
		return -1, nil
	}

	nowNs := e.nowFn().UnixNano()
	windowNs := limit.Window.Nanoseconds()
	key := userID + "\x00" + operation

	var exceeded bool
	e.windows.Compute(key, func(w window, loaded bool) (window, xsync.ComputeOp) {
		if !loaded || nowNs-w.startNs >= windowNs {
			return window{startNs: nowNs, count: 1}, xsync.UpdateOp
		}
		if w.count >= limit.Count {
			exceeded = true
			return w, xsync.CancelOp
		}
		w.count++
		return w, xsync.UpdateOp
	})
	if exceeded {
		return 0, &ExceededError{
			UserID:    userID,
			Operation: operation,
			Limit:     limit.Count,
			Window:    limit.Window,
		}
	}

	w, _ := e.windows.Load(key)
	return limit.Count - w.count, nil
}

// Remaining reports the unconsumed quota for (userID, operation) without
// incrementing the counter.
func (e *Enforcer) Remaining(userID, operation string) int {
	limit, ok := e.limits[operation]
	if !ok {
		return -1
	}
	nowNs := e.nowFn().UnixNano()
	w, loaded := e.windows.Load(userID + "\x00" + operation)
	if !loaded || nowNs-w.startNs >= limit.Window.Nanoseconds() {
		return limit.Count
	}
	return limit.Count - w.count
}
