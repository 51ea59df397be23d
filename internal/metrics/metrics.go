package metrics

import (
	"sync"
	"sync/atomic"
)

// rateLimitStats holds counters for rate limit drops (HTTP 429).
// Kept simple/thread-safe for use from middlewares and exposition.
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}

// assignmentStats counts auto-assignment outcomes by label
// ("matched", "unmatched", "failed").
type assignmentStats struct {
	total     uint64
	mu        sync.Mutex
	byOutcome map[string]uint64
}

var asg assignmentStats

// IncAssignment increments the counter for one assignment outcome.
func IncAssignment(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	atomic.AddUint64(&asg.total, 1)
	asg.mu.Lock()
	if asg.byOutcome == nil {
		asg.byOutcome = make(map[string]uint64)
	}
	asg.byOutcome[outcome]++
	asg.mu.Unlock()
}

// AssignmentSnapshot returns a copy of the current counters.
func AssignmentSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&asg.total)
	asg.mu.Lock()
	defer asg.mu.Unlock()
	by = make(map[string]uint64, len(asg.byOutcome))
	for k, v := range asg.byOutcome {
		by[k] = v
	}
	return total, by
}
