package metrics

import (
	"sync"
	"testing"
)

func TestIncAssignment(t *testing.T) {
	before, byBefore := AssignmentSnapshot()

	IncAssignment("matched")
	IncAssignment("matched")
	IncAssignment("unmatched")
	IncAssignment("")

	total, by := AssignmentSnapshot()
	if total-before != 4 {
		t.Errorf("expected total delta 4, got %d", total-before)
	}
	if by["matched"]-byBefore["matched"] != 2 {
		t.Errorf("expected 2 matched increments, got %d", by["matched"]-byBefore["matched"])
	}
	if by["unknown"]-byBefore["unknown"] != 1 {
		t.Errorf("empty outcome should be counted as unknown")
	}

	// snapshot must be a copy
	by["matched"] = 0
	_, again := AssignmentSnapshot()
	if again["matched"] != byBefore["matched"]+2 {
		t.Error("snapshot leaked internal map")
	}
}

func TestIncRateLimitDropConcurrent(t *testing.T) {
	before, _ := RateLimitSnapshot()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				IncRateLimitDrop("global")
			}
		}()
	}
	wg.Wait()

	total, by := RateLimitSnapshot()
	if total-before != 1000 {
		t.Errorf("expected 1000 drops, got %d", total-before)
	}
	if by["global"] < 1000 {
		t.Errorf("expected at least 1000 global drops, got %d", by["global"])
	}
}
