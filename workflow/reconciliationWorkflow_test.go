package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/proplens/recon_backend/models"
)

// NOTE: These tests are intentionally DB-free. They cover the pieces of the
// workflow with pure semantics: the cancellation registry and the summary
// counters derived from a session's match rows.

func TestRegistryCancelFiresRegisteredFunc(t *testing.T) {
	r := &sessionRegistry{cancels: map[int]context.CancelFunc{}}

	ctx, cancel := context.WithCancel(context.Background())
	r.register(42, cancel)

	if !r.cancel(42) {
		t.Fatal("cancel reported miss for a registered session")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("registered context was not cancelled")
	}
}

func TestRegistryCancelUnknownSession(t *testing.T) {
	r := &sessionRegistry{cancels: map[int]context.CancelFunc{}}
	if r.cancel(7) {
		t.Fatal("cancel reported hit for a session not running here")
	}
}

func TestRegistryUnregisterIsIdempotentUnderConcurrency(t *testing.T) {
	r := &sessionRegistry{cancels: map[int]context.CancelFunc{}}
	for i := 0; i < 100; i++ {
		_, cancel := context.WithCancel(context.Background())
		r.register(i, cancel)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.cancel(id)
			r.unregister(id)
			r.unregister(id)
		}(i)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cancels) != 0 {
		t.Fatalf("%d sessions still registered after unregister", len(r.cancels))
	}
}

func TestSummarizeMatches(t *testing.T) {
	matches := []models.MatchResult{
		{Classification: models.ClassificationExactMatch},
		{Classification: models.ClassificationExactMatch},
		{Classification: models.ClassificationWithinTolerance},
		{Classification: models.ClassificationMismatch},
		{Classification: models.ClassificationMissingInSource},
		{Classification: models.ClassificationMissingInTarget},
		{Classification: models.ClassificationMissingInTarget},
	}

	s := summarizeMatches(matches)
	if s.totalCompared != 7 {
		t.Errorf("totalCompared = %d, want 7", s.totalCompared)
	}
	if s.matched != 3 {
		t.Errorf("matched = %d, want 3", s.matched)
	}
	if s.differences != 1 {
		t.Errorf("differences = %d, want 1", s.differences)
	}
	if s.missingInSource != 1 || s.missingInTarget != 2 {
		t.Errorf("missing = (%d, %d), want (1, 2)", s.missingInSource, s.missingInTarget)
	}
}
