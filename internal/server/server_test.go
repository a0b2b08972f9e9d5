package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/voltmetric/billscan/internal/recognize"
	"github.com/voltmetric/billscan/internal/testutil"
)

func TestCoordinatorForReturnsStableInstance(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	s, _ := newTestServer(t, eng, testConfig())

	first := s.coordinatorFor("10.0.0.1")
	second := s.coordinatorFor("10.0.0.1")
	assert.Same(t, first, second)
	assert.Len(t, s.coordinators, 1)
}

func TestCoordinatorForEvictsIdleClients(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	s, _ := newTestServer(t, eng, testConfig())

	s.coordinatorFor("10.0.0.1")
	s.coordinatorFor("10.0.0.2")
	assert.Len(t, s.coordinators, 2)

	// Age the first client past the TTL; the second stays fresh.
	s.mu.Lock()
	s.coordinators["10.0.0.1"].lastUsed = time.Now().Add(-s.coordinatorTTL - time.Minute)
	s.mu.Unlock()

	s.coordinatorFor("10.0.0.3")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.coordinators, "10.0.0.1")
	assert.Contains(t, s.coordinators, "10.0.0.2")
	assert.Contains(t, s.coordinators, "10.0.0.3")
	assert.Len(t, s.coordinators, 2)
}

func TestCoordinatorForRefreshesActiveClients(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	s, _ := newTestServer(t, eng, testConfig())

	s.coordinatorFor("10.0.0.1")

	// A repeat scan just inside the TTL resets the clock, so the entry
	// survives the next sweep.
	s.mu.Lock()
	s.coordinators["10.0.0.1"].lastUsed = time.Now().Add(-s.coordinatorTTL + time.Minute)
	s.mu.Unlock()
	s.coordinatorFor("10.0.0.1")

	s.coordinatorFor("10.0.0.2")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Contains(t, s.coordinators, "10.0.0.1")
	assert.Len(t, s.coordinators, 2)
}
