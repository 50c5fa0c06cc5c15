package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// SimulatedExecutor stands in for a remote API: it sleeps for a fixed latency
// and then succeeds with probability SuccessRate.
type SimulatedExecutor struct {
	latency     time.Duration
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedExecutor creates a SimulatedExecutor. successRate is clamped to
// [0,1]. A nil rng uses a randomly seeded source.
func NewSimulatedExecutor(latency time.Duration, successRate float64, rng *rand.Rand) *SimulatedExecutor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	successRate = min(max(successRate, 0), 1)
	return &SimulatedExecutor{latency: latency, successRate: successRate, rng: rng}
}

// Type returns "simulated".
func (s *SimulatedExecutor) Type() string { return "simulated" }

// Execute waits for the configured latency, then rolls for success.
func (s *SimulatedExecutor) Execute(ctx context.Context, itemID int) (string, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll >= s.successRate {
		return "", ErrItemFailed
	}
	return fmt.Sprintf("processed item %d", itemID), nil
}
