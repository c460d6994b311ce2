package engine

import (
	"fmt"
	"sync"
	"time"
)

// runtimeStats records throughput of the most recent completion
type runtimeStats struct {
	mu             sync.RWMutex
	completions    int
	prefillTokens  int
	prefillElapsed time.Duration
	decodeTokens   int
	decodeElapsed  time.Duration
	// Rates reported directly by the server take precedence when set
	prefillRate float64
	decodeRate  float64
}

func (s *runtimeStats) record(prefillTokens int, prefillElapsed time.Duration, decodeTokens int, decodeElapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions++
	s.prefillTokens = prefillTokens
	s.prefillElapsed = prefillElapsed
	s.decodeTokens = decodeTokens
	s.decodeElapsed = decodeElapsed
	s.prefillRate = 0
	s.decodeRate = 0
}

func (s *runtimeStats) recordRates(prefillRate, decodeRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefillRate = prefillRate
	s.decodeRate = decodeRate
}

func rate(tokens int, elapsed time.Duration) float64 {
	if tokens <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}

// Text formats the stats the way the debug accessor exposes them
func (s *runtimeStats) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.completions == 0 {
		return "prefill: n/a, decode: n/a (no completions yet)"
	}

	prefill := s.prefillRate
	if prefill == 0 {
		prefill = rate(s.prefillTokens, s.prefillElapsed)
	}
	decode := s.decodeRate
	if decode == 0 {
		decode = rate(s.decodeTokens, s.decodeElapsed)
	}

	return fmt.Sprintf("prefill: %.1f tokens/sec, decode: %.1f tokens/sec", prefill, decode)
}
