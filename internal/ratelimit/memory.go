package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aura-rooms/backend/pkg/clock"
)

// Memory is an in-process sliding-window limiter. Windows are pruned lazily on
// each call; there is no background sweeper.
type Memory struct {
	max    int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemory creates an in-memory limiter admitting p.Max requests per p.Window.
func NewMemory(p Policy, clk clock.Clock) (*Memory, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{
		max:     p.Max,
		window:  p.Window,
		clock:   clk,
		windows: make(map[string][]time.Time),
	}, nil
}

// Allow records an admission for key and returns true if fewer than max
// admissions happened in the trailing window. A rejected call records nothing.
func (m *Memory) Allow(_ context.Context, key string) bool {
	now := m.clock.Now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.windows[key]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= m.max {
		m.windows[key] = ts
		return false
	}
	if len(ts) == 0 {
		ts = make([]time.Time, 0, m.max)
	}
	m.windows[key] = append(ts, now)
	return true
}

// Reset clears recorded admissions for key.
func (m *Memory) Reset(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
}

// ResetAll clears every key.
func (m *Memory) ResetAll(_ context.Context) {
	m.mu.Lock()
	m.windows = make(map[string][]time.Time)
	m.mu.Unlock()
}
