package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-rooms/backend/pkg/clock"
)

func TestNewMemorySet(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC))
	s, err := NewMemorySet(Policies{
		Chat:      Policy{Max: 1, Window: time.Second},
		Heartbeat: Policy{Max: 2, Window: time.Second},
		StreamOps: Policy{Max: 3, Window: time.Second},
		Status:    Policy{Max: 4, Window: time.Second},
	}, clk)
	require.NoError(t, err)

	ctx := context.Background()
	for _, tc := range []struct {
		l   Limiter
		max int
	}{{s.Chat, 1}, {s.Heartbeat, 2}, {s.StreamOps, 3}, {s.Status, 4}} {
		for i := 0; i < tc.max; i++ {
			assert.True(t, tc.l.Allow(ctx, "k"))
		}
		assert.False(t, tc.l.Allow(ctx, "k"))
	}
}

func TestNewMemorySetRejectsInvalidPolicy(t *testing.T) {
	_, err := NewMemorySet(Policies{
		Chat:      Policy{Max: 1, Window: time.Second},
		Heartbeat: Policy{Max: 1, Window: time.Second},
		StreamOps: Policy{Max: 0, Window: time.Second},
		Status:    Policy{Max: 1, Window: time.Second},
	}, nil)
	require.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Contains(t, err.Error(), "streamops")
}
