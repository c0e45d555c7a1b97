package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-rooms/backend/pkg/clock"
)

func newMemory(t *testing.T, max int, window time.Duration) (*Memory, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	l, err := NewMemory(Policy{Max: max, Window: window}, clk)
	require.NoError(t, err)
	return l, clk
}

func TestNewMemoryRejectsInvalidPolicy(t *testing.T) {
	_, err := NewMemory(Policy{Max: 0, Window: time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewMemory(Policy{Max: 1, Window: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestMemoryWindow(t *testing.T) {
	ctx := context.Background()
	l, clk := newMemory(t, 3, 10*time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "chat:u1"), "call %d", i+1)
		clk.Advance(time.Second)
	}
	assert.False(t, l.Allow(ctx, "chat:u1"), "fourth call within window")

	// 10s after the first admission its slot frees up.
	clk.Advance(7 * time.Second)
	assert.True(t, l.Allow(ctx, "chat:u1"))
	assert.False(t, l.Allow(ctx, "chat:u1"))
}

func TestMemoryRejectionRecordsNothing(t *testing.T) {
	ctx := context.Background()
	l, clk := newMemory(t, 1, 5*time.Second)

	require.True(t, l.Allow(ctx, "k"))
	clk.Advance(4 * time.Second)
	require.False(t, l.Allow(ctx, "k"))

	// Had the rejection been recorded, the window would still be full here.
	clk.Advance(time.Second)
	assert.True(t, l.Allow(ctx, "k"))
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newMemory(t, 1, time.Minute)

	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "b"))
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newMemory(t, 1, time.Minute)

	require.True(t, l.Allow(ctx, "a"))
	require.True(t, l.Allow(ctx, "b"))

	l.Reset(ctx, "a")
	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "b"))

	l.ResetAll(ctx)
	assert.True(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "b"))
}

// With one slot left, simultaneous callers must see exactly one admission.
func TestMemoryRaceFreeAdmission(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 200; round++ {
		l, _ := newMemory(t, 2, time.Minute)
		require.True(t, l.Allow(ctx, "k"))

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]bool, 2)
		)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = l.Allow(ctx, "k")
			}(i)
		}
		close(start)
		wg.Wait()

		admitted := 0
		for _, ok := range results {
			if ok {
				admitted++
			}
		}
		require.Equal(t, 1, admitted, "round %d", round)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chat:room:user", Key("chat", "room", "user"))
}
