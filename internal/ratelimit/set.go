package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/pkg/clock"
)

// Policies configures every limiter in a Set.
type Policies struct {
	Chat      Policy
	Heartbeat Policy
	StreamOps Policy
	Status    Policy
}

// NewMemorySet builds a Set of in-process limiters.
func NewMemorySet(p Policies, clk clock.Clock) (Set, error) {
	var s Set
	for _, e := range p.entries(&s) {
		l, err := NewMemory(e.policy, clk)
		if err != nil {
			return Set{}, fmt.Errorf("%s limiter: %w", e.name, err)
		}
		*e.dst = l
	}
	return s, nil
}

// NewRedisSet builds a Set of limiters shared across instances through Redis.
func NewRedisSet(client *redis.Client, p Policies, clk clock.Clock, logger *zap.Logger) (Set, error) {
	var s Set
	for _, e := range p.entries(&s) {
		l, err := NewRedis(client, e.name, e.policy, clk, logger)
		if err != nil {
			return Set{}, fmt.Errorf("%s limiter: %w", e.name, err)
		}
		*e.dst = l
	}
	return s, nil
}

type setEntry struct {
	name   string
	policy Policy
	dst    *Limiter
}

func (p Policies) entries(s *Set) []setEntry {
	return []setEntry{
		{"chat", p.Chat, &s.Chat},
		{"heartbeat", p.Heartbeat, &s.Heartbeat},
		{"streamops", p.StreamOps, &s.StreamOps},
		{"status", p.Status, &s.Status},
	}
}
