// Package ratelimit implements sliding-window admission control keyed by an
// arbitrary identity (user, room, connection).
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrRateLimited is returned by callers that reject an operation after Allow
	// reported no capacity. It is never shown to end users.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidPolicy is returned when a limiter is built with non-positive parameters.
	ErrInvalidPolicy = errors.New("rate limit: max and window must be positive")
)

// Limiter admits at most a fixed number of requests per key within a trailing window.
// Allow must check and record atomically per key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Reset(ctx context.Context, key string)
	ResetAll(ctx context.Context)
}

// Policy is the configuration of one limiter.
type Policy struct {
	Max    int
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Max <= 0 || p.Window <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Set groups the limiters that protect room traffic.
type Set struct {
	Chat      Limiter // chat sends, keyed per user and room
	Heartbeat Limiter // presence heartbeats, keyed per user and room
	StreamOps Limiter // provider create/delete, keyed per room
	Status    Limiter // provider status polls, keyed per room
}

// Key builds a limiter key from parts, e.g. Key("chat", roomID, userID).
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
