// Package presence tracks how long a room has been on air.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aura-rooms/backend/internal/session"
	"github.com/aura-rooms/backend/pkg/clock"
)

// Zero is the display shown while the room is off air.
const Zero = "00:00:00"

// Tracker measures elapsed on-air time. Each active period counts from zero.
type Tracker struct {
	clock    clock.Clock
	onUpdate func(display string)

	mu     sync.Mutex
	active bool
	start  time.Time
}

// NewTracker creates an inactive tracker. onUpdate, if non-nil, receives the
// display on activation, on every second while active and on reset.
func NewTracker(clk clock.Clock, onUpdate func(display string)) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tracker{clock: clk, onUpdate: onUpdate}
}

// SetActive starts or stops the on-air period. Repeated calls with the same
// value are ignored, so the start time is captured only once per period.
func (t *Tracker) SetActive(active bool) {
	t.mu.Lock()
	if t.active == active {
		t.mu.Unlock()
		return
	}
	t.active = active
	if active {
		t.start = t.clock.Now()
	} else {
		t.start = time.Time{}
	}
	t.mu.Unlock()
	t.push(Zero)
}

// Observe follows session transitions: the room is on air while the session is active.
func (t *Tracker) Observe(tr session.Transition) {
	t.SetActive(tr.To == session.StateActive)
}

// Active reports whether an on-air period is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Elapsed returns the time since the current period started, or zero when off air.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return 0
	}
	d := t.clock.Now().Sub(t.start)
	if d < 0 {
		return 0
	}
	return d
}

// Display returns Elapsed formatted as HH:MM:SS.
func (t *Tracker) Display() string {
	return FormatElapsed(t.Elapsed())
}

// Run pushes the display once per second while active, until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if t.Active() {
				t.push(t.Display())
			}
		}
	}
}

func (t *Tracker) push(display string) {
	if t.onUpdate != nil {
		t.onUpdate(display)
	}
}

// FormatElapsed renders d as zero-padded HH:MM:SS. Hours are not capped at 24.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
