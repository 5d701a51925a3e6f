// Package clock implements the lazy two-sided countdown used to time a game.
// No background goroutine runs; elapsed time is folded in only when the
// caller samples or mutates the clock.
package clock

import (
	"time"

	"github.com/example/chess-session-core/internal/v1/chess"
)

// InitialBudget is the per-side starting allowance: 3 minutes.
const InitialBudget = 180_000 * time.Millisecond

// Clock tracks remaining time for both sides of one game.
type Clock struct {
	whiteMs    int64
	blackMs    int64
	activeSide chess.Color // empty once frozen
	lastTickAt time.Time
	ticking    bool
}

// New starts a clock with the active side to move and the full initial
// budget on both sides.
func New(now time.Time, startingSide chess.Color) *Clock {
	return &Clock{
		whiteMs:    InitialBudget.Milliseconds(),
		blackMs:    InitialBudget.Milliseconds(),
		activeSide: startingSide,
		lastTickAt: now,
		ticking:    true,
	}
}

// Sample folds elapsed wall-clock time into the active side's counter,
// flooring at zero, and advances lastTickAt to now. Idempotent when called
// repeatedly with non-decreasing now.
func (c *Clock) Sample(now time.Time) {
	if !c.ticking {
		return
	}
	elapsed := now.Sub(c.lastTickAt)
	if elapsed < 0 {
		elapsed = 0
	}
	c.lastTickAt = now

	switch c.activeSide {
	case chess.White:
		c.whiteMs -= elapsed.Milliseconds()
		if c.whiteMs < 0 {
			c.whiteMs = 0
		}
	case chess.Black:
		c.blackMs -= elapsed.Milliseconds()
		if c.blackMs < 0 {
			c.blackMs = 0
		}
	}
}

// Switch samples the active side, then hands the clock to the other side.
// Called atomically with a successful move.
func (c *Clock) Switch(now time.Time) {
	c.Sample(now)
	if !c.ticking {
		return
	}
	if c.activeSide == chess.White {
		c.activeSide = chess.Black
	} else {
		c.activeSide = chess.White
	}
}

// Freeze stops the clock. Further Sample calls are no-ops.
func (c *Clock) Freeze() {
	c.ticking = false
	c.activeSide = ""
}

// WhiteMs returns white's remaining milliseconds as of the last sample.
func (c *Clock) WhiteMs() int64 { return c.whiteMs }

// BlackMs returns black's remaining milliseconds as of the last sample.
func (c *Clock) BlackMs() int64 { return c.blackMs }

// ActiveSide returns the side currently being decremented, or "" when frozen.
func (c *Clock) ActiveSide() chess.Color { return c.activeSide }

// TimedOut reports whether sampling at now would leave either side's clock
// at or below zero, and which side ran out.
func (c *Clock) TimedOut(now time.Time) (out bool, side chess.Color) {
	c.Sample(now)
	if c.whiteMs <= 0 {
		return true, chess.White
	}
	if c.blackMs <= 0 {
		return true, chess.Black
	}
	return false, ""
}
