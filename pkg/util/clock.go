package util

import "time"

// Clock measures wall time for run reports; the simulation itself runs on steps
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// FixedClock advances by Step on every Now call. Used in tests.
type FixedClock struct {
	T    time.Time
	Step time.Duration
}

func (c *FixedClock) Now() time.Time {
	t := c.T
	c.T = c.T.Add(c.Step)
	return t
}

func (c *FixedClock) Since(t time.Time) time.Duration { return c.T.Sub(t) }
