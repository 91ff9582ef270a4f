package vkframe

import "time"

// FrameClock measures per-frame delta time and total running time minus pauses.
type FrameClock struct {
	now func() time.Time

	baseTime   time.Time
	pausedTime time.Duration
	stopTime   time.Time
	prevTime   time.Time
	currTime   time.Time
	delta      time.Duration
	stopped    bool
}

type ClockOption func(*FrameClock)

// WithNow replaces the wall clock, mostly for tests.
func WithNow(now func() time.Time) ClockOption {
	return func(c *FrameClock) { c.now = now }
}

func NewFrameClock(opts ...ClockOption) *FrameClock {
	c := &FrameClock{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.Reset()
	return c
}

// Reset rebases the clock to now, clears accumulated pause time and unpauses.
func (c *FrameClock) Reset() {
	t := c.now()
	c.baseTime = t
	c.prevTime = t
	c.currTime = t
	c.stopTime = time.Time{}
	c.pausedTime = 0
	c.delta = 0
	c.stopped = false
}

// Start resumes a stopped clock; the stopped interval does not count toward TotalTime.
func (c *FrameClock) Start() {
	if !c.stopped {
		return
	}
	t := c.now()
	c.pausedTime += t.Sub(c.stopTime)
	c.prevTime = t
	c.currTime = t
	c.stopTime = time.Time{}
	c.stopped = false
}

func (c *FrameClock) Stop() {
	if c.stopped {
		return
	}
	t := c.now()
	c.delta = max(t.Sub(c.prevTime), 0)
	c.stopTime = t
	c.stopped = true
}

func (c *FrameClock) Tick() {
	if c.stopped {
		c.delta = 0
		return
	}
	c.currTime = c.now()
	// Timer skew across cores can run the clock backwards.
	c.delta = max(c.currTime.Sub(c.prevTime), 0)
	c.prevTime = c.currTime
}

func (c *FrameClock) TotalTime() time.Duration {
	end := c.currTime
	if c.stopped {
		end = c.stopTime
	}
	return max(end.Sub(c.baseTime)-c.pausedTime, 0)
}

func (c *FrameClock) DeltaTime() time.Duration { return c.delta }
func (c *FrameClock) Stopped() bool            { return c.stopped }

func (c *FrameClock) DeltaSeconds() float32 { return float32(c.delta.Seconds()) }
func (c *FrameClock) TotalSeconds() float32 { return float32(c.TotalTime().Seconds()) }
