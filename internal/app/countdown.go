package app

import "time"

// Timing holds the per-question durations of an attempt.
type Timing struct {
	QuestionTime   time.Duration
	Tick           time.Duration
	FeedbackWindow time.Duration
	PersistTimeout time.Duration
}

// DefaultTiming is 30 one-second ticks per question and a 1.5s feedback window.
func DefaultTiming() Timing {
	return Timing{
		QuestionTime:   30 * time.Second,
		Tick:           time.Second,
		FeedbackWindow: 1500 * time.Millisecond,
		PersistTimeout: 10 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.QuestionTime <= 0 {
		t.QuestionTime = def.QuestionTime
	}
	if t.Tick <= 0 {
		t.Tick = def.Tick
	}
	if t.FeedbackWindow <= 0 {
		t.FeedbackWindow = def.FeedbackWindow
	}
	if t.PersistTimeout <= 0 {
		t.PersistTimeout = def.PersistTimeout
	}
	return t
}

// budget is the number of ticks a question gets before time runs out.
func (t Timing) budget() int {
	n := int(t.QuestionTime / t.Tick)
	if n < 1 {
		n = 1
	}
	return n
}

// countdown is the per-question tick source. It is not safe for concurrent
// use; the owning attempt serializes access under its own mutex and decides
// whether a fired tick is still current.
type countdown struct {
	clock     Clock
	interval  time.Duration
	budget    int
	remaining int
	timer     Timer
}

func newCountdown(clock Clock, timing Timing) *countdown {
	return &countdown{
		clock:     clock,
		interval:  timing.Tick,
		budget:    timing.budget(),
		remaining: timing.budget(),
	}
}

// restart stops any pending tick, refills the budget and schedules the first tick.
func (c *countdown) restart(fire func()) {
	c.stop()
	c.remaining = c.budget
	c.schedule(fire)
}

// schedule arms the next tick.
func (c *countdown) schedule(fire func()) {
	c.timer = c.clock.AfterFunc(c.interval, fire)
}

// decrement consumes one tick and reports whether time ran out.
func (c *countdown) decrement() bool {
	if c.remaining > 0 {
		c.remaining--
	}
	c.timer = nil
	return c.remaining == 0
}

func (c *countdown) stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
