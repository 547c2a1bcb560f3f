package game

import "time"

// Clock schedules delayed callbacks; tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// autoplayRun is guarded by Controller.mu. gen invalidates timers armed by an earlier
// run so a late tick never advances a stopped or restarted autoplay.
type autoplayRun struct {
	gen   uint64
	timer Timer
}

// SetAutoplay starts or stops stepping through moves. Each tick shows the next move and
// re-arms after the configured delay; autoplay stops by itself at the end of the move
// list or when the engine leaves analyze mode.
func (c *Controller) SetAutoplay(on bool) {
	c.mu.Lock()
	if c.autoplay.timer != nil {
		c.autoplay.timer.Stop()
		c.autoplay.timer = nil
	}
	c.autoplay.gen++
	gen := c.autoplay.gen
	c.state.Autoplay = on
	if on {
		c.autoplay.timer = c.clock.AfterFunc(c.delay, func() { c.autoplayTick(gen) })
	}
	snapshot := c.state
	c.mu.Unlock()

	c.changes.Publish(string(StateAutoplay), snapshot)
}

func (c *Controller) autoplayTick(gen uint64) {
	c.mu.Lock()
	if gen != c.autoplay.gen || !c.state.Autoplay {
		c.mu.Unlock()
		return
	}
	c.autoplay.timer = nil
	c.mu.Unlock()

	if c.engine.Mode() != ModeAnalyze {
		c.stopAutoplay(gen, "mode changed")
		return
	}
	if !c.engine.ShowNext() {
		c.stopAutoplay(gen, "end of move list")
		return
	}

	c.mu.Lock()
	if gen == c.autoplay.gen && c.state.Autoplay {
		c.autoplay.timer = c.clock.AfterFunc(c.delay, func() { c.autoplayTick(gen) })
	}
	c.mu.Unlock()
}

func (c *Controller) stopAutoplay(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.autoplay.gen || !c.state.Autoplay {
		c.mu.Unlock()
		return
	}
	c.autoplay.gen++
	c.state.Autoplay = false
	snapshot := c.state
	c.mu.Unlock()

	c.logger.Debug("autoplay stopped", "reason", reason)
	c.changes.Publish(string(StateAutoplay), snapshot)
}
