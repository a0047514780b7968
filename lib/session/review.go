package session

import (
	"errors"
	"fmt"
	"time"

	"booth/lib/compose"
	"booth/lib/filter"
)

// reviewMode maps the two guest-facing toggles onto the review behavior.
// With both off, a configured default filter still gets applied silently.
func (c *Controller) reviewMode() ReviewMode {
	switch {
	case c.cfg.OfferRetake:
		return ReviewRetakeFilter
	case c.cfg.OfferFilter:
		return ReviewFilterOnly
	case c.cfg.DefaultFilter != "" && c.cfg.DefaultFilter != filter.None:
		return ReviewSilentFilter
	default:
		return ReviewDirect
	}
}

// review runs after the last slot fills. Interactive modes hold the session
// until the guest proceeds or the window expires; expiry behaves exactly
// like proceed.
func (c *Controller) review() {
	mode := c.reviewMode()
	c.setState(ReviewPending)
	c.emit(Event{Review: &ReviewEvent{Mode: mode, Window: c.cfg.ReviewWindow}})
	c.log.Info("review", "mode", mode)

	switch mode {
	case ReviewDirect:
	case ReviewSilentFilter:
		c.applyFilters()
	default:
		if err := c.reviewLoop(); err != nil {
			c.sequenceFailed(err)
			return
		}
		if c.cfg.OfferFilter || c.cfg.DefaultFilter != "" {
			c.applyFilters()
		}
	}

	c.composeAsync()
	c.setState(Idle)
}

func (c *Controller) reviewLoop() error {
	for {
		again, err := c.reviewWindow()
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
	}
}

// reviewWindow runs one timed review round. It returns true when a retake
// consumed the round and a fresh window is owed.
func (c *Controller) reviewWindow() (bool, error) {
	timer := time.NewTimer(c.cfg.ReviewWindow)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return false, nil
		case <-c.done:
			return false, errStopped
		case ev := <-c.camEvents():
			if ev.Disconnect != nil {
				return false, errDisconnected
			}
			if ev.PhotoReady != nil {
				c.releaseStray(ev.PhotoReady)
			}
		case <-c.timeouts:
			// stale
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdProceed:
				cmd.err <- nil
				return false, nil
			case cmdFilter:
				cmd.err <- c.chooseFilter(cmd.slot, cmd.filter)
			case cmdRetake:
				if !c.cfg.OfferRetake {
					cmd.err <- fmt.Errorf("session: retake not offered")
					continue
				}
				if !c.tracker.ValidSlot(cmd.slot) {
					cmd.err <- fmt.Errorf("session: no photo in slot %d", cmd.slot)
					continue
				}
				cmd.err <- nil
				timer.Stop()
				return true, c.retakeSlot(cmd.slot)
			case cmdStart:
				cmd.start <- StartStatus{Reason: "review in progress"}
			}
		}
	}
}

func (c *Controller) chooseFilter(slot int, kind string) error {
	if !c.cfg.OfferFilter {
		return fmt.Errorf("session: filter choice not offered")
	}
	if !c.tracker.ValidSlot(slot) {
		return fmt.Errorf("session: no photo in slot %d", slot)
	}
	switch kind {
	case filter.None, filter.Grayscale, filter.Sepia:
	default:
		return fmt.Errorf("session: unknown filter %q", kind)
	}
	c.filters[slot] = kind
	return nil
}

// retakeSlot recaptures one slot in place. A failed retake keeps the
// original photo and drops back into review.
func (c *Controller) retakeSlot(slot int) error {
	err := c.captureOne(slot, true)
	switch {
	case err == nil:
	case errors.Is(err, errStopped), errors.Is(err, errDisconnected):
		return err
	default:
		c.log.Warn("retake failed, keeping original", "slot", slot, "error", err)
		c.status("retake failed; keeping the original photo")
	}
	c.stopLive()
	c.setState(ReviewPending)
	return nil
}

// applyFilters rewrites each filled slot through its chosen filter (or the
// configured default). A filter failure leaves the original photo in place.
func (c *Controller) applyFilters() {
	for _, s := range c.tracker.Slots() {
		if !s.Filled {
			continue
		}
		kind, ok := c.filters[s.Index]
		if !ok {
			kind = c.cfg.DefaultFilter
		}
		if kind == "" || kind == filter.None {
			continue
		}
		out, err := c.cfg.Filter.Apply(s.Path, kind, c.cfg.FilterIntensity)
		if err != nil {
			c.log.Warn("filter failed, using original", "slot", s.Index, "filter", kind, "error", err)
			continue
		}
		c.tracker.SetPath(s.Index, out)
	}
}

// composeAsync renders the final composition off the state machine
// goroutine so the booth is immediately ready for the next group.
func (c *Controller) composeAsync() {
	tpl := c.cfg.Template
	paths := c.tracker.Paths()
	c.composeWG.Add(1)
	go func() {
		defer c.composeWG.Done()
		path, err := compose.Compose(tpl, paths, compose.Options{
			EventDir:  c.cfg.EventDir,
			EventName: c.cfg.EventName,
			Logger:    c.log,
		})
		if err != nil {
			c.log.Error("composition failed", "error", err)
		} else {
			c.log.Info("composition written", "path", path)
		}
		c.emit(Event{Composed: &ComposedEvent{Path: path, Err: err}})
	}()
}
