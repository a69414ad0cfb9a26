package page

import "github.com/cloudcompute/webclient/internal/models"

// Subscribe returns a channel that receives the page state after every change,
// starting with the current one. Only the latest state is buffered; a slow
// reader skips intermediate snapshots. The channel is closed by cancel or Close.
func (c *Controller) Subscribe() (<-chan models.PageState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan models.PageState, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.stateLocked()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
	return ch, cancel
}

func (c *Controller) broadcastLocked() {
	if len(c.subs) == 0 {
		return
	}
	st := c.stateLocked()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
			// replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
