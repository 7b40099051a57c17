package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Trigger asks Run for an immediate sync pass. It never blocks.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run drains the queue in the background until ctx is done: right away on an
// offline to online edge or a Trigger, and otherwise while entries remain,
// spacing retries with exponential backoff.
func (c *Coordinator) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInterval
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var retryAt time.Time
	pass := func(why string) {
		c.log.Debug("auto sync", "why", why)
		rep, err := c.SyncPending(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			c.log.Error("auto sync failed", "err", err)
			retryAt = time.Now().Add(bo.NextBackOff())
		case rep.Result == ResultCompleted && rep.Pending > 0:
			retryAt = time.Now().Add(bo.NextBackOff())
		case rep.Result == ResultCompleted, rep.Result == ResultNothingToSync:
			bo.Reset()
			retryAt = time.Time{}
		}
	}

	wasOnline := c.probe.HasInternet()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.trigger:
			pass("trigger")
		case now := <-ticker.C:
			online := c.probe.HasInternet()
			switch {
			case online && !wasOnline:
				bo.Reset()
				pass("back online")
			case online && !now.Before(retryAt):
				if empty, err := c.queue.IsEmpty(); err == nil && !empty {
					pass("pending entries")
				}
			}
			wasOnline = online
		}
	}
}
