// Package coordinator decides, for every reading, whether it goes straight to
// the cloud or into the local queue, and drains the queue when possible.
//
// A reading is always in exactly one place: the local queue or confirmed in
// the cloud store. Entries leave the queue only after the store confirmed the
// write.
package coordinator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/cloud"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/connectivity"
)

// Queue is one identity's local buffer.
type Queue interface {
	Enqueue(model.Reading) error
	DrainAll() (iter.Seq2[string, model.Reading], error)
	Get(key string) (model.Reading, bool, error)
	Remove(key string) error
	IsEmpty() (bool, error)
	Len() (int, error)
}

type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeBuffered Outcome = "buffered"
)

type Result string

const (
	ResultNothingToSync  Result = "nothing to sync"
	ResultNoConnectivity Result = "no connectivity"
	ResultCompleted      Result = "completed"
)

// Report describes one SyncPending pass. Pending is what is left queued.
type Report struct {
	Result  Result `json:"result"`
	Total   int    `json:"total"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
	Pending int    `json:"pending"`
}

type Options struct {
	Identity     string
	Notifier     Notifier
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	PollInterval time.Duration // Run: probe polling period
	MaxBackoff   time.Duration // Run: ceiling between retry passes
}

type Coordinator struct {
	store    cloud.Store
	queue    Queue
	probe    connectivity.Probe
	identity string
	notifier Notifier
	log      *slog.Logger
	metrics  *observability.Metrics

	pollInterval time.Duration
	maxBackoff   time.Duration

	// mu makes enqueue and each entry's get/push/remove atomic per key.
	mu sync.Mutex
	// syncMu allows one drain pass at a time.
	syncMu  sync.Mutex
	trigger chan struct{}
}

func New(store cloud.Store, queue Queue, probe connectivity.Probe, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notice) {})
	}
	opts.Identity = model.NormalizeIdentity(opts.Identity)
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxBackoff < opts.PollInterval {
		opts.MaxBackoff = 2 * time.Minute
	}
	return &Coordinator{
		store:        store,
		queue:        queue,
		probe:        probe,
		identity:     opts.Identity,
		notifier:     opts.Notifier,
		log:          opts.Logger.With("component", "coordinator"),
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		maxBackoff:   opts.MaxBackoff,
		trigger:      make(chan struct{}, 1),
	}
}

// ===== Record =====

// Record persists r: to the cloud when online and the write succeeds,
// otherwise to the local queue. Only a local storage fault is returned as an
// error, since that would mean losing the reading.
func (c *Coordinator) Record(ctx context.Context, r model.Reading) (Outcome, error) {
	if !c.probe.HasInternet() {
		return c.buffer(r, "offline")
	}

	r.SyncState = model.SyncOnline
	if err := c.store.Push(ctx, c.identity, r); err != nil {
		c.log.Warn("cloud write failed, buffering", "key", r.Key(), "err", err)
		return c.buffer(r, "cloud write failed")
	}
	c.metrics.Reading(string(OutcomeSynced))
	c.log.Debug("reading synced", "key", r.Key(), "value", r.Value, "tag", r.EventTag)
	return OutcomeSynced, nil
}

func (c *Coordinator) buffer(r model.Reading, cause string) (Outcome, error) {
	r.SyncState = model.SyncOfflinePending

	c.mu.Lock()
	err := c.queue.Enqueue(r)
	c.mu.Unlock()
	if err != nil {
		c.metrics.Reading("error")
		c.log.Error("could not buffer reading", "key", r.Key(), "err", err)
		return "", fmt.Errorf("buffer reading %s: %w", r.Key(), err)
	}

	c.metrics.Reading(string(OutcomeBuffered))
	c.notifier.Notify(bufferedNotice(r, cause))
	return OutcomeBuffered, nil
}

// ===== Sync =====

// SyncPending pushes every queued entry and removes the ones the store
// confirmed. A failing entry stays queued and does not stop the others.
func (c *Coordinator) SyncPending(ctx context.Context) (Report, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	empty, err := c.queue.IsEmpty()
	if err != nil {
		return Report{}, err
	}
	if empty {
		c.metrics.SetPending(0)
		c.notifier.Notify(Notice{Kind: NoticeNothingToSync, Message: "nothing to sync"})
		return Report{Result: ResultNothingToSync}, nil
	}
	if !c.probe.HasInternet() {
		n, err := c.queue.Len()
		if err != nil {
			return Report{}, err
		}
		c.notifier.Notify(Notice{Kind: NoticeNoConnectivity, Message: "no connectivity, readings stay queued", Total: n})
		return Report{Result: ResultNoConnectivity, Pending: n}, nil
	}

	seq, err := c.queue.DrainAll()
	if err != nil {
		return Report{}, err
	}
	// undecodable rows are never yielded, so they are not part of the pass
	var keys []string
	for key := range seq {
		keys = append(keys, key)
	}
	total := len(keys)
	c.notifier.Notify(Notice{
		Kind:    NoticeSyncStarted,
		Message: fmt.Sprintf("syncing %d pending readings", total),
		Total:   total,
	})

	rep := Report{Result: ResultCompleted, Total: total}
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		switch c.syncEntry(ctx, key) {
		case entrySynced:
			rep.Synced++
		case entrySkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}

	if rep.Pending, err = c.queue.Len(); err != nil {
		return rep, err
	}
	c.metrics.SetPending(rep.Pending)
	c.log.Info("sync pass done", "synced", rep.Synced, "failed", rep.Failed, "skipped", rep.Skipped, "pending", rep.Pending)
	c.notifier.Notify(doneNotice(rep.Synced, total))
	return rep, ctx.Err()
}

type entryResult int

const (
	entrySynced entryResult = iota
	entrySkipped
	entryFailed
)

// syncEntry re-reads key under the lock so that an entry removed or
// overwritten since the snapshot is handled with its current content.
func (c *Coordinator) syncEntry(ctx context.Context, key string) entryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok, err := c.queue.Get(key)
	if err != nil {
		c.log.Error("could not read queued entry", "key", key, "err", err)
		c.metrics.Drained("failed")
		return entryFailed
	}
	if !ok {
		c.metrics.Drained("skipped")
		return entrySkipped
	}

	r.SyncState = model.SyncOfflineSynced
	if err := c.store.Push(ctx, c.identity, r); err != nil {
		c.log.Warn("sync write failed, entry stays queued", "key", key, "err", err)
		c.metrics.Drained("failed")
		return entryFailed
	}
	if err := c.queue.Remove(key); err != nil {
		// already in the cloud; the next pass pushes it again
		c.log.Error("entry uploaded but not removed", "key", key, "err", err)
		c.metrics.Drained("failed")
		return entryFailed
	}
	c.metrics.Drained("synced")
	return entrySynced
}
