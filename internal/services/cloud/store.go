// Package cloud is the append-only remote store readings are pushed to.
package cloud

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

// Store pushes one reading into the namespace of identity. A nil error means
// the backend confirmed the write.
type Store interface {
	Push(ctx context.Context, identity string, r model.Reading) error
}

// Health is implemented by stores that can say something about their backend.
type Health interface {
	Connected() bool
	LastErrorAge() time.Duration
}

var ErrConfig = errors.New("cloud store config incomplete")

func newPushID() string { return uuid.NewString() }

// writeTracker remembers when the last write failed, for /healthz and /readyz.
type writeTracker struct {
	mu      sync.RWMutex
	lastErr time.Time
	lastOK  time.Time
	writes  int64
	fails   int64
}

func newWriteTracker() *writeTracker {
	return &writeTracker{lastErr: time.Now().Add(-24 * time.Hour)}
}

func (w *writeTracker) observe(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.lastErr = time.Now()
		w.fails++
		return
	}
	w.lastOK = time.Now()
	w.writes++
}

// reachable reports whether the backend took the latest write. Before any
// write it is assumed reachable.
func (w *writeTracker) reachable() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fails == 0 || w.lastOK.After(w.lastErr)
}

func (w *writeTracker) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return time.Since(w.lastErr)
}

func (w *writeTracker) counts() (writes, fails int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.writes, w.fails
}
