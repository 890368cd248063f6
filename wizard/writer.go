package wizard

import (
	"context"
	"sync"
	"time"

	stepflow "github.com/goliatone/go-stepflow"
)

// DefaultWriteTimeout bounds a single background store call.
const DefaultWriteTimeout = 5 * time.Second

// writer applies snapshot writes for one key in the background. Writes that
// arrive while one is in flight collapse into the latest.
type writer struct {
	store   SnapshotStore
	key     string
	timeout time.Duration
	logger  stepflow.Logger

	mu      sync.Mutex
	pending *writeOp
	running bool
	idle    chan struct{}
}

// writeOp saves snap, or deletes the key when snap is nil.
type writeOp struct {
	snap *Snapshot
}

func newWriter(store SnapshotStore, key string, logger stepflow.Logger) *writer {
	return &writer{store: store, key: key, timeout: DefaultWriteTimeout, logger: logger}
}

func (w *writer) save(snap Snapshot) {
	w.enqueue(writeOp{snap: &snap})
}

func (w *writer) delete() {
	w.enqueue(writeOp{})
}

func (w *writer) enqueue(op writeOp) {
	if w == nil || w.store == nil {
		return
	}
	w.mu.Lock()
	w.pending = &op
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.idle = make(chan struct{})
	w.mu.Unlock()
	go w.drain()
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		op := w.pending
		w.pending = nil
		if op == nil {
			w.running = false
			close(w.idle)
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
		w.apply(op)
	}
}

func (w *writer) apply(op *writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if op.snap == nil {
		if err := w.store.Delete(ctx, w.key); err != nil {
			w.logger.Warn("snapshot delete failed key=%s: %v", w.key, err)
		}
		return
	}
	if err := w.store.Save(ctx, w.key, *op.snap); err != nil {
		w.logger.Warn("snapshot save failed key=%s: %v", w.key, err)
	}
}

// flush waits until every queued write has been applied.
func (w *writer) flush(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
