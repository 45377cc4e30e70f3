package audit

import (
	"context"
	"sync"
)

// queueSize bounds pending writes. Entries beyond it are dropped so a slow
// disk never delays a hardware command.
const queueSize = 256

// Logger is the subset of logging.Logger the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes entries asynchronously on a single goroutine, which
// matches SQLite's single-writer model. A nil *Recorder ignores Record.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan *Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop it.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues e. It never blocks; it reports whether e was queued.
func (r *Recorder) Record(e *Entry) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		r.logger.Warn("command journal queue full, dropping entry", "action", e.Action)
		return false
	}
}

// Repository returns the underlying store for reads.
func (r *Recorder) Repository() Repository {
	if r == nil {
		return nil
	}
	return r.repo
}

// Close stops accepting entries and waits until queued ones are written.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.repo.Create(context.Background(), e); err != nil {
			r.logger.Error("command journal write failed", "action", e.Action, "error", err)
		}
	}
}
