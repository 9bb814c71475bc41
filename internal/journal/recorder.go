package journal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/reset-core/internal/audio"
)

const (
	defaultBuffer = 128

	// drainTimeout bounds the final flush after Run's context ends.
	drainTimeout = 2 * time.Second
)

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is an audio.Observer that writes every resolved command to a
// Repository.
//
// OnCommand runs on the processor goroutine, so it only enqueues; Run does
// the writes. When the buffer is full the record is dropped and counted.
type Recorder struct {
	repo    Repository
	queue   chan Entry
	logger  Logger
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder with the given buffer size (0 = default).
func NewRecorder(repo Repository, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Must be called before Run.
func (r *Recorder) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// Dropped returns how many records were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// OnSnapshot implements audio.Observer.
func (r *Recorder) OnSnapshot(*audio.Snapshot) {}

// OnEvent implements audio.Observer.
func (r *Recorder) OnEvent(audio.Event) {}

// OnCommand implements audio.Observer.
func (r *Recorder) OnCommand(rec audio.CommandRecord) {
	e, err := EntryFromRecord(rec)
	if err != nil {
		r.logger.Warn("journal entry not encodable", "id", rec.ID, "error", err)
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal buffer full, dropping entry", "id", rec.ID, "kind", e.Kind)
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// still buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Error("writing journal entry", "id", e.ID, "error", err)
	}
}
