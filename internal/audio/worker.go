package audio

import (
	"context"
	"errors"
	"sync/atomic"
)

// NotificationRecorder receives per-notification statistics from a Worker.
// err is nil for decoded notifications and wraps ErrMalformedPayload for
// dropped ones.
type NotificationRecorder interface {
	RecordNotification(kind string, err error)
}

// sender is the Processor side of the inbox.
type sender interface {
	send(ctx context.Context, m Message) error
}

// Worker watches one domain's notification stream and forwards decoded
// events to the Processor.
//
// A Worker never touches registry state. It exits when its context ends,
// when the shared ActiveDomain cell no longer names its domain, or when the
// notification stream closes. The last case is reported to the Processor as
// a WorkerExited carrying ErrSubscriptionClosed.
type Worker struct {
	backend  Backend
	inbox    sender
	cell     *ActiveDomain
	logger   Logger
	recorder NotificationRecorder
	ready    func()

	decoded   atomic.Uint64
	malformed atomic.Uint64
}

// NewWorker creates a Worker that feeds proc.
func NewWorker(backend Backend, proc *Processor, cell *ActiveDomain) *Worker {
	return newWorker(backend, proc, cell)
}

func newWorker(backend Backend, inbox sender, cell *ActiveDomain) *Worker {
	return &Worker{
		backend: backend,
		inbox:   inbox,
		cell:    cell,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (w *Worker) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// SetRecorder sets the notification recorder.
func (w *Worker) SetRecorder(r NotificationRecorder) {
	w.recorder = r
}

// OnSubscribed sets a function run once the notification stream is open and
// before the first notification is read.
func (w *Worker) OnSubscribed(fn func()) {
	w.ready = fn
}

// Decoded returns the number of notifications forwarded as events.
func (w *Worker) Decoded() uint64 { return w.decoded.Load() }

// Malformed returns the number of notifications dropped as undecodable.
func (w *Worker) Malformed() uint64 { return w.malformed.Load() }

// Watch runs the watch loop for domain until it exits.
//
// Returns:
//   - error: nil on deactivation, ctx.Err() on cancellation, or the
//     subscription failure (ErrSubscriptionClosed on connection loss)
func (w *Worker) Watch(ctx context.Context, domain Domain) error {
	ch, err := w.backend.Subscribe(ctx, domain)
	if err != nil {
		w.logger.Error("subscribe failed", "domain", string(domain), "error", err)
		w.exited(domain, err)
		return err
	}

	w.logger.Info("watching notifications", "domain", string(domain))
	if w.ready != nil {
		w.ready()
	}
	err = w.loop(ctx, domain, ch)

	switch {
	case errors.Is(err, ErrSubscriptionClosed):
		w.logger.Warn("notification stream closed", "domain", string(domain))
		w.exited(domain, err)
	default:
		w.logger.Info("stopped watching notifications", "domain", string(domain))
		w.exited(domain, nil)
	}
	return err
}

func (w *Worker) loop(ctx context.Context, domain Domain, ch <-chan Notification) error {
	for {
		if w.cell.Load() != domain {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			if w.cell.Load() != domain {
				return nil
			}
			w.handle(ctx, n)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, n Notification) {
	ev, known, err := DecodeNotification(n)
	if !known {
		w.logger.Debug("ignoring notification", "kind", n.Kind)
		return
	}
	if err != nil {
		w.malformed.Add(1)
		w.record(n.Kind, err)
		w.logger.Warn("dropping malformed notification", "kind", n.Kind, "error", err)
		return
	}

	// Blocks while the inbox is full.
	if err := w.inbox.send(ctx, ev); err != nil {
		return
	}
	w.decoded.Add(1)
	w.record(n.Kind, nil)
}

func (w *Worker) record(kind string, err error) {
	if w.recorder != nil {
		w.recorder.RecordNotification(kind, err)
	}
}

// exited reports the loop's end. It uses a background context so that a
// cancelled watch still reaches the Processor.
func (w *Worker) exited(domain Domain, err error) {
	_ = w.inbox.send(context.Background(), WorkerExited{Domain: domain, Err: err}) //nolint:errcheck // processor may be stopped
}
