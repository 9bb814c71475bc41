package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Domain is a functional area of the panel. Only one is visible at a time.
type Domain string

// Domain constants.
const (
	DomainNone      Domain = "none"
	DomainAudio     Domain = "audio"
	DomainNetwork   Domain = "network"
	DomainBluetooth Domain = "bluetooth"
)

// ParseDomain converts a string to a Domain.
func ParseDomain(s string) (Domain, error) {
	switch d := Domain(s); d {
	case DomainNone, DomainAudio, DomainNetwork, DomainBluetooth:
		return d, nil
	}
	return "", fmt.Errorf("audio: unknown domain %q", s)
}

// ActiveDomain is the shared cell naming the currently visible domain.
// The presentation side writes it; Workers read it on every iteration.
//
// The zero value reports DomainNone.
type ActiveDomain struct {
	v atomic.Value
}

// Load returns the active domain.
func (a *ActiveDomain) Load() Domain {
	if d, ok := a.v.Load().(Domain); ok {
		return d
	}
	return DomainNone
}

// Store sets the active domain.
func (a *ActiveDomain) Store(d Domain) {
	a.v.Store(d)
}

// Activator starts and stops Workers as the active domain changes.
//
// Activating the audio domain resynchronises the Processor first when its
// state is stale (never listed, or the previous Worker lost its connection),
// then starts a Worker. Activating any domain cancels the previous Worker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Activator struct {
	proc     *Processor
	backend  Backend
	cell     *ActiveDomain
	logger   Logger
	recorder NotificationRecorder

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	watchCancel context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
}

// NewActivator creates an Activator driving Workers for proc.
func NewActivator(proc *Processor, backend Backend, cell *ActiveDomain) *Activator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Activator{
		proc:    proc,
		backend: backend,
		cell:    cell,
		logger:  noopLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetLogger sets the logger used by the Activator and its Workers.
func (a *Activator) SetLogger(logger Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if logger != nil {
		a.logger = logger
	}
}

// SetRecorder sets the recorder passed to Workers started after the call.
func (a *Activator) SetRecorder(r NotificationRecorder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorder = r
}

// Current returns the active domain.
func (a *Activator) Current() Domain {
	return a.cell.Load()
}

// Activate makes d the visible domain.
//
// It returns immediately; resynchronisation and watching happen in the
// background. Activating the domain that is already active restarts its Worker.
func (a *Activator) Activate(d Domain) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrProcessorStopped
	}

	a.cell.Store(d)
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}

	a.logger.Info("domain activated", "domain", string(d))

	if d != DomainAudio {
		return nil
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.watchCancel = cancel

	w := NewWorker(a.backend, a.proc, a.cell)
	w.SetLogger(a.logger)
	if a.recorder != nil {
		w.SetRecorder(a.recorder)
	}
	// Subscribing first means no change can fall between the listing and the
	// stream; changes seen during the listing are replayed over it.
	w.OnSubscribed(func() { a.resyncIfStale(ctx) })

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = w.Watch(ctx, d) //nolint:errcheck // exit reason is reported to the Processor
	}()
	return nil
}

// resyncIfStale queues a full listing without waiting for it, so the Worker
// keeps draining its stream meanwhile.
func (a *Activator) resyncIfStale(ctx context.Context) {
	if !a.proc.Snapshot().Stale {
		return
	}
	if _, err := a.proc.Resync(ctx); err != nil {
		a.logger.Warn("resync not queued", "error", err)
	}
}

// Close cancels the running Worker and waits for it to exit.
func (a *Activator) Close() {
	a.mu.Lock()
	a.closed = true
	a.cell.Store(DomainNone)
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}
