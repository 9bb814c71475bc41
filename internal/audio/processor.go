package audio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Processor defaults.
const (
	DefaultQueueSize      = 64
	DefaultMaxInflight    = 4
	DefaultCommandTimeout = 5 * time.Second
)

// ProcessorConfig holds Processor tuning.
type ProcessorConfig struct {
	// QueueSize is the inbox capacity. Senders block when it is full.
	QueueSize int
	// MaxInflight bounds concurrent backend calls.
	MaxInflight int
	// CommandTimeout bounds each backend call and each full listing.
	CommandTimeout time.Duration
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = DefaultMaxInflight
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}

// Observer is notified on the Processor goroutine after state changes.
// Implementations must return quickly and must not call back into the
// Processor synchronously.
type Observer interface {
	OnSnapshot(snap *Snapshot)
	OnEvent(ev Event)
	OnCommand(rec CommandRecord)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot func(*Snapshot)
	Event    func(Event)
	Command  func(CommandRecord)
}

// OnSnapshot implements Observer.
func (o ObserverFuncs) OnSnapshot(s *Snapshot) {
	if o.Snapshot != nil {
		o.Snapshot(s)
	}
}

// OnEvent implements Observer.
func (o ObserverFuncs) OnEvent(ev Event) {
	if o.Event != nil {
		o.Event(ev)
	}
}

// OnCommand implements Observer.
func (o ObserverFuncs) OnCommand(rec CommandRecord) {
	if o.Command != nil {
		o.Command(rec)
	}
}

// pendingEntry remembers the last authoritative state of a record while an
// optimistic change to it is unconfirmed.
type pendingEntry struct {
	ticketID string
	prev     Entity
}

// pendingDefault is the default pointer of one category while a selection is
// unconfirmed. Only the newest SetDefault may roll it back.
type pendingDefault struct {
	ticketID string
	prev     DefaultPointer
}

// backendCall performs the daemon call for one command. The returned device
// is non-nil only for default selection.
type backendCall func(ctx context.Context) (*Device, error)

// listing is the result of a full listing.
type listing struct {
	sinks         []Device
	sources       []Device
	inputs        []Stream
	outputs       []Stream
	cards         []Card
	defaultSink   Device
	defaultSource Device
	hasSink       bool
	hasSource     bool
}

// Processor is the single owner of registry state.
//
// Commands and events are serialised through one bounded inbox and applied by
// the Run goroutine. Backend calls run on separate goroutines and report back
// through the same inbox, so Run never blocks on the daemon.
//
// Thread Safety:
//   - Dispatch, Resync, Snapshot and QueueDepth are safe for concurrent use.
//   - SetLogger and AddObserver must be called before Run.
type Processor struct {
	backend   Backend
	cfg       ProcessorConfig
	logger    Logger
	observers []Observer
	now       func() time.Time

	inbox    chan Message
	done     chan struct{}
	running  atomic.Bool
	snapshot atomic.Pointer[Snapshot]
	sem      chan struct{}
	calls    sync.WaitGroup

	// Owned by the Run goroutine.
	runCtx   context.Context
	sinks    *Store[Device]
	sources  *Store[Device]
	inputs   *Store[Stream]
	outputs  *Store[Stream]
	cards    *Store[Card]
	defaults *DefaultTracker
	pending  map[PendingKey]pendingEntry
	selected map[Category]pendingDefault
	inflight map[string]*Ticket
	waiters  []*Ticket
	listing  bool
	replay   []Event // applied while a listing is in flight
	lost     bool    // stream ended while a listing was in flight
	stale    bool
	version  uint64
}

// NewProcessor creates a Processor. Zero config fields take their defaults.
func NewProcessor(backend Backend, cfg ProcessorConfig) *Processor {
	cfg = cfg.withDefaults()
	p := &Processor{
		backend:  backend,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
		inbox:    make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
		sem:      make(chan struct{}, cfg.MaxInflight),
		sinks:    NewStore[Device](),
		sources:  NewStore[Device](),
		inputs:   NewStore[Stream](),
		outputs:  NewStore[Stream](),
		cards:    NewStore[Card](),
		defaults: NewDefaultTracker(),
		pending:  make(map[PendingKey]pendingEntry),
		selected: make(map[Category]pendingDefault),
		inflight: make(map[string]*Ticket),
		stale:    true,
	}
	p.snapshot.Store(emptySnapshot())
	return p
}

// SetLogger sets the logger.
func (p *Processor) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// AddObserver registers an observer.
func (p *Processor) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

// Snapshot returns the most recently published snapshot. It never blocks.
func (p *Processor) Snapshot() *Snapshot {
	return p.snapshot.Load()
}

// QueueDepth returns the number of messages waiting in the inbox.
func (p *Processor) QueueDepth() int {
	return len(p.inbox)
}

// Dispatch enqueues a command and returns its Ticket.
//
// Dispatch blocks only while the inbox is full. The returned Ticket resolves
// once the command is rejected, found stale, or its backend call completes.
func (p *Processor) Dispatch(ctx context.Context, cmd Command) (*Ticket, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	t := newTicket(uuid.NewString(), cmd)
	if err := p.send(ctx, dispatch{ticket: t, cmd: cmd}); err != nil {
		return nil, err
	}
	return t, nil
}

// Resync enqueues a full listing. The Ticket resolves when the listing has
// replaced registry state, or with the error that made it fail.
func (p *Processor) Resync(ctx context.Context) (*Ticket, error) {
	t := newTicket(uuid.NewString(), nil)
	if err := p.send(ctx, resyncRequest{ticket: t}); err != nil {
		return nil, err
	}
	return t, nil
}

// send implements sender.
func (p *Processor) send(ctx context.Context, m Message) error {
	select {
	case <-p.done:
		return ErrProcessorStopped
	default:
	}
	select {
	case p.inbox <- m:
		// Shutdown may already have drained the inbox.
		select {
		case <-p.done:
			p.drain()
		default:
		}
		return nil
	case <-p.done:
		return ErrProcessorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes the inbox until ctx is cancelled.
//
// Outstanding tickets are resolved with ErrProcessorStopped on return.
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("audio: processor already running")
	}
	p.runCtx = ctx
	defer p.shutdown()

	p.logger.Info("audio processor started", "queue_size", p.cfg.QueueSize, "max_inflight", p.cfg.MaxInflight)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("audio processor stopping")
			return ctx.Err()
		case m := <-p.inbox:
			p.handle(m)
		}
	}
}

func (p *Processor) shutdown() {
	close(p.done)
	p.drain()

	for id, t := range p.inflight {
		t.resolve(ErrProcessorStopped)
		delete(p.inflight, id)
	}
	for _, t := range p.waiters {
		t.resolve(ErrProcessorStopped)
	}
	p.waiters = nil

	p.calls.Wait()
	p.drain()
}

// drain resolves every queued ticket with ErrProcessorStopped. It is safe to
// call from any goroutine once done is closed.
func (p *Processor) drain() {
	for {
		select {
		case m := <-p.inbox:
			switch m := m.(type) {
			case dispatch:
				m.ticket.resolve(ErrProcessorStopped)
			case resyncRequest:
				m.ticket.resolve(ErrProcessorStopped)
			}
		default:
			return
		}
	}
}

func (p *Processor) handle(m Message) {
	switch m := m.(type) {
	case dispatch:
		p.handleCommand(m.ticket, m.cmd)
	case Added:
		p.handleEvent(m)
	case Changed:
		p.handleEvent(m)
	case Removed:
		p.handleEvent(m)
	case commandResult:
		p.handleResult(m)
	case resyncRequest:
		p.startListing(m.ticket)
	case listingResult:
		p.applyListing(m)
	case WorkerExited:
		p.handleWorkerExit(m)
	default:
		p.logger.Warn("ignoring unexpected message", "type", fmt.Sprintf("%T", m))
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func (p *Processor) handleCommand(t *Ticket, cmd Command) {
	if err := cmd.validate(); err != nil {
		p.logger.Warn("command rejected", "command", cmd.Kind(), "error", err)
		p.finish(t, OutcomeRejected, err, 0)
		return
	}

	key, call, err := p.apply(t.ID, cmd)
	if err != nil {
		outcome := OutcomeRejected
		if errors.Is(err, ErrStaleTarget) {
			outcome = OutcomeStale
			p.logger.Debug("command target not found", "command", cmd.Kind(), "error", err)
		} else {
			p.logger.Warn("command rejected", "command", cmd.Kind(), "error", err)
		}
		p.finish(t, outcome, err, 0)
		return
	}

	p.publish()
	p.inflight[t.ID] = t
	p.invoke(t, key, call)
}

// apply performs the optimistic change and returns the daemon call to make.
func (p *Processor) apply(id string, cmd Command) (PendingKey, backendCall, error) {
	cat, idx := cmd.Target()
	key := PendingKey{Category: cat, Index: idx}

	switch c := cmd.(type) {
	case SetVolume:
		var channels uint16
		err := p.mutate(id, key, func(vol []uint32, ch uint16) []uint32 {
			out := broadcastVolume(vol, ch, c.Level)
			channels = uint16(len(out))
			return out
		}, nil)
		if err != nil {
			return key, nil, err
		}
		return key, func(ctx context.Context) (*Device, error) {
			return nil, p.backend.SetVolume(ctx, c.Category, c.Index, channels, c.Level)
		}, nil

	case SetMute:
		muted := c.Muted
		if err := p.mutate(id, key, nil, &muted); err != nil {
			return key, nil, err
		}
		return key, func(ctx context.Context) (*Device, error) {
			return nil, p.backend.SetMute(ctx, c.Category, c.Index, c.Muted)
		}, nil

	case SetDefault:
		store := p.deviceStore(c.Category)
		d, ok := store.Get(c.Index)
		if !ok {
			return key, nil, staleErr(c.Category, c.Index)
		}
		p.markPending(key, id, d)
		p.markSelected(c.Category, id)
		p.defaults.Select(c.Category, c.Index, store)
		name := d.Name
		return key, func(ctx context.Context) (*Device, error) {
			var rec Device
			var err error
			if c.Category == CategorySink {
				rec, err = p.backend.SetDefaultSink(ctx, name)
			} else {
				rec, err = p.backend.SetDefaultSource(ctx, name)
			}
			if err != nil {
				return nil, err
			}
			return &rec, nil
		}, nil

	case SetRouting:
		targetCat, _ := c.Category.RoutingTarget()
		streams := p.streamStore(c.Category)
		s, ok := streams.Get(c.StreamIndex)
		if !ok {
			return key, nil, staleErr(c.Category, c.StreamIndex)
		}
		target, ok := p.deviceStore(targetCat).Get(c.TargetIndex)
		if !ok {
			return key, nil, staleErr(targetCat, c.TargetIndex)
		}
		orig := s.DeepCopy()
		p.markPending(key, id, s)
		s.DeviceIndex = c.TargetIndex
		streams.Upsert(s)
		return key, func(ctx context.Context) (*Device, error) {
			if c.Category == CategoryInputStream {
				return nil, p.backend.SetInputStreamSink(ctx, orig, target)
			}
			return nil, p.backend.SetOutputStreamSource(ctx, orig, target)
		}, nil

	case SetCardProfile:
		card, ok := p.cards.Get(c.CardIndex)
		if !ok {
			return key, nil, staleErr(CategoryCard, c.CardIndex)
		}
		if len(card.Profiles) > 0 && !card.HasProfile(c.Profile) {
			return key, nil, fmt.Errorf("%w: card %d has no profile %q", ErrInvalidCommand, c.CardIndex, c.Profile)
		}
		p.markPending(key, id, card)
		card.ActiveProfile = c.Profile
		p.cards.Upsert(card)
		return key, func(ctx context.Context) (*Device, error) {
			return nil, p.backend.SetCardProfile(ctx, c.CardIndex, c.Profile)
		}, nil
	}

	return key, nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidCommand, cmd)
}

// mutate changes volume and/or mute of a device or stream.
func (p *Processor) mutate(id string, key PendingKey, volume func([]uint32, uint16) []uint32, muted *bool) error {
	switch {
	case key.Category.IsDevice():
		store := p.deviceStore(key.Category)
		d, ok := store.Get(key.Index)
		if !ok {
			return staleErr(key.Category, key.Index)
		}
		p.markPending(key, id, d)
		if volume != nil {
			d.Volume = volume(d.Volume, d.Channels)
		}
		if muted != nil {
			d.Muted = *muted
		}
		store.Upsert(d)
		return nil

	case key.Category.IsStream():
		store := p.streamStore(key.Category)
		s, ok := store.Get(key.Index)
		if !ok {
			return staleErr(key.Category, key.Index)
		}
		p.markPending(key, id, s)
		if volume != nil {
			s.Volume = volume(s.Volume, s.Channels)
		}
		if muted != nil {
			s.Muted = *muted
		}
		store.Upsert(s)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCategory, key.Category)
}

// markPending records the pre-change state of key. When an earlier optimistic
// change is still pending, its recorded state is kept so rollback always
// returns to the last authoritative record.
func (p *Processor) markPending(key PendingKey, id string, current Entity) {
	entry := pendingEntry{ticketID: id, prev: current}
	if old, ok := p.pending[key]; ok {
		entry.prev = old.prev
	}
	p.pending[key] = entry
}

// markSelected hands the category's default pointer to ticket id. The
// pointer recorded by an earlier unconfirmed selection is kept, whichever
// device that selection targeted.
func (p *Processor) markSelected(cat Category, id string) {
	entry := pendingDefault{ticketID: id}
	if old, ok := p.selected[cat]; ok {
		entry.prev = old.prev
	} else {
		entry.prev, _ = p.defaults.Get(cat)
	}
	p.selected[cat] = entry
}

// invoke runs call off the Processor goroutine and reports back via the inbox.
func (p *Processor) invoke(t *Ticket, key PendingKey, call backendCall) {
	ctx := p.runCtx
	p.calls.Add(1)
	go func() {
		defer p.calls.Done()

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-p.sem }()

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandTimeout)
		defer cancel()

		start := time.Now()
		dev, err := safeCall(callCtx, call)
		res := commandResult{ticket: t, key: key, device: dev, err: err, elapsed: time.Since(start)}
		_ = p.send(context.Background(), res) //nolint:errcheck // processor stopped; ticket resolved in shutdown
	}()
}

func safeCall(ctx context.Context, call backendCall) (dev *Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio: backend call panicked: %v", r)
		}
	}()
	return call(ctx)
}

func (p *Processor) handleResult(r commandResult) {
	t := r.ticket
	if _, ok := p.inflight[t.ID]; !ok {
		return
	}
	delete(p.inflight, t.ID)

	if _, ok := t.Command.(SetDefault); ok {
		p.handleDefaultResult(r)
		return
	}

	entry, inPlace := p.pending[r.key]
	inPlace = inPlace && entry.ticketID == t.ID

	if r.err == nil {
		p.finish(t, OutcomeConfirmed, nil, r.elapsed)
		return
	}

	if !inPlace {
		p.logger.Warn("command failed after newer change",
			"command", t.Command.Kind(),
			"category", string(r.key.Category),
			"index", r.key.Index,
			"error", r.err,
		)
		p.finish(t, OutcomeFailed, r.err, r.elapsed)
		return
	}

	p.rollback(r.key, entry)
	delete(p.pending, r.key)
	p.publish()

	p.logger.Warn("command failed, rolled back",
		"command", t.Command.Kind(),
		"category", string(r.key.Category),
		"index", r.key.Index,
		"error", r.err,
	)
	p.finish(t, OutcomeRolledBack, r.err, r.elapsed)
}

func (p *Processor) rollback(key PendingKey, entry pendingEntry) {
	switch prev := entry.prev.(type) {
	case Device:
		p.deviceStore(key.Category).Upsert(prev)
	case Stream:
		p.streamStore(key.Category).Upsert(prev)
	case Card:
		p.cards.Upsert(prev)
	}
}

// handleDefaultResult settles a SetDefault. The device record is refreshed
// from the reply only while the device is still present and no event has
// superseded the optimistic change; the pointer moves only for the newest
// selection of the category.
func (p *Processor) handleDefaultResult(r commandResult) {
	t := r.ticket
	cat := r.key.Category
	store := p.deviceStore(cat)

	entry, inPlace := p.pending[r.key]
	inPlace = inPlace && entry.ticketID == t.ID
	if inPlace {
		delete(p.pending, r.key)
	}
	sel, selecting := p.selected[cat]
	owner := selecting && sel.ticketID == t.ID

	if r.err == nil {
		if r.device != nil && store.Contains(r.device.Index) {
			if inPlace {
				store.Upsert(*r.device)
			}
			switch {
			case owner:
				p.defaults.Select(cat, r.device.Index, store)
			case selecting:
				// A newer selection is still unconfirmed; rolling it back now
				// lands on this one.
				sel.prev = DefaultPointer{Index: r.device.Index}
				p.selected[cat] = sel
			}
		}
		if owner {
			delete(p.selected, cat)
		}
		p.publish()
		p.finish(t, OutcomeConfirmed, nil, r.elapsed)
		return
	}

	if !owner {
		p.publish()
		p.logger.Warn("default selection failed after newer change",
			"category", string(cat),
			"index", r.key.Index,
			"error", r.err,
		)
		p.finish(t, OutcomeFailed, r.err, r.elapsed)
		return
	}

	delete(p.selected, cat)
	p.defaults.Reset(cat, sel.prev.Index, !sel.prev.Dummy, store)
	p.publish()

	p.logger.Warn("default selection failed, rolled back",
		"category", string(cat),
		"index", r.key.Index,
		"error", r.err,
	)
	p.finish(t, OutcomeRolledBack, r.err, r.elapsed)
}

// finish notifies observers and then resolves the ticket, so a caller
// returning from Wait sees the journal and metrics already updated.
func (p *Processor) finish(t *Ticket, outcome Outcome, err error, elapsed time.Duration) {
	if t.Command != nil {
		rec := CommandRecord{
			ID:       t.ID,
			Command:  t.Command,
			Outcome:  outcome,
			Err:      err,
			Duration: elapsed,
			At:       p.now(),
		}
		for _, o := range p.observers {
			p.notify(func() { o.OnCommand(rec) })
		}
	}
	t.settle(outcome, err)
}

// ─── Events ────────────────────────────────────────────────────────

func (p *Processor) handleEvent(ev Event) {
	if err := p.applyEvent(ev); err != nil {
		p.logger.Warn("dropping inconsistent event", "type", fmt.Sprintf("%T", ev), "error", err)
		return
	}
	if p.listing {
		p.replay = append(p.replay, ev)
	}

	cat, idx := ev.Target()
	delete(p.pending, PendingKey{Category: cat, Index: idx})
	p.publish()

	for _, o := range p.observers {
		p.notify(func() { o.OnEvent(ev) })
	}
}

func (p *Processor) applyEvent(ev Event) error {
	switch e := ev.(type) {
	case Added:
		return p.upsertEvent(e.Category, e.Record, true)
	case Changed:
		return p.upsertEvent(e.Category, e.Record, false)
	case Removed:
		return p.removeEvent(e.Category, e.Index)
	}
	return fmt.Errorf("%w: event %T", ErrMalformedPayload, ev)
}

func (p *Processor) upsertEvent(cat Category, rec Entity, added bool) error {
	switch r := rec.(type) {
	case Device:
		store := p.deviceStore(cat)
		if store == nil {
			return fmt.Errorf("%w: device record for %s", ErrMalformedPayload, cat)
		}
		existed := store.Contains(r.Index)
		store.Upsert(r)
		if added || !existed {
			p.defaults.OnAdded(cat, r.Index)
		}
		return nil
	case Stream:
		store := p.streamStore(cat)
		if store == nil {
			return fmt.Errorf("%w: stream record for %s", ErrMalformedPayload, cat)
		}
		store.Upsert(r)
		return nil
	case Card:
		if cat != CategoryCard {
			return fmt.Errorf("%w: card record for %s", ErrMalformedPayload, cat)
		}
		p.cards.Upsert(r)
		return nil
	}
	return fmt.Errorf("%w: record %T", ErrMalformedPayload, rec)
}

func (p *Processor) removeEvent(cat Category, index uint32) error {
	switch {
	case cat.IsDevice():
		store := p.deviceStore(cat)
		if store.Remove(index) {
			p.defaults.OnRemoved(cat, index, store)
		}
	case cat.IsStream():
		p.streamStore(cat).Remove(index)
	case cat == CategoryCard:
		p.cards.Remove(index)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}
	return nil
}

func (p *Processor) handleWorkerExit(m WorkerExited) {
	if m.Err == nil {
		p.logger.Debug("worker exited", "domain", string(m.Domain))
		return
	}
	p.logger.Warn("worker lost notification stream, state marked stale",
		"domain", string(m.Domain),
		"error", m.Err,
	)
	if m.Domain != DomainAudio {
		return
	}
	if p.listing {
		p.lost = true
	}
	if !p.stale {
		p.stale = true
		p.publish()
	}
}

// ─── Full listing ──────────────────────────────────────────────────

func (p *Processor) startListing(t *Ticket) {
	p.waiters = append(p.waiters, t)
	if p.listing {
		return
	}
	p.listing = true

	ctx := p.runCtx
	p.calls.Add(1)
	go func() {
		defer p.calls.Done()
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandTimeout)
		defer cancel()
		l, err := fetchListing(callCtx, p.backend)
		_ = p.send(context.Background(), listingResult{listing: l, err: err}) //nolint:errcheck // processor stopped
	}()
}

// fetchListing queries every category concurrently. A failed default lookup
// is not an error; the tracker then falls back to any member.
func fetchListing(ctx context.Context, b Backend) (listing, error) {
	var l listing
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		if l.sinks, err = b.ListSinks(gctx); err != nil {
			return fmt.Errorf("listing sinks: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if l.sources, err = b.ListSources(gctx); err != nil {
			return fmt.Errorf("listing sources: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if l.inputs, err = b.ListInputStreams(gctx); err != nil {
			return fmt.Errorf("listing input streams: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if l.outputs, err = b.ListOutputStreams(gctx); err != nil {
			return fmt.Errorf("listing output streams: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if l.cards, err = b.ListCards(gctx); err != nil {
			return fmt.Errorf("listing cards: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if d, err := b.GetDefaultSink(gctx); err == nil {
			l.defaultSink, l.hasSink = d, true
		}
		return nil
	})
	g.Go(func() error {
		if d, err := b.GetDefaultSource(gctx); err == nil {
			l.defaultSource, l.hasSource = d, true
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return listing{}, err
	}
	return l, nil
}

func (p *Processor) applyListing(r listingResult) {
	p.listing = false
	waiters := p.waiters
	p.waiters = nil
	replay := p.replay
	p.replay = nil
	lost := p.lost
	p.lost = false

	if r.err != nil {
		p.logger.Warn("full listing failed", "error", r.err)
		if !p.stale {
			p.stale = true
			p.publish()
		}
		for _, t := range waiters {
			t.resolve(r.err)
		}
		return
	}

	l := r.listing
	p.sinks.Replace(l.sinks)
	p.sources.Replace(l.sources)
	p.inputs.Replace(l.inputs)
	p.outputs.Replace(l.outputs)
	p.cards.Replace(l.cards)
	p.defaults.Reset(CategorySink, l.defaultSink.Index, l.hasSink, p.sinks)
	p.defaults.Reset(CategorySource, l.defaultSource.Index, l.hasSource, p.sources)
	// Events seen while the listing was in flight may postdate it.
	for _, ev := range replay {
		_ = p.applyEvent(ev) //nolint:errcheck // validated when first applied
	}
	p.pending = make(map[PendingKey]pendingEntry)
	p.selected = make(map[Category]pendingDefault)
	p.stale = lost
	p.publish()

	p.logger.Info("registry synchronised",
		"sinks", p.sinks.Len(),
		"sources", p.sources.Len(),
		"input_streams", p.inputs.Len(),
		"output_streams", p.outputs.Len(),
		"cards", p.cards.Len(),
	)

	for _, t := range waiters {
		t.resolve(nil)
	}
}

// ─── Snapshot ──────────────────────────────────────────────────────

func (p *Processor) publish() {
	p.version++
	sink, _ := p.defaults.Get(CategorySink)
	source, _ := p.defaults.Get(CategorySource)

	pending := make([]PendingKey, 0, len(p.pending))
	for k := range p.pending {
		pending = append(pending, k)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Category != pending[j].Category {
			return pending[i].Category < pending[j].Category
		}
		return pending[i].Index < pending[j].Index
	})

	snap := &Snapshot{
		Sinks:         p.sinks.List(),
		Sources:       p.sources.List(),
		InputStreams:  p.inputs.List(),
		OutputStreams: p.outputs.List(),
		Cards:         p.cards.List(),
		DefaultSink:   sink,
		DefaultSource: source,
		Pending:       pending,
		Stale:         p.stale,
		Version:       p.version,
	}
	p.snapshot.Store(snap)

	for _, o := range p.observers {
		p.notify(func() { o.OnSnapshot(snap) })
	}
}

// notify runs an observer callback, recovering from panics.
func (p *Processor) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("observer panicked", "panic", r)
		}
	}()
	fn()
}

func (p *Processor) deviceStore(c Category) *Store[Device] {
	switch c {
	case CategorySink:
		return p.sinks
	case CategorySource:
		return p.sources
	}
	return nil
}

func (p *Processor) streamStore(c Category) *Store[Stream] {
	switch c {
	case CategoryInputStream:
		return p.inputs
	case CategoryOutputStream:
		return p.outputs
	}
	return nil
}

func staleErr(c Category, index uint32) error {
	return fmt.Errorf("%w: %s %d", ErrStaleTarget, c, index)
}
