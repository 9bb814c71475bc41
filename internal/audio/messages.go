package audio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Message is the closed set of values accepted by the Processor inbox.
// Only types in this package implement it.
type Message interface {
	isMessage()
}

// Command is a user intent to change daemon state.
type Command interface {
	Message
	// Kind returns the wire name of the command, e.g. "set_volume".
	Kind() string
	// Target returns the category and index the command mutates.
	Target() (Category, uint32)
	validate() error
}

// Command kinds.
const (
	KindSetVolume      = "set_volume"
	KindSetMute        = "set_mute"
	KindSetDefault     = "set_default"
	KindSetRouting     = "set_routing"
	KindSetCardProfile = "set_card_profile"
)

// SetVolume sets one level on every channel of a device or stream.
type SetVolume struct {
	Category Category `json:"category"`
	Index    uint32   `json:"index"`
	Level    uint32   `json:"level"`
}

// SetMute mutes or unmutes a device or stream.
type SetMute struct {
	Category Category `json:"category"`
	Index    uint32   `json:"index"`
	Muted    bool     `json:"muted"`
}

// SetDefault selects the default sink or source.
type SetDefault struct {
	Category Category `json:"category"`
	Index    uint32   `json:"index"`
}

// SetRouting moves a stream to another device. Category is the stream
// category; input streams move between sinks, output streams between sources.
type SetRouting struct {
	Category    Category `json:"category"`
	StreamIndex uint32   `json:"stream_index"`
	TargetIndex uint32   `json:"target_index"`
}

// SetCardProfile switches the active profile of a card.
type SetCardProfile struct {
	CardIndex uint32 `json:"card_index"`
	Profile   string `json:"profile"`
}

func (SetVolume) isMessage()      {}
func (SetMute) isMessage()        {}
func (SetDefault) isMessage()     {}
func (SetRouting) isMessage()     {}
func (SetCardProfile) isMessage() {}

func (SetVolume) Kind() string      { return KindSetVolume }
func (SetMute) Kind() string        { return KindSetMute }
func (SetDefault) Kind() string     { return KindSetDefault }
func (SetRouting) Kind() string     { return KindSetRouting }
func (SetCardProfile) Kind() string { return KindSetCardProfile }

func (c SetVolume) Target() (Category, uint32)      { return c.Category, c.Index }
func (c SetMute) Target() (Category, uint32)        { return c.Category, c.Index }
func (c SetDefault) Target() (Category, uint32)     { return c.Category, c.Index }
func (c SetRouting) Target() (Category, uint32)     { return c.Category, c.StreamIndex }
func (c SetCardProfile) Target() (Category, uint32) { return CategoryCard, c.CardIndex }

func (c SetVolume) validate() error {
	if !c.Category.IsDevice() && !c.Category.IsStream() {
		return fmt.Errorf("%w: %s: category %q", ErrInvalidCommand, KindSetVolume, c.Category)
	}
	return nil
}

func (c SetMute) validate() error {
	if !c.Category.IsDevice() && !c.Category.IsStream() {
		return fmt.Errorf("%w: %s: category %q", ErrInvalidCommand, KindSetMute, c.Category)
	}
	return nil
}

func (c SetDefault) validate() error {
	if !c.Category.IsDevice() {
		return fmt.Errorf("%w: %s: category %q", ErrInvalidCommand, KindSetDefault, c.Category)
	}
	return nil
}

func (c SetRouting) validate() error {
	if !c.Category.IsStream() {
		return fmt.Errorf("%w: %s: category %q", ErrInvalidCommand, KindSetRouting, c.Category)
	}
	return nil
}

func (c SetCardProfile) validate() error {
	if c.Profile == "" {
		return fmt.Errorf("%w: %s: empty profile", ErrInvalidCommand, KindSetCardProfile)
	}
	return nil
}

// Event is an authoritative state change reported by the daemon.
type Event interface {
	Message
	// Target returns the category and index the event applies to.
	Target() (Category, uint32)
	isEvent()
}

// Added reports a record that appeared.
type Added struct {
	Category Category
	Record   Entity
}

// Changed reports a record whose contents changed.
type Changed struct {
	Category Category
	Record   Entity
}

// Removed reports a record that disappeared.
type Removed struct {
	Category Category
	Index    uint32
}

func (Added) isMessage()   {}
func (Changed) isMessage() {}
func (Removed) isMessage() {}

func (Added) isEvent()   {}
func (Changed) isEvent() {}
func (Removed) isEvent() {}

func (e Added) Target() (Category, uint32)   { return e.Category, e.Record.Key() }
func (e Changed) Target() (Category, uint32) { return e.Category, e.Record.Key() }
func (e Removed) Target() (Category, uint32) { return e.Category, e.Index }

// WorkerExited is sent by a Worker when its watch loop ends. Err is nil when
// the loop ended because the domain was deactivated or its context cancelled.
type WorkerExited struct {
	Domain Domain
	Err    error
}

func (WorkerExited) isMessage() {}

// dispatch carries a Command and its Ticket into the inbox.
type dispatch struct {
	ticket *Ticket
	cmd    Command
}

// commandResult carries the outcome of a backend call back to the Processor.
type commandResult struct {
	ticket  *Ticket
	key     PendingKey
	device  *Device // record returned by SetDefaultSink/SetDefaultSource
	err     error
	elapsed time.Duration
}

// resyncRequest asks the Processor to start a full listing.
type resyncRequest struct {
	ticket *Ticket
}

// listingResult carries a completed full listing back to the Processor.
type listingResult struct {
	listing listing
	err     error
}

func (dispatch) isMessage()      {}
func (commandResult) isMessage() {}
func (resyncRequest) isMessage() {}
func (listingResult) isMessage() {}

// Ticket is a future for a dispatched command or resync.
//
// It resolves once: with nil when the daemon accepted the call, or with the
// error that ended it (ErrStaleTarget, ErrInvalidCommand, a backend error, or
// ErrProcessorStopped).
type Ticket struct {
	// ID uniquely identifies the dispatch.
	ID string
	// Command is the dispatched command; nil for a resync.
	Command Command

	once    sync.Once
	done    chan struct{}
	err     error
	outcome Outcome
}

func newTicket(id string, cmd Command) *Ticket {
	return &Ticket{ID: id, Command: cmd, done: make(chan struct{})}
}

// Done returns a channel closed when the ticket resolves.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Err returns the resolution error. It is only meaningful after Done is closed.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Outcome reports how the command ended. It is empty until Done is closed,
// and stays empty for a resync or a ticket released by ErrProcessorStopped.
func (t *Ticket) Outcome() Outcome {
	select {
	case <-t.done:
		return t.outcome
	default:
		return ""
	}
}

// Wait blocks until the ticket resolves or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve releases the ticket without an outcome. Later calls are no-ops.
func (t *Ticket) resolve(err error) {
	t.settle("", err)
}

func (t *Ticket) settle(outcome Outcome, err error) {
	t.once.Do(func() {
		t.err = err
		t.outcome = outcome
		close(t.done)
	})
}

// Outcome classifies how a command ended.
type Outcome string

// Outcome constants.
const (
	// OutcomeConfirmed means the daemon accepted the call.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRolledBack means the call failed and the optimistic change was undone.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeFailed means the call failed after a newer change replaced the
	// optimistic one, so nothing was undone.
	OutcomeFailed Outcome = "failed"
	// OutcomeStale means the target was not in the registry.
	OutcomeStale Outcome = "stale"
	// OutcomeRejected means the command failed validation.
	OutcomeRejected Outcome = "rejected"
)

// CommandRecord describes a resolved command for observers.
type CommandRecord struct {
	ID       string
	Command  Command
	Outcome  Outcome
	Err      error
	Duration time.Duration
	At       time.Time
}
