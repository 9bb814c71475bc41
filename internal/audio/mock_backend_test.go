package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// mockBackend is a test implementation of Backend.
type mockBackend struct {
	mu sync.Mutex

	sinks         []Device
	sources       []Device
	inputs        []Stream
	outputs       []Stream
	cards         []Card
	defaultSink   *Device
	defaultSource *Device

	// For testing error paths
	listErr    error
	setErr     error
	defaultErr error

	// gate, when non-nil, blocks mutating calls until it is closed.
	gate chan struct{}
	// listGate, when non-nil, holds ListSinks after it has read the sinks.
	listGate chan struct{}
	// onList runs inside ListSinks once the sinks have been read.
	onList func()

	notes      chan Notification
	subscribed []context.Context
	subErr     error

	calls []string

	volumeCalls []volumeCall
	routeCalls  []routeCall
}

type volumeCall struct {
	category Category
	index    uint32
	channels uint16
	level    uint32
}

type routeCall struct {
	stream uint32
	target uint32
}

func newMockBackend() *mockBackend {
	return &mockBackend{notes: make(chan Notification, 16)}
}

func (m *mockBackend) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockBackend) callCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == prefix {
			n++
		}
	}
	return n
}

// callIndex returns the position of the first call named name, or -1.
func (m *mockBackend) callIndex(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func (m *mockBackend) wait(ctx context.Context) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockBackend) mutateErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setErr
}

func (m *mockBackend) RegisterClient(_ context.Context, _ string) error {
	m.record("RegisterClient")
	return nil
}

func (m *mockBackend) ListSinks(ctx context.Context) ([]Device, error) {
	m.record("ListSinks")
	m.mu.Lock()
	sinks, err := m.sinks, m.listErr
	gate, hook := m.listGate, m.onList
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return sinks, nil
}

func (m *mockBackend) ListSources(_ context.Context) ([]Device, error) {
	m.record("ListSources")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources, nil
}

func (m *mockBackend) ListInputStreams(_ context.Context) ([]Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs, nil
}

func (m *mockBackend) ListOutputStreams(_ context.Context) ([]Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs, nil
}

func (m *mockBackend) ListCards(_ context.Context) ([]Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cards, nil
}

func (m *mockBackend) GetDefaultSink(_ context.Context) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultSink == nil {
		return Device{}, errBackend
	}
	return *m.defaultSink, nil
}

func (m *mockBackend) GetDefaultSource(_ context.Context) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultSource == nil {
		return Device{}, errBackend
	}
	return *m.defaultSource, nil
}

func (m *mockBackend) SetVolume(ctx context.Context, category Category, index uint32, channels uint16, level uint32) error {
	m.record("SetVolume")
	m.mu.Lock()
	m.volumeCalls = append(m.volumeCalls, volumeCall{category, index, channels, level})
	m.mu.Unlock()
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.mutateErr()
}

func (m *mockBackend) SetMute(ctx context.Context, _ Category, _ uint32, _ bool) error {
	m.record("SetMute")
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.mutateErr()
}

func (m *mockBackend) setDefault(ctx context.Context, list []Device, name string) (Device, error) {
	if err := m.wait(ctx); err != nil {
		return Device{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultErr != nil {
		return Device{}, m.defaultErr
	}
	for _, d := range list {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, errBackend
}

func (m *mockBackend) SetDefaultSink(ctx context.Context, name string) (Device, error) {
	m.record("SetDefaultSink")
	m.mu.Lock()
	list := m.sinks
	m.mu.Unlock()
	return m.setDefault(ctx, list, name)
}

func (m *mockBackend) SetDefaultSource(ctx context.Context, name string) (Device, error) {
	m.record("SetDefaultSource")
	m.mu.Lock()
	list := m.sources
	m.mu.Unlock()
	return m.setDefault(ctx, list, name)
}

func (m *mockBackend) SetInputStreamSink(ctx context.Context, stream Stream, sink Device) error {
	m.record("SetInputStreamSink")
	m.mu.Lock()
	m.routeCalls = append(m.routeCalls, routeCall{stream.Index, sink.Index})
	m.mu.Unlock()
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.mutateErr()
}

func (m *mockBackend) SetOutputStreamSource(ctx context.Context, stream Stream, source Device) error {
	m.record("SetOutputStreamSource")
	m.mu.Lock()
	m.routeCalls = append(m.routeCalls, routeCall{stream.Index, source.Index})
	m.mu.Unlock()
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.mutateErr()
}

func (m *mockBackend) SetCardProfile(ctx context.Context, _ uint32, _ string) error {
	m.record("SetCardProfile")
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.mutateErr()
}

func (m *mockBackend) Subscribe(ctx context.Context, _ Domain) (<-chan Notification, error) {
	m.record("Subscribe")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	m.subscribed = append(m.subscribed, ctx)
	return m.notes, nil
}

// ─── Helpers ───────────────────────────────────────────────────────

// startProcessor runs p until the test ends.
func startProcessor(t *testing.T, p *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

// flush waits until every message sent before the call has been processed.
// The inbox is FIFO, so a command that is rejected on validation works as a
// barrier.
func flush(t *testing.T, p *Processor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ticket, err := p.Dispatch(ctx, SetCardProfile{})
	if err != nil {
		t.Fatalf("flush dispatch: %v", err)
	}
	if err := ticket.Wait(ctx); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("flush: %v", err)
	}
}

// post sends events to p and waits for them to be applied.
func post(t *testing.T, p *Processor, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := p.send(context.Background(), ev); err != nil {
			t.Fatalf("send(%T): %v", ev, err)
		}
	}
	flush(t, p)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitTicket(t *testing.T, ticket *Ticket) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := ticket.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("ticket did not resolve")
	}
	return err
}

func mustDispatch(t *testing.T, p *Processor, cmd Command) *Ticket {
	t.Helper()
	ticket, err := p.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Dispatch(%s): %v", cmd.Kind(), err)
	}
	return ticket
}

func sink(index uint32, name string) Device {
	return Device{Index: index, Name: name, Alias: name, Channels: 2, Volume: []uint32{30000, 30000}}
}

// commandLog collects CommandRecords from the Processor goroutine.
type commandLog struct {
	mu   sync.Mutex
	recs []CommandRecord
}

func (c *commandLog) observer() Observer {
	return ObserverFuncs{Command: func(r CommandRecord) {
		c.mu.Lock()
		c.recs = append(c.recs, r)
		c.mu.Unlock()
	}}
}

func (c *commandLog) outcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Outcome
	for _, r := range c.recs {
		// flush barriers are rejected set_card_profile commands
		if r.Outcome == OutcomeRejected && r.Command.Kind() == KindSetCardProfile {
			continue
		}
		out = append(out, r.Outcome)
	}
	return out
}
