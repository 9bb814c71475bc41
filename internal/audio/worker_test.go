package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingSender captures what a Worker forwards.
type recordingSender struct {
	ch chan Message
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan Message, 32)}
}

func (r *recordingSender) send(_ context.Context, m Message) error {
	r.ch <- m
	return nil
}

func (r *recordingSender) next(t *testing.T) Message {
	t.Helper()
	select {
	case m := <-r.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message forwarded")
		return nil
	}
}

func runWatch(w *Worker, ctx context.Context, d Domain) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx, d) }()
	return errc
}

func waitWatch(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
		return nil
	}
}

func audioCell() *ActiveDomain {
	cell := &ActiveDomain{}
	cell.Store(DomainAudio)
	return cell
}

func TestWorker_MalformedThenValid(t *testing.T) {
	b := newMockBackend()
	p, _ := newTestProcessor(t, b)
	w := NewWorker(b, p, audioCell())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := runWatch(w, ctx, DomainAudio)

	b.notes <- Notification{Kind: "SinkChanged", Payload: jsonPayload(`{"index":`)}
	b.notes <- Notification{Kind: "SinkAdded", Payload: jsonPayload(`{"index":5,"name":"usb","channels":2,"volume":[1,1]}`)}

	waitFor(t, "sink 5", func() bool {
		_, ok := p.Snapshot().Device(CategorySink, 5)
		return ok
	})

	if got := len(p.Snapshot().Sinks); got != 1 {
		t.Errorf("len(Sinks) = %d, want 1", got)
	}
	if w.Malformed() != 1 {
		t.Errorf("Malformed() = %d, want 1", w.Malformed())
	}
	if w.Decoded() != 1 {
		t.Errorf("Decoded() = %d, want 1", w.Decoded())
	}

	cancel()
	if err := waitWatch(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() = %v, want context.Canceled", err)
	}
}

func TestWorker_IgnoresUnknownKinds(t *testing.T) {
	b := newMockBackend()
	rec := newRecordingSender()
	w := newWorker(b, rec, audioCell())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWatch(w, ctx, DomainAudio)

	b.notes <- Notification{Kind: "WifiDeviceChanged", Payload: jsonPayload(`{}`)}
	b.notes <- Notification{Kind: "CardRemoved", Payload: jsonPayload(`2`)}

	m := rec.next(t)
	if r, ok := m.(Removed); !ok || r.Category != CategoryCard || r.Index != 2 {
		t.Errorf("forwarded %#v, want Removed card 2", m)
	}
}

func TestWorker_StopsOnDomainSwitch(t *testing.T) {
	b := newMockBackend()
	rec := newRecordingSender()
	cell := audioCell()
	w := newWorker(b, rec, cell)

	errc := runWatch(w, context.Background(), DomainAudio)
	waitFor(t, "subscription", func() bool { return b.callCount("Subscribe") == 1 })

	cell.Store(DomainNetwork)
	b.notes <- Notification{Kind: "SinkAdded", Payload: jsonPayload(`{"index":1}`)}

	if err := waitWatch(t, errc); err != nil {
		t.Errorf("Watch() = %v, want nil", err)
	}

	m := rec.next(t)
	exit, ok := m.(WorkerExited)
	if !ok {
		t.Fatalf("forwarded %T after domain switch, want WorkerExited", m)
	}
	if exit.Err != nil {
		t.Errorf("WorkerExited.Err = %v, want nil", exit.Err)
	}
}

func TestWorker_ConnectionLoss(t *testing.T) {
	b := newMockBackend()
	rec := newRecordingSender()
	w := newWorker(b, rec, audioCell())

	errc := runWatch(w, context.Background(), DomainAudio)
	waitFor(t, "subscription", func() bool { return b.callCount("Subscribe") == 1 })
	close(b.notes)

	if err := waitWatch(t, errc); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("Watch() = %v, want ErrSubscriptionClosed", err)
	}
	exit, ok := rec.next(t).(WorkerExited)
	if !ok || !errors.Is(exit.Err, ErrSubscriptionClosed) {
		t.Errorf("exit message = %+v", exit)
	}
}

func TestWorker_SubscribeFailure(t *testing.T) {
	b := newMockBackend()
	b.subErr = errBackend
	rec := newRecordingSender()
	w := newWorker(b, rec, audioCell())

	if err := w.Watch(context.Background(), DomainAudio); !errors.Is(err, errBackend) {
		t.Errorf("Watch() = %v, want backend error", err)
	}
	exit, ok := rec.next(t).(WorkerExited)
	if !ok || !errors.Is(exit.Err, errBackend) {
		t.Errorf("exit message = %+v", exit)
	}
}

// countingRecorder implements NotificationRecorder.
type countingRecorder struct {
	ch chan error
}

func (c *countingRecorder) RecordNotification(_ string, err error) {
	c.ch <- err
}

func TestWorker_Recorder(t *testing.T) {
	b := newMockBackend()
	w := newWorker(b, newRecordingSender(), audioCell())
	rc := &countingRecorder{ch: make(chan error, 4)}
	w.SetRecorder(rc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWatch(w, ctx, DomainAudio)

	b.notes <- Notification{Kind: "SourceChanged", Payload: jsonPayload(`[`)}
	select {
	case err := <-rc.ch:
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("recorded %v, want ErrMalformedPayload", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing recorded")
	}
}

func TestWorker_BlocksOnFullInbox(t *testing.T) {
	const n = 12
	b := newMockBackend()
	b.notes = make(chan Notification, n)
	p := NewProcessor(b, ProcessorConfig{QueueSize: 1})

	// Stall the processor inside its first publish.
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	p.AddObserver(ObserverFuncs{Snapshot: func(*Snapshot) { <-release }})
	startProcessor(t, p)
	t.Cleanup(unblock)

	w := NewWorker(b, p, audioCell())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWatch(w, ctx, DomainAudio)

	for i := 1; i <= n; i++ {
		b.notes <- Notification{
			Kind:    "SinkAdded",
			Payload: jsonPayload(fmt.Sprintf(`{"index":%d,"name":"s%d","channels":2,"volume":[1,1]}`, i, i)),
		}
	}

	waitFor(t, "full inbox", func() bool { return p.QueueDepth() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := w.Decoded(); got >= n {
		t.Fatalf("Decoded() = %d with a stalled processor, want fewer than %d", got, n)
	}

	unblock()
	waitFor(t, "every sink", func() bool { return len(p.Snapshot().Sinks) == n })
	if w.Malformed() != 0 {
		t.Errorf("Malformed() = %d, want 0", w.Malformed())
	}
	if w.Decoded() != n {
		t.Errorf("Decoded() = %d, want %d", w.Decoded(), n)
	}
}
