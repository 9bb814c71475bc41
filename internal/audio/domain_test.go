package audio

import (
	"errors"
	"testing"
)

func TestActiveDomain_ZeroValue(t *testing.T) {
	var cell ActiveDomain
	if got := cell.Load(); got != DomainNone {
		t.Errorf("Load() = %q, want %q", got, DomainNone)
	}
	cell.Store(DomainBluetooth)
	if got := cell.Load(); got != DomainBluetooth {
		t.Errorf("Load() = %q, want %q", got, DomainBluetooth)
	}
}

func TestParseDomain(t *testing.T) {
	for _, s := range []string{"none", "audio", "network", "bluetooth"} {
		if _, err := ParseDomain(s); err != nil {
			t.Errorf("ParseDomain(%q) error = %v", s, err)
		}
	}
	if _, err := ParseDomain("wifi"); err == nil {
		t.Error("ParseDomain(wifi) should fail")
	}
}

func TestActivator_SubscribesThenResyncs(t *testing.T) {
	b := newMockBackend()
	b.sinks = []Device{sink(1, "a")}
	p, _ := newTestProcessor(t, b)
	cell := &ActiveDomain{}
	a := NewActivator(p, b, cell)
	defer a.Close()

	if err := a.Activate(DomainAudio); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	waitFor(t, "fresh state", func() bool { return !p.Snapshot().Stale })

	if b.callCount("ListSinks") != 1 {
		t.Errorf("ListSinks called %d times, want 1", b.callCount("ListSinks"))
	}
	if sub, list := b.callIndex("Subscribe"), b.callIndex("ListSinks"); sub > list {
		t.Errorf("listed (call %d) before subscribing (call %d)", list, sub)
	}
	if a.Current() != DomainAudio {
		t.Errorf("Current() = %q", a.Current())
	}
}

func TestActivator_SwitchCancelsWorker(t *testing.T) {
	b := newMockBackend()
	p, _ := newTestProcessor(t, b)
	cell := &ActiveDomain{}
	a := NewActivator(p, b, cell)
	defer a.Close()

	a.Activate(DomainAudio)
	waitFor(t, "fresh state", func() bool { return !p.Snapshot().Stale })

	b.mu.Lock()
	subCtx := b.subscribed[0]
	b.mu.Unlock()

	a.Activate(DomainNetwork)
	waitFor(t, "watch context cancellation", func() bool { return subCtx.Err() != nil })

	if cell.Load() != DomainNetwork {
		t.Errorf("cell = %q, want network", cell.Load())
	}

	// Returning to audio with fresh state does not list again.
	a.Activate(DomainAudio)
	waitFor(t, "second subscription", func() bool { return b.callCount("Subscribe") == 2 })
	if n := b.callCount("ListSinks"); n != 1 {
		t.Errorf("ListSinks called %d times, want 1", n)
	}
}

func TestActivator_ResyncAfterConnectionLoss(t *testing.T) {
	b := newMockBackend()
	p, _ := newTestProcessor(t, b)
	a := NewActivator(p, b, &ActiveDomain{})
	defer a.Close()

	a.Activate(DomainAudio)
	waitFor(t, "fresh state", func() bool { return !p.Snapshot().Stale })

	close(b.notes)
	waitFor(t, "stale state", func() bool { return p.Snapshot().Stale })

	b.mu.Lock()
	b.notes = make(chan Notification, 16)
	b.mu.Unlock()

	a.Activate(DomainAudio)
	waitFor(t, "second listing", func() bool { return b.callCount("ListSinks") == 2 })
	waitFor(t, "fresh state", func() bool { return !p.Snapshot().Stale })
}

func TestActivator_ChangeDuringListingKept(t *testing.T) {
	b := newMockBackend()
	b.sinks = []Device{sink(1, "a")}
	// The bus only delivers to subscribers: a change made while the listing
	// is being answered is lost unless the stream is already open.
	b.onList = func() {
		b.mu.Lock()
		open := len(b.subscribed) > 0
		b.mu.Unlock()
		if open {
			b.notes <- Notification{Kind: "SinkAdded", Payload: jsonPayload(`{"index":5,"name":"usb","channels":2,"volume":[1,1]}`)}
		}
	}
	p, _ := newTestProcessor(t, b)
	a := NewActivator(p, b, &ActiveDomain{})
	defer a.Close()

	if err := a.Activate(DomainAudio); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	waitFor(t, "sink added during listing", func() bool {
		snap := p.Snapshot()
		_, ok := snap.Device(CategorySink, 5)
		return ok && !snap.Stale
	})
	if _, ok := p.Snapshot().Device(CategorySink, 1); !ok {
		t.Error("listed sink 1 missing")
	}
}

func TestActivator_Close(t *testing.T) {
	b := newMockBackend()
	p, _ := newTestProcessor(t, b)
	cell := &ActiveDomain{}
	a := NewActivator(p, b, cell)

	a.Activate(DomainAudio)
	waitFor(t, "subscription", func() bool { return b.callCount("Subscribe") == 1 })
	a.Close()

	if cell.Load() != DomainNone {
		t.Errorf("cell = %q after Close, want none", cell.Load())
	}
	if err := a.Activate(DomainAudio); !errors.Is(err, ErrProcessorStopped) {
		t.Errorf("Activate after Close = %v, want ErrProcessorStopped", err)
	}
}
