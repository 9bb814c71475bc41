package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/infrastructure/mqtt"
)

// mockTransport records publishes and lets tests drive subscriptions.
type mockTransport struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []request
	subErr    error
	pubErr    error

	// respond, when set, answers each request from a goroutine.
	respond func(req request) *response
}

func newMockTransport() *mockTransport {
	return &mockTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockTransport) PublishJSON(topic string, v any) error {
	req, ok := v.(request)
	if !ok {
		return errors.New("unexpected payload type")
	}
	if topic != "reset/request/audio/"+req.ID {
		return errors.New("unexpected topic " + topic)
	}

	m.mu.Lock()
	if m.pubErr != nil {
		m.mu.Unlock()
		return m.pubErr
	}
	m.published = append(m.published, req)
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		if resp := respond(req); resp != nil {
			body, _ := json.Marshal(resp)
			go m.deliver("reset/response/audio/"+req.ID, body)
		}
	}
	return nil
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockTransport) QoS() byte { return 1 }

func (m *mockTransport) hasHandler(filter string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[filter]
	return ok
}

// deliver routes a message to the handler whose filter matches topic.
func (m *mockTransport) deliver(topic string, payload []byte) {
	m.mu.Lock()
	var h mqtt.MessageHandler
	switch {
	case len(topic) > len("reset/response/audio/") && topic[:len("reset/response/audio/")] == "reset/response/audio/":
		h = m.handlers["reset/response/audio/+"]
	case len(topic) > len("reset/event/audio/") && topic[:len("reset/event/audio/")] == "reset/event/audio/":
		h = m.handlers["reset/event/audio/+"]
	}
	m.mu.Unlock()
	if h != nil {
		_ = h(topic, payload)
	}
}

func okResult(v any) *response {
	body, _ := json.Marshal(v)
	return &response{OK: true, Result: body}
}

func newTestBridge(t *testing.T, respond func(request) *response) (*Bridge, *mockTransport) {
	t.Helper()
	tr := newMockTransport()
	tr.respond = func(req request) *response {
		resp := respond(req)
		if resp != nil {
			resp.ID = req.ID
		}
		return resp
	}
	b, err := New(tr, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, tr
}

func TestNew_SubscribesToResponses(t *testing.T) {
	tr := newMockTransport()
	if _, err := New(tr, 0); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !tr.hasHandler("reset/response/audio/+") {
		t.Error("response subscription missing")
	}

	tr.subErr = errors.New("not connected")
	if _, err := New(tr, 0); err == nil {
		t.Error("expected subscribe error")
	}
}

func TestCall_ListSinks(t *testing.T) {
	want := []audio.Device{{Index: 1, Name: "alsa_output", Alias: "Speakers", Channels: 2, Volume: []uint32{100, 100}}}
	b, tr := newTestBridge(t, func(req request) *response {
		if req.Method != "ListSinks" {
			return &response{Error: "unexpected method " + req.Method}
		}
		return okResult(want)
	})

	got, err := b.ListSinks(context.Background())
	if err != nil {
		t.Fatalf("ListSinks() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListSinks() = %+v", got)
	}
	if tr.published[0].Timestamp.IsZero() {
		t.Error("request timestamp not set")
	}
}

func TestCall_VolumeParams(t *testing.T) {
	var gotMethod string
	var gotParams volumeParams
	b, _ := newTestBridge(t, func(req request) *response {
		gotMethod = req.Method
		gotParams, _ = req.Params.(volumeParams)
		return &response{OK: true}
	})

	if err := b.SetVolume(context.Background(), audio.CategoryOutputStream, 8, 2, 5000); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if gotMethod != "SetOutputStreamVolume" {
		t.Errorf("method = %s", gotMethod)
	}
	if gotParams != (volumeParams{Index: 8, Channels: 2, Level: 5000}) {
		t.Errorf("params = %+v", gotParams)
	}

	if err := b.SetMute(context.Background(), audio.CategoryCard, 1, true); !errors.Is(err, audio.ErrUnknownCategory) {
		t.Errorf("SetMute(card) error = %v", err)
	}
}

func TestCall_RemoteError(t *testing.T) {
	b, _ := newTestBridge(t, func(request) *response {
		return &response{Error: "no such card"}
	})

	err := b.SetCardProfile(context.Background(), 3, "off")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("SetCardProfile() error = %v, want ErrRemote", err)
	}
}

func TestCall_Timeout(t *testing.T) {
	tr := newMockTransport()
	b, err := New(tr, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.GetDefaultSink(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("GetDefaultSink() error = %v, want ErrTimeout", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) != 0 {
		t.Errorf("pending = %d after timeout", len(b.pending))
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.ListCards(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ListCards() error = %v", err)
	}
}

func TestCall_PublishError(t *testing.T) {
	tr := newMockTransport()
	tr.pubErr = errors.New("not connected")
	b, _ := New(tr, time.Second)

	if err := b.SetMute(context.Background(), audio.CategorySink, 1, true); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestRegisterClient(t *testing.T) {
	accept := true
	b, _ := newTestBridge(t, func(req request) *response {
		if p, _ := req.Params.(nameParams); p.Name != "ReSet-Panel" {
			return &response{Error: "bad name"}
		}
		return okResult(accept)
	})

	if err := b.RegisterClient(context.Background(), "ReSet-Panel"); err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	accept = false
	if err := b.RegisterClient(context.Background(), "ReSet-Panel"); !errors.Is(err, ErrRegistration) {
		t.Fatalf("RegisterClient() error = %v, want ErrRegistration", err)
	}
}

func TestHandleResponse_UnmatchedAndMalformed(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	if err := b.handleResponse("reset/response/audio/x", []byte("{")); err == nil {
		t.Error("expected decode error")
	}
	if err := b.handleResponse("reset/response/audio/x", []byte(`{"ok":true}`)); err != nil {
		t.Errorf("unmatched response error = %v", err)
	}
}

func TestClose_FailsPending(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Minute)

	errc := make(chan error, 1)
	go func() {
		_, err := b.ListSources(context.Background())
		errc <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		n := len(b.pending)
		b.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending call not released by Close")
	}

	if _, err := b.ListSinks(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("call after Close error = %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	if _, err := b.Subscribe(context.Background(), audio.DomainBluetooth); !errors.Is(err, ErrUnsupportedDomain) {
		t.Fatalf("Subscribe(bluetooth) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	notes, err := b.Subscribe(ctx, audio.DomainAudio)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	tr.deliver("reset/event/audio/InputStreamChanged",
		[]byte(`{"index":42,"name":"Music","application_name":"player","sink_index":3,"channels":2,"volume":[1,2],"muted":false,"corked":true}`))

	var n audio.Notification
	select {
	case n = <-notes:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	ev, ok, err := audio.DecodeNotification(n)
	if !ok || err != nil {
		t.Fatalf("DecodeNotification() = %v, %v", ok, err)
	}
	ch, isChanged := ev.(audio.Changed)
	if !isChanged || ch.Category != audio.CategoryInputStream {
		t.Fatalf("event = %#v", ev)
	}
	if s := ch.Record.(audio.Stream); s.DeviceIndex != 3 || !s.Corked {
		t.Errorf("stream = %+v", s)
	}

	cancel()
	select {
	case _, open := <-notes:
		if open {
			t.Fatal("unexpected notification")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed on cancel")
	}
}

func TestConnectionLost_ClosesStreams(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	notes, err := b.Subscribe(context.Background(), audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}
	b.ConnectionLost(errors.New("broker gone"))

	select {
	case _, open := <-notes:
		if open {
			t.Fatal("unexpected notification")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}

	// Late events after the close are ignored.
	tr.deliver("reset/event/audio/SinkRemoved", []byte("1"))
}

func TestSubscribe_OverflowClosesStream(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	notes, err := b.Subscribe(context.Background(), audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= defaultEventBuffer; i++ {
		tr.deliver("reset/event/audio/SinkRemoved", []byte("1"))
	}

	count := 0
	for range notes {
		count++
	}
	if count != defaultEventBuffer {
		t.Errorf("delivered = %d, want %d", count, defaultEventBuffer)
	}
}

func TestSubscribe_CancelledStreamKeepsSharedSubscription(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	first, err := b.Subscribe(ctx, audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Subscribe(context.Background(), audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case _, open := <-first:
		if open {
			t.Fatal("unexpected notification")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled stream not closed")
	}

	if !tr.hasHandler("reset/event/audio/+") {
		t.Fatal("event subscription dropped when one stream ended")
	}
	tr.deliver("reset/event/audio/SinkRemoved", []byte("4"))
	select {
	case n := <-second:
		if n.Kind != "SinkRemoved" {
			t.Errorf("kind = %s", n.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("surviving stream received nothing")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if tr.hasHandler("reset/event/audio/+") {
		t.Error("event subscription left after Close")
	}
}

func TestSubscribe_OverflowClosesOnlyFullStream(t *testing.T) {
	tr := newMockTransport()
	b, _ := New(tr, time.Second)

	idle, err := b.Subscribe(context.Background(), audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}
	busy, err := b.Subscribe(context.Background(), audio.DomainAudio)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i <= defaultEventBuffer; i++ {
		tr.deliver("reset/event/audio/SinkRemoved", []byte("1"))
		<-busy
	}

	count := 0
	for range idle {
		count++
	}
	if count != defaultEventBuffer {
		t.Errorf("idle stream delivered %d, want %d", count, defaultEventBuffer)
	}

	tr.deliver("reset/event/audio/SinkRemoved", []byte("2"))
	select {
	case _, open := <-busy:
		if !open {
			t.Fatal("drained stream was closed")
		}
	case <-time.After(time.Second):
		t.Fatal("drained stream received nothing")
	}
}
