package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/infrastructure/mqtt"
)

// stream is one open notification channel.
type stream struct {
	mu     sync.Mutex
	out    chan audio.Notification
	closed bool
}

// send delivers n unless the stream is closed. It never blocks: a full
// buffer drops the notification and reports false.
func (s *stream) send(n audio.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.out <- n:
		return true
	default:
		return false
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// Subscribe implements audio.Backend. Events arrive on
// reset/event/audio/{Kind} with the record (or removed index) as JSON body.
//
// The broker subscription is shared by every stream and opened by the first
// call; cancelling ctx closes only this stream.
func (b *Bridge) Subscribe(ctx context.Context, domain audio.Domain) (<-chan audio.Notification, error) {
	if domain != audio.DomainAudio {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDomain, domain)
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := b.subscribeEvents(); err != nil {
		return nil, err
	}

	s := &stream{out: make(chan audio.Notification, defaultEventBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.streams[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeStream(s)
		s.close()
	}()

	return s.out, nil
}

// subscribeEvents opens the shared event subscription once. The mqtt client
// restores it after a reconnect.
func (b *Bridge) subscribeEvents() error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.eventsOn {
		return nil
	}
	topic := b.topics.AllEvents(domainAudio)
	if err := b.transport.Subscribe(topic, b.transport.QoS(), b.handleEvent); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	b.eventsOn = true
	return nil
}

func (b *Bridge) unsubscribeEvents() error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if !b.eventsOn {
		return nil
	}
	b.eventsOn = false
	return b.transport.Unsubscribe(b.topics.AllEvents(domainAudio))
}

// handleEvent fans one event out to every open stream.
func (b *Bridge) handleEvent(topic string, payload []byte) error {
	body := append([]byte(nil), payload...)
	n := audio.Notification{
		Kind: mqtt.LastSegment(topic),
		Payload: audio.PayloadFunc(func(v any) error {
			return json.Unmarshal(body, v)
		}),
	}

	b.mu.Lock()
	streams := make([]*stream, 0, len(b.streams))
	for s := range b.streams {
		streams = append(streams, s)
	}
	b.mu.Unlock()

	for _, s := range streams {
		if s.send(n) {
			continue
		}
		// A lost event leaves the registry wrong; end the stream so the
		// subscriber resyncs.
		b.logger.Warn("mqtt event stream full, closing", "kind", n.Kind)
		b.removeStream(s)
		s.close()
	}
	return nil
}

func (b *Bridge) removeStream(s *stream) {
	b.mu.Lock()
	delete(b.streams, s)
	b.mu.Unlock()
}
