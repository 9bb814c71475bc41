package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/infrastructure/mqtt"
)

const (
	domainAudio        = string(audio.DomainAudio)
	defaultTimeout     = 5 * time.Second
	defaultEventBuffer = 64
)

// Errors returned by Bridge.
var (
	ErrTimeout           = errors.New("mqttbridge: request timed out")
	ErrRemote            = errors.New("mqttbridge: daemon returned an error")
	ErrClosed            = errors.New("mqttbridge: bridge closed")
	ErrUnsupportedDomain = errors.New("mqttbridge: unsupported domain")
	ErrRegistration      = errors.New("mqttbridge: daemon refused client registration")
)

// Transport is the subset of *mqtt.Client the bridge needs.
type Transport interface {
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger is the logging interface used by Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// request is published to reset/request/audio/{id}.
type request struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Params    any       `json:"params,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// response arrives on reset/response/audio/{id}.
type response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	closed bool
}

// Bridge is an audio.Backend that talks to the daemon over MQTT.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bridge struct {
	transport Transport
	topics    mqtt.Topics
	timeout   time.Duration
	logger    Logger

	mu      sync.Mutex
	pending map[string]chan response
	streams map[*stream]struct{}
	closed  bool

	subMu    sync.Mutex
	eventsOn bool
}

var _ audio.Backend = (*Bridge)(nil)

// New creates a bridge and subscribes to audio responses.
// A timeout <= 0 uses 5 seconds.
func New(t Transport, timeout time.Duration) (*Bridge, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	b := &Bridge{
		transport: t,
		timeout:   timeout,
		logger:    noopLogger{},
		pending:   make(map[string]chan response),
		streams:   make(map[*stream]struct{}),
	}
	if err := t.Subscribe(b.topics.AllResponses(domainAudio), t.QoS(), b.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribing to responses: %w", err)
	}
	return b, nil
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// Close fails outstanding requests, closes notification streams and
// unsubscribes from responses and events.
func (b *Bridge) Close() error {
	b.shutdown()
	return errors.Join(
		b.unsubscribeEvents(),
		b.transport.Unsubscribe(b.topics.AllResponses(domainAudio)),
	)
}

// ConnectionLost closes every open notification stream so the worker reports
// the subscription as ended. Wire it to the MQTT client's disconnect callback.
func (b *Bridge) ConnectionLost(err error) {
	b.logger.Warn("mqtt bridge connection lost", "error", err)

	b.mu.Lock()
	streams := b.streams
	b.streams = make(map[*stream]struct{})
	b.mu.Unlock()

	for s := range streams {
		s.close()
	}
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := b.pending
	b.pending = make(map[string]chan response)
	streams := b.streams
	b.streams = make(map[*stream]struct{})
	b.mu.Unlock()

	for id, ch := range pending {
		ch <- response{ID: id, closed: true}
	}
	for s := range streams {
		s.close()
	}
}

func (b *Bridge) handleResponse(topic string, payload []byte) error {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response on %s: %w", topic, err)
	}
	if resp.ID == "" {
		resp.ID = mqtt.LastSegment(topic)
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("unmatched mqtt response", "id", resp.ID)
		return nil
	}
	ch <- resp // buffered, single send
	return nil
}

// call publishes a request and waits for its response. result may be nil.
func (b *Bridge) call(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()
	ch := make(chan response, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	forget := func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}

	req := request{ID: id, Method: method, Params: params, Timestamp: time.Now().UTC()}
	if err := b.transport.PublishJSON(b.topics.Request(domainAudio, id), req); err != nil {
		forget()
		return fmt.Errorf("%s: %w", method, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.closed {
			return fmt.Errorf("%s: %w", method, ErrClosed)
		}
		if !resp.OK {
			return fmt.Errorf("%w: %s: %s", ErrRemote, method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
		return nil
	case <-timer.C:
		forget()
		return fmt.Errorf("%w: %s after %s", ErrTimeout, method, b.timeout)
	case <-ctx.Done():
		forget()
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}
