package dbus

import (
	"context"
	"fmt"
	"strings"

	godbus "github.com/godbus/dbus/v5"

	"github.com/nerrad567/reset-core/internal/audio"
)

// Subscribe implements audio.Backend. It adds a match rule for the audio
// interface on the daemon path and forwards every matching signal as a
// Notification whose payload is decoded with dbus.Store.
//
// The returned channel is closed when ctx ends or the connection closes.
func (c *Client) Subscribe(ctx context.Context, domain audio.Domain) (<-chan audio.Notification, error) {
	if domain != audio.DomainAudio {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDomain, domain)
	}

	match := []godbus.MatchOption{
		godbus.WithMatchInterface(AudioInterface),
		godbus.WithMatchObjectPath(c.path),
	}
	if err := c.bus.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, fmt.Errorf("adding signal match: %w", err)
	}

	signals := make(chan *godbus.Signal, c.buffer)
	c.bus.Signal(signals)

	out := make(chan audio.Notification, c.buffer)
	go c.forward(ctx, signals, out, match)
	return out, nil
}

func (c *Client) forward(ctx context.Context, signals chan *godbus.Signal, out chan<- audio.Notification, match []godbus.MatchOption) {
	defer close(out)
	defer func() {
		c.bus.RemoveSignal(signals)
		// ctx is done here; use a fresh one so the rule is actually removed.
		if err := c.bus.RemoveMatchSignalContext(context.Background(), match...); err != nil {
			c.logger.Debug("removing signal match failed", "error", err)
		}
	}()

	prefix := AudioInterface + "."
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				c.logger.Warn("dbus signal channel closed")
				return
			}
			if sig == nil || sig.Path != c.path || !strings.HasPrefix(sig.Name, prefix) {
				continue
			}
			n := audio.Notification{
				Kind:    strings.TrimPrefix(sig.Name, prefix),
				Payload: bodyPayload(sig.Body),
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// bodyPayload decodes a signal body. Every audio signal carries exactly one
// value: a record struct or a u32 index.
func bodyPayload(body []any) audio.Payload {
	return audio.PayloadFunc(func(v any) error {
		if len(body) != 1 {
			return fmt.Errorf("expected 1 body value, got %d", len(body))
		}
		return godbus.Store(body, v)
	})
}
