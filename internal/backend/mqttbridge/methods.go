package mqttbridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/reset-core/internal/audio"
)

// Request parameter bodies. Method names match the daemon's D-Bus members.
type (
	volumeParams struct {
		Index    uint32 `json:"index"`
		Channels uint16 `json:"channels"`
		Level    uint32 `json:"level"`
	}
	muteParams struct {
		Index uint32 `json:"index"`
		Muted bool   `json:"muted"`
	}
	nameParams struct {
		Name string `json:"name"`
	}
	routeParams struct {
		Stream audio.Stream `json:"stream"`
		Device audio.Device `json:"device"`
	}
	profileParams struct {
		Index   uint32 `json:"index"`
		Profile string `json:"profile"`
	}
)

// fetch calls method and decodes its result into a T.
func fetch[T any](ctx context.Context, b *Bridge, method string, params any) (T, error) {
	var out T
	if err := b.call(ctx, method, params, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// RegisterClient implements audio.Backend.
func (b *Bridge) RegisterClient(ctx context.Context, name string) error {
	var ok bool
	if err := b.call(ctx, "RegisterClient", nameParams{Name: name}, &ok); err != nil {
		return err
	}
	if !ok {
		return ErrRegistration
	}
	return nil
}

// ListSinks implements audio.Backend.
func (b *Bridge) ListSinks(ctx context.Context) ([]audio.Device, error) {
	return fetch[[]audio.Device](ctx, b, "ListSinks", nil)
}

// ListSources implements audio.Backend.
func (b *Bridge) ListSources(ctx context.Context) ([]audio.Device, error) {
	return fetch[[]audio.Device](ctx, b, "ListSources", nil)
}

// ListInputStreams implements audio.Backend.
func (b *Bridge) ListInputStreams(ctx context.Context) ([]audio.Stream, error) {
	return fetch[[]audio.Stream](ctx, b, "ListInputStreams", nil)
}

// ListOutputStreams implements audio.Backend.
func (b *Bridge) ListOutputStreams(ctx context.Context) ([]audio.Stream, error) {
	return fetch[[]audio.Stream](ctx, b, "ListOutputStreams", nil)
}

// ListCards implements audio.Backend.
func (b *Bridge) ListCards(ctx context.Context) ([]audio.Card, error) {
	return fetch[[]audio.Card](ctx, b, "ListCards", nil)
}

// GetDefaultSink implements audio.Backend.
func (b *Bridge) GetDefaultSink(ctx context.Context) (audio.Device, error) {
	return fetch[audio.Device](ctx, b, "GetDefaultSink", nil)
}

// GetDefaultSource implements audio.Backend.
func (b *Bridge) GetDefaultSource(ctx context.Context) (audio.Device, error) {
	return fetch[audio.Device](ctx, b, "GetDefaultSource", nil)
}

// SetVolume implements audio.Backend.
func (b *Bridge) SetVolume(ctx context.Context, category audio.Category, index uint32, channels uint16, level uint32) error {
	if !category.IsDevice() && !category.IsStream() {
		return fmt.Errorf("%w: %q has no volume", audio.ErrUnknownCategory, category)
	}
	return b.call(ctx, "Set"+category.MemberPrefix()+"Volume",
		volumeParams{Index: index, Channels: channels, Level: level}, nil)
}

// SetMute implements audio.Backend.
func (b *Bridge) SetMute(ctx context.Context, category audio.Category, index uint32, muted bool) error {
	if !category.IsDevice() && !category.IsStream() {
		return fmt.Errorf("%w: %q has no mute", audio.ErrUnknownCategory, category)
	}
	return b.call(ctx, "Set"+category.MemberPrefix()+"Mute", muteParams{Index: index, Muted: muted}, nil)
}

// SetDefaultSink implements audio.Backend.
func (b *Bridge) SetDefaultSink(ctx context.Context, name string) (audio.Device, error) {
	return fetch[audio.Device](ctx, b, "SetDefaultSink", nameParams{Name: name})
}

// SetDefaultSource implements audio.Backend.
func (b *Bridge) SetDefaultSource(ctx context.Context, name string) (audio.Device, error) {
	return fetch[audio.Device](ctx, b, "SetDefaultSource", nameParams{Name: name})
}

// SetInputStreamSink implements audio.Backend.
func (b *Bridge) SetInputStreamSink(ctx context.Context, stream audio.Stream, sink audio.Device) error {
	return b.call(ctx, "SetSinkOfInputStream", routeParams{Stream: stream, Device: sink}, nil)
}

// SetOutputStreamSource implements audio.Backend.
func (b *Bridge) SetOutputStreamSource(ctx context.Context, stream audio.Stream, source audio.Device) error {
	return b.call(ctx, "SetSourceOfOutputStream", routeParams{Stream: stream, Device: source}, nil)
}

// SetCardProfile implements audio.Backend.
func (b *Bridge) SetCardProfile(ctx context.Context, cardIndex uint32, profile string) error {
	return b.call(ctx, "SetCardProfileOfDevice", profileParams{Index: cardIndex, Profile: profile}, nil)
}
