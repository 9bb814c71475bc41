package audio

import "context"

// Backend is the client of the ReSet daemon's audio interface.
//
// Every call may fail and reports failure through its error; implementations
// must not panic. Calls may block on the network and honour ctx.
type Backend interface {
	// RegisterClient announces the panel to the daemon.
	RegisterClient(ctx context.Context, name string) error

	ListSinks(ctx context.Context) ([]Device, error)
	ListSources(ctx context.Context) ([]Device, error)
	ListInputStreams(ctx context.Context) ([]Stream, error)
	ListOutputStreams(ctx context.Context) ([]Stream, error)
	ListCards(ctx context.Context) ([]Card, error)

	GetDefaultSink(ctx context.Context) (Device, error)
	GetDefaultSource(ctx context.Context) (Device, error)

	// SetVolume applies level to every channel of the target.
	SetVolume(ctx context.Context, category Category, index uint32, channels uint16, level uint32) error
	SetMute(ctx context.Context, category Category, index uint32, muted bool) error

	// SetDefaultSink and SetDefaultSource return the daemon's record for the
	// new default.
	SetDefaultSink(ctx context.Context, name string) (Device, error)
	SetDefaultSource(ctx context.Context, name string) (Device, error)

	SetInputStreamSink(ctx context.Context, stream Stream, sink Device) error
	SetOutputStreamSource(ctx context.Context, stream Stream, source Device) error
	SetCardProfile(ctx context.Context, cardIndex uint32, profile string) error

	// Subscribe opens the notification stream of a domain. The channel is
	// closed when ctx ends or the connection is lost.
	Subscribe(ctx context.Context, domain Domain) (<-chan Notification, error)
}

// Notification is one raw change signal from the daemon.
type Notification struct {
	// Kind is the daemon's signal member name, e.g. "SinkChanged".
	Kind string
	// Payload decodes the signal body.
	Payload Payload
}

// Payload decodes a notification body into v, which is a pointer to Device,
// Stream, Card or uint32 depending on the signal kind.
type Payload interface {
	Decode(v any) error
}

// PayloadFunc adapts a function to Payload.
type PayloadFunc func(v any) error

// Decode implements Payload.
func (f PayloadFunc) Decode(v any) error {
	return f(v)
}
