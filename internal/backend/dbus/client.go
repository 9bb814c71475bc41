package dbus

import (
	"context"
	"fmt"

	godbus "github.com/godbus/dbus/v5"

	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/infrastructure/config"
)

// Daemon interfaces.
const (
	AudioInterface  = "org.Xetibo.ReSet.Audio"
	DaemonInterface = "org.Xetibo.ReSet.Daemon"
)

const defaultSignalBuffer = 64

// busObject is the subset of godbus.BusObject used for method calls.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags godbus.Flags, args ...any) *godbus.Call
}

// signalBus is the subset of *godbus.Conn used for signal delivery.
type signalBus interface {
	AddMatchSignalContext(ctx context.Context, options ...godbus.MatchOption) error
	RemoveMatchSignalContext(ctx context.Context, options ...godbus.MatchOption) error
	Signal(ch chan<- *godbus.Signal)
	RemoveSignal(ch chan<- *godbus.Signal)
}

// Logger is the logging interface used by Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client is an audio.Backend over D-Bus.
//
// Thread Safety:
//   - All methods are safe for concurrent use; godbus serialises writes.
type Client struct {
	conn   *godbus.Conn
	obj    busObject
	bus    signalBus
	path   godbus.ObjectPath
	buffer int
	logger Logger
}

var _ audio.Backend = (*Client)(nil)

// Dial connects to the configured bus and binds the daemon object.
func Dial(cfg config.DBusBackendConfig) (*Client, error) {
	var (
		conn *godbus.Conn
		err  error
	)
	switch cfg.Bus {
	case "session", "":
		conn, err = godbus.ConnectSessionBus()
	case "system":
		conn, err = godbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBus, cfg.Bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s bus: %w", cfg.Bus, err)
	}

	path := godbus.ObjectPath(cfg.Path)
	c := newClient(conn.Object(cfg.Destination, path), conn, path)
	c.conn = conn
	return c, nil
}

func newClient(obj busObject, bus signalBus, path godbus.ObjectPath) *Client {
	return &Client{
		obj:    obj,
		bus:    bus,
		path:   path,
		buffer: defaultSignalBuffer,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Must be called before Subscribe.
func (c *Client) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Close closes the bus connection, which also closes every open
// notification stream.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// call invokes iface.method and stores the reply into ret.
func (c *Client) call(ctx context.Context, iface, method string, ret []any, args ...any) error {
	call := c.obj.CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCallFailed, method, call.Err)
	}
	if len(ret) == 0 {
		return nil
	}
	if err := call.Store(ret...); err != nil {
		return fmt.Errorf("%w: %s: decoding reply: %w", ErrCallFailed, method, err)
	}
	return nil
}

func (c *Client) audioCall(ctx context.Context, method string, ret []any, args ...any) error {
	return c.call(ctx, AudioInterface, method, ret, args...)
}

// RegisterClient implements audio.Backend.
func (c *Client) RegisterClient(ctx context.Context, name string) error {
	var ok bool
	if err := c.call(ctx, DaemonInterface, "RegisterClient", []any{&ok}, name); err != nil {
		return err
	}
	if !ok {
		return ErrRegistrationRefused
	}
	return nil
}

func (c *Client) listDevices(ctx context.Context, method string) ([]audio.Device, error) {
	var out []audio.Device
	if err := c.audioCall(ctx, method, []any{&out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) listStreams(ctx context.Context, method string) ([]audio.Stream, error) {
	var out []audio.Stream
	if err := c.audioCall(ctx, method, []any{&out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) device(ctx context.Context, method string, args ...any) (audio.Device, error) {
	var out audio.Device
	if err := c.audioCall(ctx, method, []any{&out}, args...); err != nil {
		return audio.Device{}, err
	}
	return out, nil
}

// ListSinks implements audio.Backend.
func (c *Client) ListSinks(ctx context.Context) ([]audio.Device, error) {
	return c.listDevices(ctx, "ListSinks")
}

// ListSources implements audio.Backend.
func (c *Client) ListSources(ctx context.Context) ([]audio.Device, error) {
	return c.listDevices(ctx, "ListSources")
}

// ListInputStreams implements audio.Backend.
func (c *Client) ListInputStreams(ctx context.Context) ([]audio.Stream, error) {
	return c.listStreams(ctx, "ListInputStreams")
}

// ListOutputStreams implements audio.Backend.
func (c *Client) ListOutputStreams(ctx context.Context) ([]audio.Stream, error) {
	return c.listStreams(ctx, "ListOutputStreams")
}

// ListCards implements audio.Backend.
func (c *Client) ListCards(ctx context.Context) ([]audio.Card, error) {
	var out []audio.Card
	if err := c.audioCall(ctx, "ListCards", []any{&out}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDefaultSink implements audio.Backend.
func (c *Client) GetDefaultSink(ctx context.Context) (audio.Device, error) {
	return c.device(ctx, "GetDefaultSink")
}

// GetDefaultSource implements audio.Backend.
func (c *Client) GetDefaultSource(ctx context.Context) (audio.Device, error) {
	return c.device(ctx, "GetDefaultSource")
}

// SetVolume implements audio.Backend. The daemon method is chosen by
// category, e.g. SetInputStreamVolume(u index, q channels, u level).
func (c *Client) SetVolume(ctx context.Context, category audio.Category, index uint32, channels uint16, level uint32) error {
	if !category.IsDevice() && !category.IsStream() {
		return fmt.Errorf("%w: %q has no volume", audio.ErrUnknownCategory, category)
	}
	return c.audioCall(ctx, "Set"+category.MemberPrefix()+"Volume", nil, index, channels, level)
}

// SetMute implements audio.Backend.
func (c *Client) SetMute(ctx context.Context, category audio.Category, index uint32, muted bool) error {
	if !category.IsDevice() && !category.IsStream() {
		return fmt.Errorf("%w: %q has no mute", audio.ErrUnknownCategory, category)
	}
	return c.audioCall(ctx, "Set"+category.MemberPrefix()+"Mute", nil, index, muted)
}

// SetDefaultSink implements audio.Backend.
func (c *Client) SetDefaultSink(ctx context.Context, name string) (audio.Device, error) {
	return c.device(ctx, "SetDefaultSink", name)
}

// SetDefaultSource implements audio.Backend.
func (c *Client) SetDefaultSource(ctx context.Context, name string) (audio.Device, error) {
	return c.device(ctx, "SetDefaultSource", name)
}

// SetInputStreamSink implements audio.Backend.
func (c *Client) SetInputStreamSink(ctx context.Context, stream audio.Stream, sink audio.Device) error {
	return c.audioCall(ctx, "SetSinkOfInputStream", nil, stream, sink)
}

// SetOutputStreamSource implements audio.Backend.
func (c *Client) SetOutputStreamSource(ctx context.Context, stream audio.Stream, source audio.Device) error {
	return c.audioCall(ctx, "SetSourceOfOutputStream", nil, stream, source)
}

// SetCardProfile implements audio.Backend.
func (c *Client) SetCardProfile(ctx context.Context, cardIndex uint32, profile string) error {
	return c.audioCall(ctx, "SetCardProfileOfDevice", nil, cardIndex, profile)
}
