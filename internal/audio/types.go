package audio

import "fmt"

// Category identifies one of the registry's entity collections.
type Category string

// Category constants.
const (
	CategorySink         Category = "sink"
	CategorySource       Category = "source"
	CategoryInputStream  Category = "input_stream"
	CategoryOutputStream Category = "output_stream"
	CategoryCard         Category = "card"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategorySink,
	CategorySource,
	CategoryInputStream,
	CategoryOutputStream,
	CategoryCard,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySink, CategorySource, CategoryInputStream, CategoryOutputStream, CategoryCard:
		return true
	}
	return false
}

// IsDevice reports whether the category holds Device records.
func (c Category) IsDevice() bool {
	return c == CategorySink || c == CategorySource
}

// IsStream reports whether the category holds Stream records.
func (c Category) IsStream() bool {
	return c == CategoryInputStream || c == CategoryOutputStream
}

// RoutingTarget returns the device category a stream category routes through.
// Input streams play into sinks; output streams record from sources.
func (c Category) RoutingTarget() (Category, bool) {
	switch c {
	case CategoryInputStream:
		return CategorySink, true
	case CategoryOutputStream:
		return CategorySource, true
	}
	return "", false
}

// MemberPrefix returns the daemon's method and signal name stem for the
// category, e.g. "InputStream" for SetInputStreamVolume and InputStreamAdded.
func (c Category) MemberPrefix() string {
	switch c {
	case CategorySink:
		return "Sink"
	case CategorySource:
		return "Source"
	case CategoryInputStream:
		return "InputStream"
	case CategoryOutputStream:
		return "OutputStream"
	case CategoryCard:
		return "Card"
	}
	return ""
}

// ParseCategory converts a string to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Entity is implemented by every record type held in the registry.
type Entity interface {
	// Key returns the record's index, unique within its category.
	Key() uint32
	entity()
}

// Record is the constraint used by Store. T is the concrete record type.
type Record[T any] interface {
	Entity
	DeepCopy() T
}

// Device is a sink or source known to the daemon.
//
// Field order mirrors the daemon's (ussqaubi) struct signature.
type Device struct {
	Index    uint32   `json:"index"`
	Name     string   `json:"name"`
	Alias    string   `json:"alias"`
	Channels uint16   `json:"channels"`
	Volume   []uint32 `json:"volume"`
	Muted    bool     `json:"muted"`
	Active   int32    `json:"active"`
}

// Key implements Entity.
func (d Device) Key() uint32 { return d.Index }

func (Device) entity() {}

// DeepCopy returns a copy that shares no memory with d.
func (d Device) DeepCopy() Device {
	d.Volume = copyVolume(d.Volume)
	return d
}

// Stream is an application audio flow. Input streams play through a sink;
// output streams record through a source. DeviceIndex names that device.
//
// Field order mirrors the daemon's (ussuqaubb) struct signature.
type Stream struct {
	Index           uint32   `json:"index"`
	Name            string   `json:"name"`
	ApplicationName string   `json:"application_name"`
	DeviceIndex     uint32   `json:"sink_index"`
	Channels        uint16   `json:"channels"`
	Volume          []uint32 `json:"volume"`
	Muted           bool     `json:"muted"`
	Corked          bool     `json:"corked"`
}

// Key implements Entity.
func (s Stream) Key() uint32 { return s.Index }

func (Stream) entity() {}

// DeepCopy returns a copy that shares no memory with s.
func (s Stream) DeepCopy() Stream {
	s.Volume = copyVolume(s.Volume)
	return s
}

// CardProfile is one selectable operating profile of a card.
type CardProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// Card groups devices of one physical or logical audio device.
//
// Field order mirrors the daemon's (usa(ssb)s) struct signature.
type Card struct {
	Index         uint32        `json:"index"`
	Name          string        `json:"name"`
	Profiles      []CardProfile `json:"profiles"`
	ActiveProfile string        `json:"active_profile"`
}

// Key implements Entity.
func (c Card) Key() uint32 { return c.Index }

func (Card) entity() {}

// DeepCopy returns a copy that shares no memory with c.
func (c Card) DeepCopy() Card {
	if c.Profiles != nil {
		profiles := make([]CardProfile, len(c.Profiles))
		copy(profiles, c.Profiles)
		c.Profiles = profiles
	}
	return c
}

// HasProfile reports whether the card offers a profile with the given name.
func (c Card) HasProfile(name string) bool {
	for _, p := range c.Profiles {
		if p.Name == name {
			return true
		}
	}
	return false
}

func copyVolume(v []uint32) []uint32 {
	if v == nil {
		return nil
	}
	out := make([]uint32, len(v))
	copy(out, v)
	return out
}

// broadcastVolume returns a volume slice with level on every channel.
// The result covers max(len(current), channels) channels.
func broadcastVolume(current []uint32, channels uint16, level uint32) []uint32 {
	n := len(current)
	if int(channels) > n {
		n = int(channels)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = level
	}
	return out
}
