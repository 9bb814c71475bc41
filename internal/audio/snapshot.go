package audio

import "sort"

// PendingKey names a record with an unconfirmed optimistic change.
type PendingKey struct {
	Category Category `json:"category"`
	Index    uint32   `json:"index"`
}

// Snapshot is an immutable view of the registry.
//
// Record slices are ordered by index. A Snapshot is never modified after it
// is published; callers must not modify it either.
type Snapshot struct {
	Sinks         []Device       `json:"sinks"`
	Sources       []Device       `json:"sources"`
	InputStreams  []Stream       `json:"input_streams"`
	OutputStreams []Stream       `json:"output_streams"`
	Cards         []Card         `json:"cards"`
	DefaultSink   DefaultPointer `json:"default_sink"`
	DefaultSource DefaultPointer `json:"default_source"`
	Pending       []PendingKey   `json:"pending"`
	// Stale is set until the first full listing, and again whenever the
	// notification stream was lost.
	Stale   bool   `json:"stale"`
	Version uint64 `json:"version"`
}

// emptySnapshot is published before the Processor has any state.
func emptySnapshot() *Snapshot {
	return &Snapshot{
		Sinks:         []Device{},
		Sources:       []Device{},
		InputStreams:  []Stream{},
		OutputStreams: []Stream{},
		Cards:         []Card{},
		DefaultSink:   DefaultPointer{Dummy: true},
		DefaultSource: DefaultPointer{Dummy: true},
		Pending:       []PendingKey{},
		Stale:         true,
	}
}

// Device returns the sink or source with the given index.
func (s *Snapshot) Device(category Category, index uint32) (Device, bool) {
	var list []Device
	switch category {
	case CategorySink:
		list = s.Sinks
	case CategorySource:
		list = s.Sources
	default:
		return Device{}, false
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].Index >= index })
	if i < len(list) && list[i].Index == index {
		return list[i], true
	}
	return Device{}, false
}

// Stream returns the input or output stream with the given index.
func (s *Snapshot) Stream(category Category, index uint32) (Stream, bool) {
	var list []Stream
	switch category {
	case CategoryInputStream:
		list = s.InputStreams
	case CategoryOutputStream:
		list = s.OutputStreams
	default:
		return Stream{}, false
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].Index >= index })
	if i < len(list) && list[i].Index == index {
		return list[i], true
	}
	return Stream{}, false
}

// Card returns the card with the given index.
func (s *Snapshot) Card(index uint32) (Card, bool) {
	i := sort.Search(len(s.Cards), func(i int) bool { return s.Cards[i].Index >= index })
	if i < len(s.Cards) && s.Cards[i].Index == index {
		return s.Cards[i], true
	}
	return Card{}, false
}

// Default returns the default device of category, or false when the pointer
// is dummy.
func (s *Snapshot) Default(category Category) (Device, bool) {
	var p DefaultPointer
	switch category {
	case CategorySink:
		p = s.DefaultSink
	case CategorySource:
		p = s.DefaultSource
	default:
		return Device{}, false
	}
	if p.Dummy {
		return Device{}, false
	}
	return s.Device(category, p.Index)
}

// StreamDevice resolves the device a stream routes through. A dangling
// DeviceIndex yields false; callers render the gap.
func (s *Snapshot) StreamDevice(category Category, stream Stream) (Device, bool) {
	target, ok := category.RoutingTarget()
	if !ok {
		return Device{}, false
	}
	return s.Device(target, stream.DeviceIndex)
}

// IsPending reports whether the record has an unconfirmed optimistic change.
func (s *Snapshot) IsPending(category Category, index uint32) bool {
	for _, k := range s.Pending {
		if k.Category == category && k.Index == index {
			return true
		}
	}
	return false
}

// DeviceView groups what one audio page shows: the default device, every
// device of its category, and the streams of the companion stream category.
type DeviceView struct {
	Default    *Device  `json:"default,omitempty"`
	Devices    []Device `json:"devices"`
	Streams    []Stream `json:"streams"`
	StreamKind Category `json:"stream_kind"`
}

// OutputView returns the playback page: the default sink and input streams.
func (s *Snapshot) OutputView() DeviceView {
	v := DeviceView{Devices: s.Sinks, Streams: s.InputStreams, StreamKind: CategoryInputStream}
	if d, ok := s.Default(CategorySink); ok {
		v.Default = &d
	}
	return v
}

// InputView returns the recording page: the default source and output streams.
func (s *Snapshot) InputView() DeviceView {
	v := DeviceView{Devices: s.Sources, Streams: s.OutputStreams, StreamKind: CategoryOutputStream}
	if d, ok := s.Default(CategorySource); ok {
		v.Default = &d
	}
	return v
}
