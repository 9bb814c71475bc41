package audio

import (
	"reflect"
	"testing"
)

func TestStore_UpsertIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		apply func() (any, any)
	}{
		{
			name: "device",
			apply: func() (any, any) {
				s := NewStore[Device]()
				rec := Device{Index: 1, Name: "alsa_output", Channels: 2, Volume: []uint32{100, 100}}
				s.Upsert(rec)
				once := s.List()
				s.Upsert(rec)
				return once, s.List()
			},
		},
		{
			name: "stream",
			apply: func() (any, any) {
				s := NewStore[Stream]()
				rec := Stream{Index: 9, Name: "playback", ApplicationName: "firefox", DeviceIndex: 1, Channels: 2, Volume: []uint32{5, 5}}
				s.Upsert(rec)
				once := s.List()
				s.Upsert(rec)
				return once, s.List()
			},
		},
		{
			name: "card",
			apply: func() (any, any) {
				s := NewStore[Card]()
				rec := Card{Index: 0, Name: "pci", Profiles: []CardProfile{{Name: "off"}}, ActiveProfile: "off"}
				s.Upsert(rec)
				once := s.List()
				s.Upsert(rec)
				return once, s.List()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once, twice := tt.apply()
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("state after second upsert = %+v, want %+v", twice, once)
			}
		})
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := NewStore[Device]()
	s.Upsert(Device{Index: 1, Name: "old"})
	s.Upsert(Device{Index: 1, Name: "new"})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	got, _ := s.Get(1)
	if got.Name != "new" {
		t.Errorf("Name = %q, want %q", got.Name, "new")
	}
}

func TestStore_RemoveAbsent(t *testing.T) {
	s := NewStore[Device]()
	s.Upsert(Device{Index: 1, Name: "a"})
	s.Upsert(Device{Index: 2, Name: "b"})
	before := s.List()

	if s.Remove(42) {
		t.Error("Remove(42) = true, want false")
	}
	if !reflect.DeepEqual(before, s.List()) {
		t.Errorf("store changed after removing absent index")
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore[Stream]()
	s.Upsert(Stream{Index: 3})

	if !s.Remove(3) {
		t.Error("Remove(3) = false, want true")
	}
	if s.Contains(3) {
		t.Error("Contains(3) = true after removal")
	}
}

func TestStore_DeepCopy(t *testing.T) {
	s := NewStore[Device]()
	vol := []uint32{10, 10}
	s.Upsert(Device{Index: 1, Volume: vol})

	vol[0] = 99
	got, _ := s.Get(1)
	if got.Volume[0] != 10 {
		t.Errorf("store aliased caller slice: Volume[0] = %d", got.Volume[0])
	}

	got.Volume[1] = 77
	again, _ := s.Get(1)
	if again.Volume[1] != 10 {
		t.Errorf("Get returned aliased slice: Volume[1] = %d", again.Volume[1])
	}
}

func TestStore_ListOrdered(t *testing.T) {
	s := NewStore[Card]()
	for _, idx := range []uint32{5, 1, 3} {
		s.Upsert(Card{Index: idx})
	}

	want := []uint32{1, 3, 5}
	if got := s.Indices(); !reflect.DeepEqual(got, want) {
		t.Errorf("Indices() = %v, want %v", got, want)
	}
	list := s.List()
	for i, c := range list {
		if c.Index != want[i] {
			t.Errorf("List()[%d].Index = %d, want %d", i, c.Index, want[i])
		}
	}
}

func TestStore_Replace(t *testing.T) {
	s := NewStore[Device]()
	s.Upsert(Device{Index: 1})
	s.Upsert(Device{Index: 2})

	s.Replace([]Device{{Index: 7}, {Index: 8, Name: "first"}, {Index: 8, Name: "second"}})

	if got := s.Indices(); !reflect.DeepEqual(got, []uint32{7, 8}) {
		t.Fatalf("Indices() = %v, want [7 8]", got)
	}
	d, _ := s.Get(8)
	if d.Name != "second" {
		t.Errorf("duplicate index: Name = %q, want %q", d.Name, "second")
	}
}

func TestBroadcastVolume(t *testing.T) {
	tests := []struct {
		name     string
		current  []uint32
		channels uint16
		level    uint32
		want     []uint32
	}{
		{"stereo", []uint32{10, 20}, 2, 500, []uint32{500, 500}},
		{"volume shorter than channels", []uint32{10}, 3, 7, []uint32{7, 7, 7}},
		{"no channel count", []uint32{1, 2, 3, 4}, 0, 0, []uint32{0, 0, 0, 0}},
		{"empty", nil, 0, 9, []uint32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := broadcastVolume(tt.current, tt.channels, tt.level)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("broadcastVolume() = %v, want %v", got, tt.want)
			}
		})
	}
}
