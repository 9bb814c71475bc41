package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/infrastructure/config"
)

type capture struct {
	mu     sync.Mutex
	points []*write.Point
}

func (c *capture) WritePoint(p *write.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = append(c.points, p)
}

func tags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fields(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func newTestTelemetry() (*Telemetry, *capture) {
	c := &capture{}
	tel := NewTelemetry(c)
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	tel.now = func() time.Time { return fixed }
	return tel, c
}

func TestTelemetry_DeviceLevel(t *testing.T) {
	tel, c := newTestTelemetry()

	tel.OnEvent(audio.Changed{
		Category: audio.CategorySink,
		Record: audio.Device{
			Index: 3, Name: "alsa_output.usb", Channels: 2,
			Volume: []uint32{65536, 32768}, Muted: true,
		},
	})

	if len(c.points) != 1 {
		t.Fatalf("points = %d, want 1", len(c.points))
	}
	p := c.points[0]
	if p.Name() != MeasurementLevel {
		t.Errorf("Name() = %q", p.Name())
	}
	wantTags := map[string]string{"category": "sink", "index": "3", "name": "alsa_output.usb"}
	for k, v := range wantTags {
		if tags(p)[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags(p)[k], v)
		}
	}
	f := fields(p)
	if f["volume"] != int64(49152) {
		t.Errorf("volume = %v, want 49152", f["volume"])
	}
	if f["volume_percent"] != float64(75) {
		t.Errorf("volume_percent = %v, want 75", f["volume_percent"])
	}
	if f["muted"] != true || f["channels"] != int64(2) {
		t.Errorf("fields = %v", f)
	}
}

func TestTelemetry_StreamLevel(t *testing.T) {
	tel, c := newTestTelemetry()

	tel.OnEvent(audio.Added{
		Category: audio.CategoryInputStream,
		Record:   audio.Stream{Index: 42, Name: "Firefox", Channels: 1, Volume: []uint32{0}},
	})

	if len(c.points) != 1 || tags(c.points[0])["category"] != "input_stream" {
		t.Fatalf("points = %v", c.points)
	}
	if fields(c.points[0])["volume"] != int64(0) {
		t.Errorf("fields = %v", fields(c.points[0]))
	}
}

func TestTelemetry_SkipsCardsAndRemovals(t *testing.T) {
	tel, c := newTestTelemetry()

	tel.OnEvent(audio.Added{Category: audio.CategoryCard, Record: audio.Card{Index: 1, Name: "pci"}})
	tel.OnEvent(audio.Removed{Category: audio.CategorySink, Index: 3})
	tel.OnSnapshot(nil)

	if len(c.points) != 0 {
		t.Errorf("points = %d, want 0", len(c.points))
	}
}

func TestTelemetry_Command(t *testing.T) {
	tel, c := newTestTelemetry()
	at := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

	tel.OnCommand(audio.CommandRecord{
		ID:       "c-1",
		Command:  audio.SetMute{Category: audio.CategorySource, Index: 2, Muted: true},
		Outcome:  audio.OutcomeRolledBack,
		Err:      errors.New("refused"),
		Duration: 120 * time.Millisecond,
		At:       at,
	})

	if len(c.points) != 1 {
		t.Fatalf("points = %d, want 1", len(c.points))
	}
	p := c.points[0]
	if p.Name() != MeasurementCommand || !p.Time().Equal(at) {
		t.Errorf("point = %s at %v", p.Name(), p.Time())
	}
	got := tags(p)
	if got["kind"] != audio.KindSetMute || got["outcome"] != "rolled_back" || got["category"] != "source" {
		t.Errorf("tags = %v", got)
	}
	if fields(p)["duration_ms"] != int64(120) {
		t.Errorf("fields = %v", fields(p))
	}
}

func TestAverageVolume(t *testing.T) {
	tests := []struct {
		in   []uint32
		want int64
	}{
		{nil, 0},
		{[]uint32{10}, 10},
		{[]uint32{10, 20, 31}, 20},
	}
	for _, tt := range tests {
		if got := averageVolume(tt.in); got != tt.want {
			t.Errorf("averageVolume(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClientOptions_Defaults(t *testing.T) {
	opts := clientOptions(config.InfluxDBConfig{BatchSize: -1})
	if opts.BatchSize() != defaultBatchSize {
		t.Errorf("BatchSize() = %d", opts.BatchSize())
	}
	if opts.FlushInterval() != defaultFlushInterval*millisecondsPerSecond {
		t.Errorf("FlushInterval() = %d", opts.FlushInterval())
	}

	opts = clientOptions(config.InfluxDBConfig{BatchSize: 5, FlushInterval: 2})
	if opts.BatchSize() != 5 || opts.FlushInterval() != 2000 {
		t.Errorf("BatchSize/FlushInterval = %d/%d", opts.BatchSize(), opts.FlushInterval())
	}
}

func TestClient_Disconnected(t *testing.T) {
	var c Client
	if c.IsConnected() {
		t.Error("zero client reports connected")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v", err)
	}
	c.WritePoint(write.NewPoint(MeasurementLevel, nil, map[string]any{"volume": int64(1)}, time.Now()))
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
