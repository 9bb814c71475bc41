package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/reset-core/internal/audio"
)

// Measurement names.
const (
	MeasurementLevel   = "audio_level"
	MeasurementCommand = "audio_command"
)

// volumeNorm is the daemon's 100% volume.
const volumeNorm = 65536

// PointWriter accepts points for asynchronous delivery. *Client implements it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Telemetry is an audio.Observer that writes level and command points.
//
// Observer methods run on the processor goroutine; WritePoint only
// enqueues, so they do not block.
type Telemetry struct {
	w   PointWriter
	now func() time.Time
}

// NewTelemetry creates a Telemetry writing to w.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{w: w, now: time.Now}
}

// OnSnapshot implements audio.Observer.
func (t *Telemetry) OnSnapshot(*audio.Snapshot) {}

// OnEvent implements audio.Observer. Only Added and Changed carry levels.
func (t *Telemetry) OnEvent(ev audio.Event) {
	var (
		category audio.Category
		record   audio.Entity
	)
	switch e := ev.(type) {
	case audio.Added:
		category, record = e.Category, e.Record
	case audio.Changed:
		category, record = e.Category, e.Record
	default:
		return
	}
	if p := levelPoint(category, record, t.now()); p != nil {
		t.w.WritePoint(p)
	}
}

// OnCommand implements audio.Observer.
func (t *Telemetry) OnCommand(rec audio.CommandRecord) {
	at := rec.At
	if at.IsZero() {
		at = t.now()
	}
	t.w.WritePoint(commandPoint(rec, at))
}

// levelPoint builds an audio_level point, or nil for records without a
// volume (cards).
func levelPoint(category audio.Category, record audio.Entity, ts time.Time) *write.Point {
	var (
		name   string
		volume []uint32
		muted  bool
	)
	switch r := record.(type) {
	case audio.Device:
		name, volume, muted = r.Name, r.Volume, r.Muted
	case audio.Stream:
		name, volume, muted = r.Name, r.Volume, r.Muted
	default:
		return nil
	}

	avg := averageVolume(volume)
	return write.NewPoint(
		MeasurementLevel,
		map[string]string{
			"category": string(category),
			"index":    strconv.FormatUint(uint64(record.Key()), 10),
			"name":     name,
		},
		map[string]any{
			"volume":         avg,
			"volume_percent": float64(avg) * 100 / volumeNorm,
			"muted":          muted,
			"channels":       int64(len(volume)),
		},
		ts,
	)
}

func commandPoint(rec audio.CommandRecord, ts time.Time) *write.Point {
	category, _ := rec.Command.Target()
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"kind":     rec.Command.Kind(),
			"category": string(category),
			"outcome":  string(rec.Outcome),
		},
		map[string]any{
			"duration_ms": rec.Duration.Milliseconds(),
		},
		ts,
	)
}

func averageVolume(volume []uint32) int64 {
	if len(volume) == 0 {
		return 0
	}
	var sum int64
	for _, v := range volume {
		sum += int64(v)
	}
	return sum / int64(len(volume))
}
