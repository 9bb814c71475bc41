package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/reset-core/internal/audio"
)

var (
	_ audio.Observer             = (*Metrics)(nil)
	_ audio.NotificationRecorder = (*Metrics)(nil)
)

func TestNew_NilRegistry(t *testing.T) {
	m := New(nil)
	if m != nil {
		t.Fatal("expected nil metrics for nil registry")
	}
	// Nil receivers are no-ops.
	m.RecordNotification("SinkAdded", nil)
	m.OnSnapshot(&audio.Snapshot{})
	m.OnEvent(audio.Removed{Category: audio.CategorySink, Index: 1})
	m.OnCommand(audio.CommandRecord{Command: audio.SetMute{}})
}

func TestRecordNotification(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordNotification("SinkChanged", nil)
	m.RecordNotification("SinkChanged", nil)
	m.RecordNotification("SinkChanged", audio.ErrMalformedPayload)

	if got := testutil.ToFloat64(m.notificationsTotal.WithLabelValues("SinkChanged", resultDecoded)); got != 2 {
		t.Errorf("decoded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notificationsTotal.WithLabelValues("SinkChanged", resultMalformed)); got != 1 {
		t.Errorf("malformed = %v, want 1", got)
	}
}

func TestOnSnapshot(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnSnapshot(&audio.Snapshot{
		Sinks:        []audio.Device{{Index: 1}, {Index: 2}},
		InputStreams: []audio.Stream{{Index: 9}},
		Pending:      []audio.PendingKey{{Category: audio.CategorySink, Index: 1}},
		Stale:        true,
		Version:      7,
	})

	if got := testutil.ToFloat64(m.entities.WithLabelValues("sink")); got != 2 {
		t.Errorf("sinks = %v", got)
	}
	if got := testutil.ToFloat64(m.entities.WithLabelValues("input_stream")); got != 1 {
		t.Errorf("input streams = %v", got)
	}
	if testutil.ToFloat64(m.pending) != 1 || testutil.ToFloat64(m.stale) != 1 || testutil.ToFloat64(m.snapshotVersion) != 7 {
		t.Error("pending/stale/version gauges not set")
	}

	m.OnSnapshot(&audio.Snapshot{Version: 8})
	if testutil.ToFloat64(m.stale) != 0 {
		t.Error("stale gauge not cleared")
	}
}

func TestOnEventAndCommand(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnEvent(audio.Added{Category: audio.CategorySource, Record: audio.Device{Index: 4}})
	m.OnEvent(audio.Removed{Category: audio.CategorySource, Index: 4})
	m.OnCommand(audio.CommandRecord{
		Command:  audio.SetVolume{Category: audio.CategorySink, Index: 1, Level: 10},
		Outcome:  audio.OutcomeRolledBack,
		Err:      errors.New("refused"),
		Duration: 30 * time.Millisecond,
	})

	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("source", "added")); got != 1 {
		t.Errorf("added = %v", got)
	}
	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("source", "removed")); got != 1 {
		t.Errorf("removed = %v", got)
	}
	if got := testutil.ToFloat64(m.commandsTotal.WithLabelValues(audio.KindSetVolume, "rolled_back")); got != 1 {
		t.Errorf("commands = %v", got)
	}
	if n := testutil.CollectAndCount(m.commandDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	RegisterQueueDepth(reg, func() int { return 3 })
	m.RecordNotification("CardAdded", nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"resetpanel_worker_notifications_total",
		"resetpanel_processor_queue_depth 3",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
