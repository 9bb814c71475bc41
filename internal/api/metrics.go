package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the GET /system response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Registry      RegistryMetrics `json:"registry"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// RegistryMetrics summarises the latest audio snapshot.
type RegistryMetrics struct {
	Domain        string `json:"domain"`
	Version       uint64 `json:"version"`
	Stale         bool   `json:"stale"`
	Pending       int    `json:"pending"`
	Sinks         int    `json:"sinks"`
	Sources       int    `json:"sources"`
	InputStreams  int    `json:"input_streams"`
	OutputStreams int    `json:"output_streams"`
	Cards         int    `json:"cards"`
}

// handleSystem returns runtime and registry statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.audio.Snapshot()

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Registry: RegistryMetrics{
			Domain:        string(s.domains.Current()),
			Version:       snap.Version,
			Stale:         snap.Stale,
			Pending:       len(snap.Pending),
			Sinks:         len(snap.Sinks),
			Sources:       len(snap.Sources),
			InputStreams:  len(snap.InputStreams),
			OutputStreams: len(snap.OutputStreams),
			Cards:         len(snap.Cards),
		},
	})
}
