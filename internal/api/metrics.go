package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/mqttbinding"
)

// mqttSessionProvider is implemented by *mqtt.Client.
type mqttSessionProvider interface {
	IsConnected() bool
	Stats() mqtt.Stats
}

// bindingMetricsProvider is implemented by the MQTT binding.
type bindingMetricsProvider interface {
	GetMetrics() mqttbinding.Metrics
}

// telemetryStatsProvider is implemented by the InfluxDB client.
type telemetryStatsProvider interface {
	Stats() influxdb.Stats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Things        ThingMetrics    `json:"things"`
	Database      DatabaseMetrics `json:"database"`
	Telemetry     *influxdb.Stats `json:"telemetry,omitempty"`
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
	ConnectedClients int    `json:"connected_clients"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// MQTTMetrics contains MQTT client and binding statistics.
type MQTTMetrics struct {
	Connected bool                 `json:"connected"`
	Session   *mqtt.Stats          `json:"session,omitempty"`
	Binding   *mqttbinding.Metrics `json:"binding,omitempty"`
}

// ThingMetrics counts hosted Things and their declared members.
type ThingMetrics struct {
	Total      int `json:"total"`
	Properties int `json:"properties"`
	Actions    int `json:"actions"`
	Unbound    int `json:"unbound_actions"`
	Events     int `json:"events"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
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
			DroppedFrames:    s.hub.Dropped(),
		},
	}

	if s.mqtt != nil {
		ms := s.mqtt.Stats()
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
			Session:   &ms,
		}
	}
	if s.binding != nil {
		bm := s.binding.GetMetrics()
		metrics.MQTT.Binding = &bm
	}

	for _, t := range s.registry.List() {
		shape := t.Snapshot()
		metrics.Things.Total++
		metrics.Things.Properties += len(shape.Properties)
		metrics.Things.Actions += len(shape.Actions)
		metrics.Things.Events += len(shape.Events)
		for _, a := range shape.Actions {
			if !a.Bound {
				metrics.Things.Unbound++
			}
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if s.telemetry != nil {
		ts := s.telemetry.Stats()
		metrics.Telemetry = &ts
	}

	writeJSON(w, http.StatusOK, metrics)
}
