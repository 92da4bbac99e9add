package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/omni-lock-gateway/internal/telemetry"
)

// SystemMetrics is the response body for GET /metrics.
type SystemMetrics struct {
	Timestamp     string                            `json:"timestamp"`
	Version       string                            `json:"version"`
	UptimeSeconds float64                           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics                    `json:"runtime"`
	Gateway       GatewayMetrics                    `json:"gateway"`
	MQTT          MQTTMetrics                       `json:"mqtt"`
	Devices       map[string]telemetry.DeviceGauges `json:"devices"`
}

// RuntimeMetrics reports Go runtime health.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// GatewayMetrics reports device-listener counters.
type GatewayMetrics struct {
	ConnectionsTotal  uint64 `json:"connections_total"`
	ActiveConnections int64  `json:"active_connections"`
	RegisteredDevices int    `json:"registered_devices"`
}

// MQTTMetrics reports broker connectivity.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// handleMetrics returns a JSON snapshot of runtime, gateway and
// per-device state.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Gateway: GatewayMetrics{
			RegisteredDevices: s.registry.Count(),
		},
		Devices: s.telemetry.Snapshot(),
	}

	if s.gateway != nil {
		stats := s.gateway.Stats()
		m.Gateway.ConnectionsTotal = stats.ConnectionsTotal
		m.Gateway.ActiveConnections = stats.ActiveConnections
	}

	if s.mqtt != nil {
		m.MQTT.Connected = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, m)
}
