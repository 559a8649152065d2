package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/cache"
	"github.com/nerrad567/coldtag-core/internal/ingest"
)

// healthCheckTimeout bounds each dependency probe on /health.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the /health response.
type HealthStatus struct {
	Status     string               `json:"status"`
	Version    string               `json:"version"`
	Components map[string]string    `json:"components"`
	Ingest     []ingest.StreamStats `json:"ingest,omitempty"`
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Runtime       RuntimeMetrics       `json:"runtime"`
	Devices       DeviceMetrics        `json:"devices"`
	DeviceCache   *cache.Stats         `json:"device_cache,omitempty"`
	Ingest        []ingest.StreamStats `json:"ingest"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceMetrics contains live device counts.
type DeviceMetrics struct {
	Cores int `json:"cores"`
	Nodes int `json:"nodes"`
}

// handleHealth probes every registered dependency. Any failure turns the
// status to degraded and the response code to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthStatus{
		Status:     "ok",
		Version:    s.version,
		Components: make(map[string]string, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			continue
		}
		resp.Components[name] = "ok"
	}

	if s.ingest != nil {
		resp.Ingest = s.ingest.Stats()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleMetrics returns runtime, device, cache and ingestion metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Ingest: []ingest.StreamStats{},
	}

	var err error
	if metrics.Devices.Cores, err = s.registry.Count(r.Context(), device.KindCore); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if metrics.Devices.Nodes, err = s.registry.Count(r.Context(), device.KindNode); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		metrics.DeviceCache = &stats
	}
	if s.ingest != nil {
		metrics.Ingest = s.ingest.Stats()
	}

	writeJSON(w, http.StatusOK, metrics)
}
