package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/ratelimit"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// MetricsHandler handles metrics endpoints
type MetricsHandler struct {
	collector types.MetricsCollector
	gate      *ratelimit.Gate
	startTime time.Time
}

// NewMetricsHandler creates a new metrics handler. Both arguments may be nil.
func NewMetricsHandler(collector types.MetricsCollector, gate *ratelimit.Gate) *MetricsHandler {
	return &MetricsHandler{
		collector: collector,
		gate:      gate,
		startTime: time.Now(),
	}
}

// DispatchMetricsResponse is the body of GET /api/metrics
type DispatchMetricsResponse struct {
	Dispatch  types.MetricsSnapshot `json:"dispatch"`
	Gate      ratelimit.Stats       `json:"gate"`
	Timestamp time.Time             `json:"timestamp"`
}

// SystemMetricsResponse represents system-level metrics
type SystemMetricsResponse struct {
	Uptime          string    `json:"uptime"`
	Goroutines      int       `json:"goroutines"`
	MemoryAllocated uint64    `json:"memory_allocated_bytes"`
	MemoryTotal     uint64    `json:"memory_total_bytes"`
	MemorySys       uint64    `json:"memory_sys_bytes"`
	NumGC           uint32    `json:"num_gc"`
	Timestamp       time.Time `json:"timestamp"`
}

// GetDispatchMetrics handles GET /api/metrics
func (h *MetricsHandler) GetDispatchMetrics(w http.ResponseWriter, r *http.Request) {
	response := DispatchMetricsResponse{
		Gate:      h.gate.Stats(),
		Timestamp: time.Now(),
	}
	if h.collector != nil {
		response.Dispatch = h.collector.GetSnapshot()
	}

	SendSuccess(w, r, response)
}

// GetTransportMetrics handles GET /api/metrics/transports/{name}
func (h *MetricsHandler) GetTransportMetrics(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var tm *types.TransportMetricsSnapshot
	if h.collector != nil {
		tm = h.collector.GetTransportMetrics(name)
	}
	if tm == nil {
		SendError(w, r, backendtypes.ErrCodeNotFound, "No metrics for transport "+name, http.StatusNotFound)
		return
	}

	SendSuccess(w, r, tm)
}

// GetSystemMetrics handles GET /api/metrics/system
func (h *MetricsHandler) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SendSuccess(w, r, SystemMetricsResponse{
		Uptime:          time.Since(h.startTime).String(),
		Goroutines:      runtime.NumGoroutine(),
		MemoryAllocated: m.Alloc,
		MemoryTotal:     m.TotalAlloc,
		MemorySys:       m.Sys,
		NumGC:           m.NumGC,
		Timestamp:       time.Now(),
	})
}
