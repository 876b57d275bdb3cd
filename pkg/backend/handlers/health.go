package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/breaker"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type HealthHandler struct {
	dispatcher *dispatch.Dispatcher
	collector  types.MetricsCollector
	version    string
	startTime  time.Time
}

func NewHealthHandler(dispatcher *dispatch.Dispatcher, collector types.MetricsCollector, version string) *HealthHandler {
	return &HealthHandler{
		dispatcher: dispatcher,
		collector:  collector,
		version:    version,
		startTime:  time.Now(),
	}
}

// Status returns simple liveness status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{"status": "ok"})
}

// Health reports per-transport health. A transport whose circuit is open is
// down; the service is degraded while any transport is down and unhealthy
// (503) when all are.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	names := h.dispatcher.Transports()
	transportHealth := make(map[string]backendtypes.TransportHealth, len(names))
	down := 0

	for _, name := range names {
		th := backendtypes.TransportHealth{Status: "ok"}
		if h.collector != nil {
			if tm := h.collector.GetTransportMetrics(name); tm != nil {
				th.ConsecutiveFailures = tm.ConsecutiveFailures
			}
		}
		if b, ok := h.dispatcher.Transport(name).(*breaker.Transport); ok {
			switch b.State() {
			case breaker.StateOpen:
				th.Status = "down"
				th.Message = "circuit open"
				down++
			case breaker.StateHalfOpen:
				th.Status = "recovering"
				th.Message = "circuit half-open"
			}
		}
		transportHealth[name] = th
	}

	response := backendtypes.HealthResponse{
		Status:     StatusHealthy,
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Transports: transportHealth,
	}

	switch {
	case len(names) == 0 || down == len(names):
		response.Status = StatusUnhealthy
		SendErrorWithData(w, r, backendtypes.ErrCodeInternal,
			fmt.Sprintf("%d of %d transports available", len(names)-down, len(names)),
			http.StatusServiceUnavailable, response)
		return
	case down > 0:
		response.Status = StatusDegraded
	}

	SendSuccess(w, r, response)
}

// Version returns version information
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{
		"version": h.version,
	})
}
