package handlers

import (
	"net/http"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/breaker"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// TransportHandler lists the dispatcher's transports
type TransportHandler struct {
	dispatcher *dispatch.Dispatcher
	kinds      map[string]string
	collector  types.MetricsCollector
}

// NewTransportHandler creates a transport handler. kinds maps transport names
// to their configured type and may be nil.
func NewTransportHandler(dispatcher *dispatch.Dispatcher, kinds map[string]string, collector types.MetricsCollector) *TransportHandler {
	return &TransportHandler{dispatcher: dispatcher, kinds: kinds, collector: collector}
}

// ListTransports handles GET /api/transports
func (h *TransportHandler) ListTransports(w http.ResponseWriter, r *http.Request) {
	names := h.dispatcher.Transports()
	infos := make([]backendtypes.TransportInfo, 0, len(names))

	for i, name := range names {
		info := backendtypes.TransportInfo{
			Name:     name,
			Type:     h.kinds[name],
			Position: i,
		}
		if b, ok := h.dispatcher.Transport(name).(*breaker.Transport); ok {
			info.Breaker = true
			info.CircuitState = string(b.State())
		}
		if h.collector != nil {
			if tm := h.collector.GetTransportMetrics(name); tm != nil {
				info.Attempts = tm.Attempts
				info.SuccessRate = tm.SuccessRate
			}
		}
		infos = append(infos, info)
	}

	SendSuccess(w, r, infos)
}
