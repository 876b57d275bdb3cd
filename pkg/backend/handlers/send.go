package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// SendHandler serves POST /api/send
type SendHandler struct {
	dispatcher *dispatch.Dispatcher
	timeout    time.Duration
	logger     *zap.Logger
}

// NewSendHandler creates a send handler. A positive timeout bounds each
// dispatch, rate gate wait and backoff included.
func NewSendHandler(dispatcher *dispatch.Dispatcher, timeout time.Duration, logger *zap.Logger) *SendHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendHandler{dispatcher: dispatcher, timeout: timeout, logger: logger}
}

// Send dispatches one email. Delivered messages answer 200; exhausted ones
// 502 and timed-out ones 504, both with the delivery report as data.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req backendtypes.SendRequest
	if err := ParseJSON(w, r, &req); err != nil {
		SendError(w, r, backendtypes.ErrCodeInvalidRequest, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	msg := types.Message{ID: req.ID, To: req.To, Subject: req.Subject, Body: req.Body}
	if err := msg.Validate(); err != nil {
		SendError(w, r, backendtypes.ErrCodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result := h.dispatcher.Dispatch(ctx, msg)
	resp := NewSendResponse(result)

	switch {
	case result.Delivered:
		SendSuccess(w, r, resp)
	case errors.Is(result.Err, context.DeadlineExceeded):
		h.logger.Warn("send timed out", zap.String("message_id", result.MessageID), zap.Duration("timeout", h.timeout))
		SendErrorWithData(w, r, backendtypes.ErrCodeDeliveryFailed, "Delivery timed out", http.StatusGatewayTimeout, resp)
	case errors.Is(result.Err, types.ErrNoTransports):
		SendErrorWithData(w, r, backendtypes.ErrCodeInternal, "No transports configured", http.StatusInternalServerError, resp)
	default:
		SendErrorWithData(w, r, backendtypes.ErrCodeDeliveryFailed, "All transports failed", http.StatusBadGateway, resp)
	}
}

// NewSendResponse converts a dispatch result to its wire form
func NewSendResponse(result *dispatch.Result) backendtypes.SendResponse {
	resp := backendtypes.SendResponse{
		MessageID: result.MessageID,
		Delivered: result.Delivered,
		Transport: result.Transport,
		Attempts:  result.Attempts,
		RateWait:  result.RateWait.String(),
		Backoff:   result.Backoff.String(),
		Elapsed:   result.Elapsed.String(),
		Tried:     make([]backendtypes.TransportAttempts, 0, len(result.Transports)),
	}
	for _, t := range result.Transports {
		resp.Tried = append(resp.Tried, backendtypes.TransportAttempts{
			Name:      t.Name,
			Attempts:  t.Attempts,
			Delivered: t.Delivered,
			LastError: t.LastError,
		})
	}
	return resp
}
