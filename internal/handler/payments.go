package handler

import (
	"context"
	"net/http"

	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentServicer defines the service method needed by the payment handler.
// Satisfied by *service.OrderService.
type PaymentServicer interface {
	Pay(ctx context.Context, sess service.Session, orderID, method string) (*lifecycle.Order, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc PaymentServicer
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /orders/{id}/payments.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Pay)
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// Pay handles POST /orders/{id}/payments. The amount is always the order
// total; partial payments are not supported.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req payRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		writeMessage(w, r, http.StatusBadRequest, "payment_method is required")
		return
	}

	order, err := h.svc.Pay(r.Context(), sess, chi.URLParam(r, "id"), req.PaymentMethod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, order)
}
