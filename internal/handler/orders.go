package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Get(ctx context.Context, sess service.Session, orderID string) (*lifecycle.Order, error)
	Refresh(ctx context.Context, sess service.Session, orderID string) (*lifecycle.Order, error)
	List(ctx context.Context, sess service.Session, limit, offset int) ([]*lifecycle.Order, error)
	ListShop(ctx context.Context, sess service.Session, shopID, status string, limit, offset int) ([]*lifecycle.Order, error)
	Transition(ctx context.Context, sess service.Session, orderID, target string) (*lifecycle.Order, error)
	Cancel(ctx context.Context, sess service.Session, orderID string) (*lifecycle.Order, error)
	SubmitFeedback(ctx context.Context, sess service.Session, orderID string, rating int, content string) (*lifecycle.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Delete("/{id}", h.Cancel)
	r.Post("/{id}/feedback", h.Feedback)
}

// RegisterShopRoutes registers the staff view of a shop's orders.
// Expected to be mounted at /shops/{shopID}/orders behind RequireRole(STAFF)
// and RequireShop.
func (h *OrderHandler) RegisterShopRoutes(r chi.Router) {
	r.Get("/", h.ListShop)
}

// --- Request / Response types ---

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []*lifecycle.Order `json:"orders"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

// --- Handlers ---

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	limit, offset := parsePage(r)
	orders, err := h.svc.List(r.Context(), sess, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, orderListResponse{Orders: orders, Limit: limit, Offset: offset})
}

// ListShop handles GET /shops/{shopID}/orders.
func (h *OrderHandler) ListShop(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	limit, offset := parsePage(r)
	orders, err := h.svc.ListShop(r.Context(), sess, chi.URLParam(r, "shopID"), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, orderListResponse{Orders: orders, Limit: limit, Offset: offset})
}

// Get handles GET /orders/{id}. With ?refresh=true the order is re-read
// from the backend first.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	get := h.svc.Get
	if refresh {
		get = h.svc.Refresh
	}

	order, err := get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, order)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeMessage(w, r, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.svc.Transition(r.Context(), sess, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, order)
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	order, err := h.svc.Cancel(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, order)
}

// Feedback handles POST /orders/{id}/feedback.
func (h *OrderHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.SubmitFeedback(r.Context(), sess, chi.URLParam(r, "id"), req.Rating, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, order)
}
