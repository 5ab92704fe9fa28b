package handler

import (
	"context"
	"net/http"

	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CartServicer defines the service methods needed by cart handlers.
// Satisfied by *service.CartService; narrow interface for testability.
type CartServicer interface {
	Create(ctx context.Context, sess service.Session, scope, shopID string) (*service.CartView, string, error)
	Get(ctx context.Context, sess service.Session, cartID string) (*service.CartView, error)
	Join(ctx context.Context, sess service.Session, cartID, accessToken string) (*service.CartView, error)
	AddItem(ctx context.Context, sess service.Session, cartID string, in cart.NewItem) (*service.CartView, error)
	SetQuantity(ctx context.Context, sess service.Session, cartID, lineItemID string, quantity int) (*service.CartView, error)
	RemoveItem(ctx context.Context, sess service.Session, cartID, lineItemID string) (*service.CartView, error)
	Clear(ctx context.Context, sess service.Session, cartID string) (*service.CartView, error)
	ApplyCoupon(ctx context.Context, sess service.Session, cartID, code string) (*service.CartView, error)
	RemoveCoupon(ctx context.Context, sess service.Session, cartID string) (*service.CartView, error)
}

// CheckoutServicer turns a cart into an order.
// Satisfied by *service.OrderService.
type CheckoutServicer interface {
	Checkout(ctx context.Context, sess service.Session, cartID string) (*lifecycle.Order, error)
}

// CartHandler handles cart endpoints.
type CartHandler struct {
	svc      CartServicer
	checkout CheckoutServicer
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(svc CartServicer, checkout CheckoutServicer) *CartHandler {
	return &CartHandler{svc: svc, checkout: checkout}
}

// RegisterRoutes registers cart endpoints on the given Chi router.
// Expected to be mounted at /carts.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/join", h.Join)
		r.Post("/items", h.AddItem)
		r.Delete("/items", h.Clear)
		r.Patch("/items/{itemID}", h.SetQuantity)
		r.Delete("/items/{itemID}", h.RemoveItem)
		r.Put("/coupon", h.ApplyCoupon)
		r.Delete("/coupon", h.RemoveCoupon)
		r.Post("/checkout", h.Checkout)
	})
}

// --- Request / Response types ---

type createCartRequest struct {
	Scope  string `json:"scope"`
	ShopID string `json:"shop_id"`
}

type createCartResponse struct {
	*service.CartView
	AccessToken string `json:"access_token,omitempty"`
}

type joinCartRequest struct {
	AccessToken string `json:"access_token"`
}

type addItemRequest struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  *int            `json:"quantity"`
	Note      string          `json:"note"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// --- Handlers ---

// Create handles POST /carts.
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createCartRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	view, token, err := h.svc.Create(r.Context(), sess, req.Scope, req.ShopID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, createCartResponse{CartView: view, AccessToken: token})
}

// Get handles GET /carts/{id}.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	view, err := h.svc.Get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// Join handles POST /carts/{id}/join.
func (h *CartHandler) Join(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req joinCartRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccessToken == "" {
		writeMessage(w, r, http.StatusBadRequest, "access_token is required")
		return
	}

	view, err := h.svc.Join(r.Context(), sess, chi.URLParam(r, "id"), req.AccessToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// AddItem handles POST /carts/{id}/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeMessage(w, r, http.StatusBadRequest, "product_id is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	view, err := h.svc.AddItem(r.Context(), sess, chi.URLParam(r, "id"), cart.NewItem{
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  quantity,
		Note:      req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// SetQuantity handles PATCH /carts/{id}/items/{itemID}.
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req setQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil {
		writeMessage(w, r, http.StatusBadRequest, "quantity is required")
		return
	}

	view, err := h.svc.SetQuantity(r.Context(), sess, chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// RemoveItem handles DELETE /carts/{id}/items/{itemID}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	view, err := h.svc.RemoveItem(r.Context(), sess, chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// Clear handles DELETE /carts/{id}/items.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	view, err := h.svc.Clear(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// ApplyCoupon handles PUT /carts/{id}/coupon.
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req applyCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.svc.ApplyCoupon(r.Context(), sess, chi.URLParam(r, "id"), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// RemoveCoupon handles DELETE /carts/{id}/coupon.
func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	view, err := h.svc.RemoveCoupon(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// Checkout handles POST /carts/{id}/checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeMessage(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	order, err := h.checkout.Checkout(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, order)
}
