package router

import (
	"net/http"

	"github.com/bms-fs/order-core/internal/config"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/handler"
	mw "github.com/bms-fs/order-core/internal/middleware"
	"github.com/bms-fs/order-core/internal/service"
	"github.com/bms-fs/order-core/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and shop scoping as needed.
func New(cfg *config.Config, carts *service.CartService, orders *service.OrderService, hub *ws.Hub, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Carts, including checkout
		cartHandler := handler.NewCartHandler(carts, orders)
		r.Route("/carts", cartHandler.RegisterRoutes)

		// Orders
		orderHandler := handler.NewOrderHandler(orders)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)

			// Payments (nested under orders)
			r.Route("/{id}/payments", func(r chi.Router) {
				paymentHandler := handler.NewPaymentHandler(orders)
				paymentHandler.RegisterRoutes(r)
			})
		})

		// Shop-scoped routes for staff
		r.Route("/shops/{shopID}", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleStaff))
			r.Use(mw.RequireShop)
			r.Route("/orders", orderHandler.RegisterShopRoutes)
		})
	})

	logger.Info("router initialized")
	return r
}
