package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter mounts every endpoint at the root and again under /api, which
// is where the web frontend expects them
func NewRouter(h *Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(h.Logger))
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", h.Metrics.Handler())
	h.register(r)
	r.Route("/api", h.register)

	return r
}

func (h *Handler) register(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	// Require a live session
	r.Group(func(r chi.Router) {
		r.Use(h.SessionAuth)
		r.Post("/orden", h.PlaceOrder)
		r.Get("/ordenes", h.ListOrders)
		r.Get("/reportes", h.Reports)
		r.Post("/tarifas", h.SetFee)
		r.Get("/tarifas", h.GetFees)
		r.Get("/ws/transacciones", h.TransactionFeed)
	})
}
