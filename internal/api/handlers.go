package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xtrntr/nuamexchange/internal/auth"
	"github.com/xtrntr/nuamexchange/internal/exchange"
	"github.com/xtrntr/nuamexchange/internal/metrics"
	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/gorilla/websocket"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

const healthTimeout = 2 * time.Second

// Pinger is a backing store that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Auth     *auth.AuthService
	Exchange *exchange.Exchange
	Metrics  *metrics.Metrics
	Feed     *Hub
	Logger   *slog.Logger

	// Checks maps a health report field to the store it pings
	Checks map[string]Pinger

	upgrader *websocket.Upgrader
}

// NewHandler creates a new handler
func NewHandler(authService *auth.AuthService, ex *exchange.Exchange, m *metrics.Metrics, logger *slog.Logger, allowedOrigins []string) *Handler {
	return &Handler{
		Auth:     authService,
		Exchange: ex,
		Metrics:  m,
		Feed:     NewHub(logger, m.FeedClients),
		Logger:   logger,
		Checks:   make(map[string]Pinger),
		upgrader: newUpgrader(allowedOrigins),
	}
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	identity, token, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthenticated) {
			h.Metrics.RecordLogin(false)
			writeFailure(w, http.StatusUnauthorized, "Usuario o contraseña incorrectos")
			return
		}
		h.writeError(w, r, err)
		return
	}
	h.Metrics.RecordLogin(true)
	h.Logger.Info("login", slog.String("user", identity.Username), slog.String("role", string(identity.Role)))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Bienvenido, %s!", identity.Username),
		"user":          identity,
		"session_token": token,
	})
}

// Logout closes the session behind the request token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, err := h.Auth.Revoke(r.Context(), sessionToken(r))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeFailure(w, http.StatusNotFound, "Sesión no encontrada")
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Sesión cerrada para %s", identity.Username),
	})
}

// PlaceOrder accepts an order and runs simulated matching on it
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}

	var req struct {
		Instrument string   `json:"instrumento"`
		Side       string   `json:"tipo"`
		Quantity   int64    `json:"cantidad"`
		LimitPrice *float64 `json:"precioLimite"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.Exchange.PlaceOrder(r.Context(), identity, exchange.OrderRequest{
		Instrument: req.Instrument,
		Side:       models.Side(req.Side),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Metrics.RecordOrder(result.Order, result.Transaction)
	var trade *transactionView
	if result.Transaction != nil {
		h.Feed.Broadcast(*result.Transaction)
		view := viewTransaction(*result.Transaction)
		trade = &view
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     result.Message,
		"orden":       result.Order,
		"transaccion": trade,
	})
}

// ListOrders returns the caller's most recent orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	orders, err := h.Exchange.ListOrders(r.Context(), identity, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ordenes": orders})
}

// Reports returns the most recent transactions across all users
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	trades, err := h.Exchange.RecentTransactions(r.Context(), identity, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transacciones": viewTransactions(trades)})
}

// SetFee configures the base fee of a market
func (h *Handler) SetFee(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}

	var req struct {
		Market   string   `json:"bolsa"`
		BaseRate *float64 `json:"tarifa_base"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.BaseRate == nil {
		h.writeError(w, r, models.Invalidf("tarifa_base is required"))
		return
	}

	fee, err := h.Exchange.SetFee(r.Context(), identity, models.Market(req.Market), *req.BaseRate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Tarifa de %s configurada para %s", formatRate(fee.BaseRate), fee.Market),
		"tarifa":  fee,
	})
}

// GetFees returns every configured market fee
func (h *Handler) GetFees(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}

	fees, err := h.Exchange.GetFees(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if fees == nil {
		fees = []models.FeeConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tarifas": fees})
}

// TransactionFeed upgrades an admin session to a websocket that receives a
// snapshot of recent transactions followed by every new fill
func (h *Handler) TransactionFeed(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, r, models.ErrUnauthenticated)
		return
	}
	snapshot, err := h.Exchange.RecentTransactions(r.Context(), identity, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("failed to upgrade feed connection", slog.String("error", err.Error()))
		return
	}
	h.Logger.Info("feed client connected", slog.String("user", identity.Username))
	h.Feed.serve(conn, snapshot)
	h.Logger.Info("feed client disconnected", slog.String("user", identity.Username))
}

// Health pings every backing store
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := map[string]string{}
	healthy := true
	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			h.Logger.Warn("health check failed", slog.String("store", name), slog.String("error", err.Error()))
			report[name] = "disconnected"
			healthy = false
			continue
		}
		report[name] = "connected"
	}
	report["status"] = "healthy"
	if !healthy {
		report["status"] = "degraded"
	}
	writeJSON(w, http.StatusOK, report)
}

// Root identifies the API
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "NUAM Exchange API", "version": Version})
}
