package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/shopspring/decimal"
)

// Listing limits
const (
	DefaultOrdersLimit = 20
	DefaultReportLimit = 10
	MaxLimit           = 100
	MaxInstrumentLen   = 20
)

// OrderStore persists orders and transactions. PlaceOrder must run match
// and the resulting writes in a single atomic unit.
type OrderStore interface {
	PlaceOrder(ctx context.Context, order *models.Order, match func(models.Order) *models.Transaction) (*models.Order, *models.Transaction, error)
	GetUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error)
	GetRecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
}

// FeeStore persists market fee configuration
type FeeStore interface {
	UpsertFee(ctx context.Context, fee models.FeeConfig) error
	ListFees(ctx context.Context) ([]models.FeeConfig, error)
}

// Exchange runs order intake, simulated matching, reporting and fee
// configuration on behalf of an authenticated identity
type Exchange struct {
	Orders  OrderStore
	Fees    FeeStore
	Matcher Matcher
	Logger  *slog.Logger
	now     func() time.Time
}

// NewExchange creates a new exchange
func NewExchange(orders OrderStore, fees FeeStore, matcher Matcher) *Exchange {
	return &Exchange{
		Orders:  orders,
		Fees:    fees,
		Matcher: matcher,
		Logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OrderRequest is an order as submitted by a client
type OrderRequest struct {
	Instrument string
	Side       models.Side
	Quantity   int64
	LimitPrice *float64
}

// OrderResult is the stored order and, if it filled, its transaction
type OrderResult struct {
	Order       models.Order
	Transaction *models.Transaction
	Message     string
}

// PlaceOrder validates and stores an order, then runs matching on it inside
// the same store transaction.
func (e *Exchange) PlaceOrder(ctx context.Context, identity models.Identity, req OrderRequest) (*OrderResult, error) {
	if !identity.Role.Valid() {
		return nil, fmt.Errorf("role %q cannot place orders: %w", identity.Role, models.ErrForbidden)
	}
	if !req.Side.Valid() {
		return nil, models.Invalidf("tipo must be 'Compra' or 'Venta'")
	}
	if req.Quantity <= 0 {
		return nil, models.Invalidf("cantidad must be greater than zero")
	}
	instrument := strings.ToUpper(strings.TrimSpace(req.Instrument))
	if instrument == "" || len(instrument) > MaxInstrumentLen {
		return nil, models.Invalidf("instrumento must be 1 to %d characters", MaxInstrumentLen)
	}

	var limit *float64
	if req.LimitPrice != nil && *req.LimitPrice > 0 && !math.IsInf(*req.LimitPrice, 0) {
		p := *req.LimitPrice
		limit = &p
	}

	order := &models.Order{
		UserID:     identity.UserID,
		Side:       req.Side,
		Instrument: instrument,
		Quantity:   req.Quantity,
		LimitPrice: limit,
		Status:     models.StatusPendiente,
		CreatedAt:  e.now(),
	}

	created, trade, err := e.Orders.PlaceOrder(ctx, order, func(stored models.Order) *models.Transaction {
		return e.fill(stored, identity.Market)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	result := &OrderResult{Order: *created, Transaction: trade}
	if trade != nil {
		result.Message = fmt.Sprintf("Orden ejecutada exitosamente a $%s", decimal.NewFromFloat(trade.Price).StringFixed(2))
		e.Logger.Info("order executed",
			slog.Int64("order_id", created.ID),
			slog.Int64("transaction_id", trade.ID),
			slog.String("instrument", created.Instrument),
			slog.Float64("price", trade.Price),
			slog.String("market", string(trade.Market)))
	} else {
		result.Message = "Orden registrada. Pendiente de match en el Order Book"
		e.Logger.Info("order pending", slog.Int64("order_id", created.ID), slog.String("instrument", created.Instrument))
	}
	return result, nil
}

// fill asks the matcher about a stored order and builds the transaction.
// The side without a real order gets the FictitiousMatch reference.
func (e *Exchange) fill(order models.Order, market models.Market) *models.Transaction {
	outcome := e.Matcher.Decide(order)
	if !outcome.Filled {
		return nil
	}

	own := strconv.FormatInt(order.ID, 10)
	trade := &models.Transaction{
		BuyOrderID:  models.FictitiousMatch,
		SellOrderID: models.FictitiousMatch,
		Price:       outcome.Price,
		Quantity:    order.Quantity,
		ExecutedAt:  e.now(),
		Market:      market,
	}
	if order.Side == models.SideCompra {
		trade.BuyOrderID = own
	} else {
		trade.SellOrderID = own
	}
	return trade
}

// ListOrders returns the caller's own orders, newest first
func (e *Exchange) ListOrders(ctx context.Context, identity models.Identity, limit int) ([]models.Order, error) {
	limit, err := checkLimit(limit, DefaultOrdersLimit)
	if err != nil {
		return nil, err
	}
	orders, err := e.Orders.GetUserOrders(ctx, identity.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// RecentTransactions returns the latest transactions across all users.
// Admin only.
func (e *Exchange) RecentTransactions(ctx context.Context, identity models.Identity, limit int) ([]models.Transaction, error) {
	if identity.Role != models.RoleAdmin {
		return nil, fmt.Errorf("only administrators can view reports: %w", models.ErrForbidden)
	}
	limit, err := checkLimit(limit, DefaultReportLimit)
	if err != nil {
		return nil, err
	}
	trades, err := e.Orders.GetRecentTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return trades, nil
}

// SetFee overwrites the base fee rate of a market. Admin only.
func (e *Exchange) SetFee(ctx context.Context, identity models.Identity, market models.Market, rate float64) (models.FeeConfig, error) {
	if identity.Role != models.RoleAdmin {
		return models.FeeConfig{}, fmt.Errorf("only administrators can configure fees: %w", models.ErrForbidden)
	}
	if !market.HasFees() {
		return models.FeeConfig{}, models.Invalidf("bolsa must be one of CL, PE, CO")
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return models.FeeConfig{}, models.Invalidf("tarifa_base must be a non-negative number")
	}

	fee := models.FeeConfig{Market: market, BaseRate: rate, UpdatedAt: e.now()}
	if err := e.Fees.UpsertFee(ctx, fee); err != nil {
		return models.FeeConfig{}, fmt.Errorf("failed to set fee: %w", err)
	}
	e.Logger.Info("fee configured", slog.String("market", string(market)), slog.Float64("rate", rate), slog.String("by", identity.Username))
	return fee, nil
}

// GetFees returns every configured fee record
func (e *Exchange) GetFees(ctx context.Context, identity models.Identity) ([]models.FeeConfig, error) {
	fees, err := e.Fees.ListFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list fees: %w", err)
	}
	return fees, nil
}

func checkLimit(limit, def int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 0 || limit > MaxLimit {
		return 0, models.Invalidf("limite must be between 1 and %d", MaxLimit)
	}
	return limit, nil
}
