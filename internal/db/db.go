package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/nuamexchange/internal/models"
	"github.com/xtrntr/nuamexchange/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool holding orders and transactions
type DB struct {
	Pool *pgxpool.Pool
}

// querier is satisfied by both the pool and an open transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Ping checks connectivity
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return models.Unavailable("postgres", err)
	}
	return nil
}

// Migrate applies the embedded schema. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, migrations.Init); err != nil {
		return fmt.Errorf("failed to apply migration: %w", classify(err))
	}
	return nil
}

// PlaceOrder inserts order as Pendiente and hands the stored row to match
// inside the same transaction. A non-nil transaction returned by match marks
// the order Ejecutada and is recorded. Nothing is committed if any step fails.
func (db *DB) PlaceOrder(ctx context.Context, order *models.Order, match func(models.Order) *models.Transaction) (*models.Order, *models.Transaction, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	created, err := createOrder(ctx, tx, order)
	if err != nil {
		return nil, nil, err
	}

	var trade *models.Transaction
	if fill := match(*created); fill != nil {
		if err := updateOrderStatus(ctx, tx, created.ID, models.StatusEjecutada); err != nil {
			return nil, nil, err
		}
		created.Status = models.StatusEjecutada

		trade, err = createTransaction(ctx, tx, fill)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return created, trade, nil
}

func createOrder(ctx context.Context, q querier, order *models.Order) (*models.Order, error) {
	newOrder := &models.Order{}
	err := q.QueryRow(ctx,
		`INSERT INTO ordenes (user_id, tipo, instrumento, cantidad, precio_limite, estado, fecha_creacion)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, user_id, tipo, instrumento, cantidad, precio_limite, estado, fecha_creacion`,
		order.UserID, order.Side, order.Instrument, order.Quantity, order.LimitPrice, models.StatusPendiente, order.CreatedAt).Scan(
		&newOrder.ID, &newOrder.UserID, &newOrder.Side, &newOrder.Instrument, &newOrder.Quantity,
		&newOrder.LimitPrice, &newOrder.Status, &newOrder.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", classify(err))
	}
	return newOrder, nil
}

func updateOrderStatus(ctx context.Context, q querier, orderID int64, status models.OrderStatus) error {
	tag, err := q.Exec(ctx, "UPDATE ordenes SET estado = $1 WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return nil
}

func createTransaction(ctx context.Context, q querier, trade *models.Transaction) (*models.Transaction, error) {
	newTrade := &models.Transaction{}
	err := q.QueryRow(ctx,
		`INSERT INTO transacciones (id_orden_compra, id_orden_venta, precio_ejecucion, cantidad_ejecutada, fecha_ejecucion, bolsa_origen)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, id_orden_compra, id_orden_venta, precio_ejecucion, cantidad_ejecutada, fecha_ejecucion, bolsa_origen`,
		trade.BuyOrderID, trade.SellOrderID, trade.Price, trade.Quantity, trade.ExecutedAt, trade.Market).Scan(
		&newTrade.ID, &newTrade.BuyOrderID, &newTrade.SellOrderID, &newTrade.Price, &newTrade.Quantity,
		&newTrade.ExecutedAt, &newTrade.Market)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", classify(err))
	}
	return newTrade, nil
}

// GetUserOrders retrieves a user's most recent orders, newest first
func (db *DB) GetUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, tipo, instrumento, cantidad, precio_limite, estado, fecha_creacion
		 FROM ordenes WHERE user_id = $1
		 ORDER BY fecha_creacion DESC, id DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", classify(err))
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Side, &order.Instrument, &order.Quantity,
			&order.LimitPrice, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", classify(err))
	}
	return orders, nil
}

// GetRecentTransactions retrieves the latest transactions across all users
func (db *DB) GetRecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, id_orden_compra, id_orden_venta, precio_ejecucion, cantidad_ejecutada, fecha_ejecucion, bolsa_origen
		 FROM transacciones
		 ORDER BY fecha_ejecucion DESC, id DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", classify(err))
	}
	defer rows.Close()

	trades := []models.Transaction{}
	for rows.Next() {
		var trade models.Transaction
		if err := rows.Scan(&trade.ID, &trade.BuyOrderID, &trade.SellOrderID, &trade.Price, &trade.Quantity,
			&trade.ExecutedAt, &trade.Market); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", classify(err))
	}
	return trades, nil
}

// classify marks connection-level failures as ErrStoreUnavailable
func classify(err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return models.Unavailable("postgres", err)
	}
	return err
}
