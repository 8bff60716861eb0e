// Package memstore is a process-local stand-in for both backing stores. It
// serves storage=memory runs and the tests of the packages above it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/google/btree"
)

const degree = 32

// newestOrderFirst orders by creation time descending, then id descending
func newestOrderFirst(a, b models.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// newestTradeFirst orders by execution time descending, then id descending
func newestTradeFirst(a, b models.Transaction) bool {
	if !a.ExecutedAt.Equal(b.ExecutedAt) {
		return a.ExecutedAt.After(b.ExecutedAt)
	}
	return a.ID > b.ID
}

// Store holds users, fees, orders and transactions behind one mutex. Orders
// are indexed per user and transactions globally in B-trees kept newest
// first, so listings are an in-order walk that stops at the limit.
type Store struct {
	mu          sync.RWMutex
	users       map[string]models.User
	fees        map[models.Market]models.FeeConfig
	orders      map[string]*btree.BTreeG[models.Order] // user id → orders
	trades      *btree.BTreeG[models.Transaction]
	nextUserID  int64
	nextOrderID int64
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:  make(map[string]models.User),
		fees:   make(map[models.Market]models.FeeConfig),
		orders: make(map[string]*btree.BTreeG[models.Order]),
		trades: btree.NewG[models.Transaction](degree, newestTradeFirst),
	}
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return fmt.Errorf("user %q already exists", user.Username)
	}
	s.nextUserID++
	user.ID = fmt.Sprintf("mem-%d", s.nextUserID)
	s.users[user.Username] = *user
	return nil
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) UpsertFee(_ context.Context, fee models.FeeConfig) error {
	s.mu.Lock()
	s.fees[fee.Market] = fee
	s.mu.Unlock()
	return nil
}

func (s *Store) ListFees(context.Context) ([]models.FeeConfig, error) {
	s.mu.RLock()
	fees := make([]models.FeeConfig, 0, len(s.fees))
	for _, fee := range s.fees {
		fees = append(fees, fee)
	}
	s.mu.RUnlock()
	sort.Slice(fees, func(i, j int) bool { return fees[i].Market < fees[j].Market })
	return fees, nil
}

// PlaceOrder stores the order and, if match returns a fill, the executed
// status and transaction, all under one lock.
func (s *Store) PlaceOrder(_ context.Context, order *models.Order, match func(models.Order) *models.Transaction) (*models.Order, *models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrderID++
	created := *order
	created.ID = s.nextOrderID
	created.Status = models.StatusPendiente

	var trade *models.Transaction
	if fill := match(created); fill != nil {
		created.Status = models.StatusEjecutada
		t := *fill
		t.ID = int64(s.trades.Len() + 1)
		s.trades.ReplaceOrInsert(t)
		trade = &t
	}

	tree, ok := s.orders[created.UserID]
	if !ok {
		tree = btree.NewG[models.Order](degree, newestOrderFirst)
		s.orders[created.UserID] = tree
	}
	tree.ReplaceOrInsert(created)
	return &created, trade, nil
}

func (s *Store) GetUserOrders(_ context.Context, userID string, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	tree, ok := s.orders[userID]
	if !ok {
		return orders, nil
	}
	tree.Ascend(func(o models.Order) bool {
		if len(orders) >= limit {
			return false
		}
		orders = append(orders, o)
		return true
	})
	return orders, nil
}

func (s *Store) GetRecentTransactions(_ context.Context, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := []models.Transaction{}
	s.trades.Ascend(func(t models.Transaction) bool {
		if len(trades) >= limit {
			return false
		}
		trades = append(trades, t)
		return true
	})
	return trades, nil
}
