package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xtrntr/nuamexchange/internal/models"
)

func TestStore_PlaceOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	fill := func(o models.Order) *models.Transaction {
		return &models.Transaction{BuyOrderID: "1", SellOrderID: models.FictitiousMatch, Price: 95, Quantity: o.Quantity, ExecutedAt: now}
	}
	order, trade, err := s.PlaceOrder(ctx, &models.Order{UserID: "u1", Quantity: 10, CreatedAt: now}, fill)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != 1 || order.Status != models.StatusEjecutada {
		t.Errorf("unexpected order: %+v", order)
	}
	if trade == nil || trade.ID != 1 || trade.Quantity != 10 {
		t.Errorf("unexpected transaction: %+v", trade)
	}

	order, trade, err = s.PlaceOrder(ctx, &models.Order{UserID: "u1", Quantity: 5, CreatedAt: now.Add(time.Second)},
		func(models.Order) *models.Transaction { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != 2 || order.Status != models.StatusPendiente || trade != nil {
		t.Errorf("unexpected result: %+v %+v", order, trade)
	}

	orders, _ := s.GetUserOrders(ctx, "u1", 10)
	if len(orders) != 2 || orders[0].ID != 2 {
		t.Errorf("expected newest first, got %+v", orders)
	}
	orders, _ = s.GetUserOrders(ctx, "u1", 1)
	if len(orders) != 1 {
		t.Errorf("limit not applied: %d", len(orders))
	}
	trades, _ := s.GetRecentTransactions(ctx, 10)
	if len(trades) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(trades))
	}
}

func TestStore_Users(t *testing.T) {
	s := New()
	ctx := context.Background()

	user := &models.User{Username: "alice", Role: models.RoleAdmin}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if err := s.CreateUser(ctx, &models.User{Username: "alice"}); err == nil {
		t.Error("expected duplicate to fail")
	}
	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || got.ID != user.ID {
		t.Errorf("unexpected user %+v, err=%v", got, err)
	}
}

func TestStore_Fees(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.UpsertFee(ctx, models.FeeConfig{Market: models.MarketPE, BaseRate: 0.003})
	s.UpsertFee(ctx, models.FeeConfig{Market: models.MarketCL, BaseRate: 0.005})
	s.UpsertFee(ctx, models.FeeConfig{Market: models.MarketCL, BaseRate: 0.01})

	fees, _ := s.ListFees(ctx)
	if len(fees) != 2 {
		t.Fatalf("expected 2 fees, got %d", len(fees))
	}
	if fees[0].Market != models.MarketCL || fees[0].BaseRate != 0.01 {
		t.Errorf("unexpected first fee: %+v", fees[0])
	}
}

func TestStore_ListingOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	same := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fill := func(o models.Order) *models.Transaction {
		return &models.Transaction{Price: 95, Quantity: o.Quantity, ExecutedAt: same}
	}

	for i := 1; i <= 5; i++ {
		if _, _, err := s.PlaceOrder(ctx, &models.Order{UserID: "u1", Quantity: int64(i), CreatedAt: same}, fill); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	s.PlaceOrder(ctx, &models.Order{UserID: "u2", Quantity: 99, CreatedAt: same.Add(time.Hour)}, fill)

	tests := []struct {
		name     string
		userID   string
		limit    int
		expected []int64
	}{
		{name: "TiesByIDDesc", userID: "u1", limit: 10, expected: []int64{5, 4, 3, 2, 1}},
		{name: "Limited", userID: "u1", limit: 2, expected: []int64{5, 4}},
		{name: "OtherUser", userID: "u2", limit: 10, expected: []int64{6}},
		{name: "Unknown", userID: "u3", limit: 10, expected: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, _ := s.GetUserOrders(ctx, tt.userID, tt.limit)
			ids := []int64{}
			for _, o := range orders {
				ids = append(ids, o.ID)
			}
			if len(ids) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, ids)
			}
			for i := range ids {
				if ids[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, ids)
					break
				}
			}
		})
	}

	trades, _ := s.GetRecentTransactions(ctx, 3)
	if len(trades) != 3 || trades[0].ID != 6 || trades[1].ID != 5 || trades[2].ID != 4 {
		t.Errorf("unexpected transaction order: %+v", trades)
	}
}
