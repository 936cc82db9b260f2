package storage

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
)

func setupTestDB(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func TestRecordAndUpdateOrder(t *testing.T) {
	s := setupTestDB(t)

	order := &domain.TrackedOrder{
		ID:    "ord-1",
		Pair:  "ATOM/USDT",
		Side:  domain.SideBuy,
		Price: decimal.RequireFromString("100"),
		Size:  decimal.RequireFromString("1.5"),
	}

	if err := s.RecordOrder(order); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}

	var row domain.OrderRow
	if err := s.db.First(&row, "id = ?", "ord-1").Error; err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if row.Status != domain.OrderStatusOpen {
		t.Errorf("expected status OPEN, got %s", row.Status)
	}
	if !row.Price.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected price 100, got %s", row.Price)
	}

	if err := s.UpdateOrderStatus("ord-1", domain.OrderStatusClosed); err != nil {
		t.Fatalf("UpdateOrderStatus failed: %v", err)
	}
	if err := s.db.First(&row, "id = ?", "ord-1").Error; err != nil {
		t.Fatalf("order lookup failed: %v", err)
	}
	if row.Status != domain.OrderStatusClosed {
		t.Errorf("expected status CLOSED, got %s", row.Status)
	}
}

func TestRecordOrderIsIdempotent(t *testing.T) {
	s := setupTestDB(t)

	order := &domain.TrackedOrder{
		ID:    "ord-1",
		Pair:  "ATOM/USDT",
		Side:  domain.SideBuy,
		Price: decimal.RequireFromString("100"),
		Size:  decimal.RequireFromString("1"),
	}

	if err := s.RecordOrder(order); err != nil {
		t.Fatalf("first RecordOrder failed: %v", err)
	}
	if err := s.RecordOrder(order); err != nil {
		t.Fatalf("second RecordOrder failed: %v", err)
	}

	var count int64
	s.db.Model(&domain.OrderRow{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 row after re-recording, got %d", count)
	}
}

func TestRecordTradeAndRecentTrades(t *testing.T) {
	s := setupTestDB(t)

	for _, id := range []string{"t1", "t2", "t3"} {
		trade := &domain.TradeRecord{
			ID:       id,
			OrderID:  "ord-" + id,
			Pair:     "ATOM/USDT",
			Side:     domain.SideSell,
			Price:    decimal.RequireFromString("101"),
			Quantity: decimal.RequireFromString("0.5"),
		}
		if err := s.RecordTrade(trade); err != nil {
			t.Fatalf("RecordTrade(%s) failed: %v", id, err)
		}
	}

	trades, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("RecentTrades failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
}

func TestRecordPerformanceAndHistory(t *testing.T) {
	s := setupTestDB(t)

	snap := &domain.PerformanceSnapshot{
		BaseBalance:     decimal.RequireFromString("10"),
		QuoteBalance:    decimal.RequireFromString("1000"),
		TotalValueQuote: decimal.RequireFromString("2000"),
		InventoryRatio:  decimal.RequireFromString("0.5"),
	}
	if err := s.RecordPerformance(snap); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	rows, err := s.PerformanceHistory(24)
	if err != nil {
		t.Fatalf("PerformanceHistory failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(rows))
	}
	if !rows[0].TotalValueQuote.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("expected total value 2000, got %s", rows[0].TotalValueQuote)
	}
}
