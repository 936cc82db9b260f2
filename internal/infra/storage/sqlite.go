package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gridmaker_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed audit store. It records orders, trades,
// and performance snapshots; it is never consulted for control flow.
type Storage struct {
	db *gorm.DB
}

var _ domain.Store = (*Storage)(nil)

// NewStorage creates a new SQLite storage instance at the given path.
func NewStorage(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.OrderRow{}, &domain.TradeRow{}, &domain.PerformanceRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Order Operations
// ======================================================================================

// RecordOrder stores a newly placed order with status OPEN.
func (s *Storage) RecordOrder(order *domain.TrackedOrder) error {
	row := domain.OrderRow{
		ID:       order.ID,
		Pair:     order.Pair,
		Side:     order.Side,
		Price:    order.Price,
		Quantity: order.Size,
		Status:   domain.OrderStatusOpen,
	}
	return s.db.Save(&row).Error
}

// UpdateOrderStatus updates the status of an existing order.
func (s *Storage) UpdateOrderStatus(id, status string) error {
	return s.db.Model(&domain.OrderRow{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ======================================================================================
// Trade Operations
// ======================================================================================

// RecordTrade stores a finalized trade. Trades are immutable once created.
func (s *Storage) RecordTrade(trade *domain.TradeRecord) error {
	row := domain.TradeRow{
		ID:       trade.ID,
		OrderID:  trade.OrderID,
		Pair:     trade.Pair,
		Side:     trade.Side,
		Price:    trade.Price,
		Quantity: trade.Quantity,
	}
	return s.db.Create(&row).Error
}

// RecentTrades returns the most recent trades, newest first.
func (s *Storage) RecentTrades(limit int) ([]domain.TradeRow, error) {
	var trades []domain.TradeRow
	err := s.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// ======================================================================================
// Performance Operations
// ======================================================================================

// RecordPerformance stores a portfolio snapshot.
func (s *Storage) RecordPerformance(p *domain.PerformanceSnapshot) error {
	row := domain.PerformanceRow{
		BaseBalance:     p.BaseBalance,
		QuoteBalance:    p.QuoteBalance,
		TotalValueQuote: p.TotalValueQuote,
		InventoryRatio:  p.InventoryRatio,
	}
	return s.db.Create(&row).Error
}

// PerformanceHistory returns snapshots recorded within the last given hours.
func (s *Storage) PerformanceHistory(hours int) ([]domain.PerformanceRow, error) {
	var rows []domain.PerformanceRow
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	err := s.db.Where("created_at > ?", since).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
