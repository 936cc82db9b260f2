package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRow is the persisted audit record of a placed order
type OrderRow struct {
	ID        string `gorm:"primaryKey"`
	Pair      string `gorm:"index"`
	Side      string
	Price     decimal.Decimal `gorm:"type:text"`
	Quantity  decimal.Decimal `gorm:"type:text"`
	Status    string          `gorm:"index;default:OPEN"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TradeRow is the persisted record of a finalized fill
type TradeRow struct {
	ID        string `gorm:"primaryKey"`
	OrderID   string `gorm:"index"`
	Pair      string
	Side      string
	Price     decimal.Decimal `gorm:"type:text"`
	Quantity  decimal.Decimal `gorm:"type:text"`
	CreatedAt time.Time
}

// PerformanceRow is a periodic portfolio snapshot
type PerformanceRow struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	BaseBalance     decimal.Decimal `gorm:"type:text"`
	QuoteBalance    decimal.Decimal `gorm:"type:text"`
	TotalValueQuote decimal.Decimal `gorm:"type:text"`
	InventoryRatio  decimal.Decimal `gorm:"type:text"`
	CreatedAt       time.Time
}
