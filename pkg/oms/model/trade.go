package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an immutable execution between a taker and a resting maker.
type Trade struct {
	ID            string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InstrumentID  string              `gorm:"type:varchar(64);index:idx_trades_instrument;not null" json:"instrument_id"`
	BuyOrderID    string              `gorm:"type:varchar(36);index;not null" json:"buy_order_id"`
	SellOrderID   string              `gorm:"type:varchar(36);index;not null" json:"sell_order_id"`
	BuyAccountID  string              `gorm:"type:varchar(64);not null" json:"buy_account_id"`
	SellAccountID string              `gorm:"type:varchar(64);not null" json:"sell_account_id"`
	TakerSide     OrderSide           `gorm:"type:varchar(8);not null" json:"taker_side"`
	Quantity      decimal.Decimal     `gorm:"type:numeric(36,18);not null" json:"quantity"`
	Price         decimal.Decimal     `gorm:"type:numeric(36,18);not null" json:"price"`
	Value         decimal.Decimal     `gorm:"type:numeric(36,18);not null" json:"value"`
	Fee           decimal.NullDecimal `gorm:"type:numeric(36,18)" json:"fee"`
	ExecutedAt    time.Time           `gorm:"index:idx_trades_instrument;not null" json:"executed_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// NewTrade builds the trade for taker crossing maker for qty at the maker's price.
func NewTrade(taker, maker *Order, qty, price decimal.Decimal, at time.Time) *Trade {
	t := &Trade{
		ID:           uuid.NewString(),
		InstrumentID: taker.InstrumentID,
		TakerSide:    taker.Side,
		Quantity:     qty,
		Price:        price,
		Value:        qty.Mul(price),
		ExecutedAt:   at,
	}
	buy, sell := taker, maker
	if taker.Side == OrderSideSell {
		buy, sell = maker, taker
	}
	t.BuyOrderID, t.BuyAccountID = buy.ID, buy.AccountID
	t.SellOrderID, t.SellAccountID = sell.ID, sell.AccountID
	return t
}
