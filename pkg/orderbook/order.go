package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// Entry is the resting image of an order inside one side of a book.
type Entry struct {
	OrderID   string
	AccountID string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	// Display is the slice size of an iceberg. Zero means the whole remainder
	// is visible and matchable at this priority.
	Display   decimal.Decimal
	Timestamp time.Time
	Sequence  int64
}

// Visible is what is left of the current slice. It is both the published
// quantity and the most a taker can take before the entry loses its place.
func (e *Entry) Visible() decimal.Decimal {
	if !e.Display.IsPositive() || !e.Display.LessThan(e.Remaining) {
		return e.Remaining
	}
	filled := e.Quantity.Sub(e.Remaining)
	return decimal.Min(e.Display.Sub(filled.Mod(e.Display)), e.Remaining)
}

// Replenishes reports whether taking qty exhausts the current slice while
// hidden quantity remains, which sends the entry to the back of its level.
func (e *Entry) Replenishes(qty decimal.Decimal) bool {
	return qty.Equal(e.Visible()) && e.Remaining.GreaterThan(qty)
}

// before reports whether e has time priority over o.
func (e *Entry) before(o *Entry) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.Sequence < o.Sequence
}

// Level is an aggregated price level as published to market data consumers.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}
