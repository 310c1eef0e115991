package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is one entry of an order's lifecycle history.
type OrderEvent struct {
	EventID        string              `json:"event_id"`
	OrderID        string              `json:"order_id"`
	ClOrdID        string              `json:"client_order_id,omitempty"`
	OrigClOrdID    string              `json:"orig_client_order_id,omitempty"`
	ExecType       OrderExecType       `json:"exec_type"`
	Status         OrderStatus         `json:"status"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	LastQty        decimal.Decimal     `json:"last_quantity"`
	LastPrice      decimal.NullDecimal `json:"last_price"`
	AveragePrice   decimal.NullDecimal `json:"average_price"`
	FilledNotional decimal.Decimal     `json:"filled_notional"`
	Version        int64               `json:"version"`
	Reason         string              `json:"reason,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// NewOrderEvent snapshots o. prev is the order's previous event, nil for the
// first one. LastPrice is the average price of the fills between the two.
func NewOrderEvent(o Order, prev *OrderEvent, ts time.Time) *OrderEvent {
	prevFilled, prevNotional := decimal.Zero, decimal.Zero
	if prev != nil {
		prevFilled, prevNotional = prev.FilledQuantity, prev.FilledNotional
	}
	ev := &OrderEvent{
		EventID:        NewEventID(o.ID, o.Version),
		OrderID:        o.ID,
		ClOrdID:        o.ClientOrderID,
		ExecType:       ExecTypeOf(o, prevFilled),
		Status:         o.Status,
		FilledQuantity: o.FilledQuantity,
		LastQty:        o.FilledQuantity.Sub(prevFilled),
		AveragePrice:   o.AveragePrice,
		FilledNotional: o.FilledNotional,
		Version:        o.Version,
		Reason:         o.RejectReason,
		Timestamp:      ts,
	}
	if ev.LastQty.IsPositive() {
		notional := o.FilledNotional.Sub(prevNotional)
		ev.LastPrice = decimal.NewNullDecimal(notional.Div(ev.LastQty))
	}
	return ev
}

// ExecTypeOf derives the execution type of the update that produced o.
func ExecTypeOf(o Order, prevFilled decimal.Decimal) OrderExecType {
	switch o.Status {
	case OrderStatusRejected:
		return ExecTypeRejected
	case OrderStatusExpired:
		return ExecTypeExpired
	case OrderStatusCancelled:
		if o.FilledQuantity.GreaterThan(prevFilled) {
			return ExecTypeTrade
		}
		return ExecTypeCanceled
	}
	if o.FilledQuantity.GreaterThan(prevFilled) {
		return ExecTypeTrade
	}
	return ExecTypeNew
}

func NewEventID(orderID string, version int64) string {
	return fmt.Sprintf("%s-%d", orderID, version)
}
