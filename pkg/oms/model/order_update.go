package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AddOrder is a submission as received from a gateway.
type AddOrder struct {
	GatewayID       string              `json:"client_order_id"`
	Account         string              `json:"account_id"`
	Symbol          string              `json:"instrument_id"`
	Type            OrderType           `json:"type"`
	Side            OrderSide           `json:"side"`
	TimeInForce     OrderTimeInForce    `json:"time_in_force"`
	Quantity        decimal.Decimal     `json:"quantity"`
	Price           decimal.NullDecimal `json:"price"`
	StopPrice       decimal.NullDecimal `json:"stop_price"`
	DisplayQuantity decimal.NullDecimal `json:"display_quantity"`
	ExpireAt        *time.Time          `json:"expire_at,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	TransactTime    time.Time           `json:"transact_time"`
}

// CancelOrder identifies an order either by OrderID or by the account's original client order id.
type CancelOrder struct {
	OrderID       string `json:"order_id,omitempty"`
	GatewayID     string `json:"client_order_id,omitempty"`
	OrigGatewayID string `json:"orig_client_order_id,omitempty"`
	Account       string `json:"account_id,omitempty"`
	Symbol        string `json:"instrument_id,omitempty"`
}
