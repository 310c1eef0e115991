package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next != OrderStatusPending
	case OrderStatusPartiallyFilled:
		switch next {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
			return true
		}
	}
	return false
}

type OrderExecType string

const (
	ExecTypeNew      OrderExecType = "New"
	ExecTypeTrade    OrderExecType = "Trade"
	ExecTypeCanceled OrderExecType = "Canceled"
	ExecTypeRejected OrderExecType = "Rejected"
	ExecTypeExpired  OrderExecType = "Expired"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

type OrderType string

const (
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeStopLoss OrderType = "STOP_LOSS"
	OrderTypeIceberg  OrderType = "ICEBERG"
)

type OrderTimeInForce string

const (
	OrderTimeInForceDAY OrderTimeInForce = "DAY"
	OrderTimeInForceIOC OrderTimeInForce = "IOC"
	OrderTimeInForceFOK OrderTimeInForce = "FOK"
	OrderTimeInForceGTC OrderTimeInForce = "GTC"
)

// Rests reports whether an unfilled remainder stays in the book.
func (t OrderTimeInForce) Rests() bool {
	return t == OrderTimeInForceGTC || t == OrderTimeInForceDAY
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOverfill          = errors.New("fill exceeds remaining quantity")
)

type Order struct {
	ID              string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientOrderID   string              `gorm:"type:varchar(64);index:idx_orders_client" json:"client_order_id,omitempty"`
	AccountID       string              `gorm:"type:varchar(64);index:idx_orders_client;not null" json:"account_id"`
	InstrumentID    string              `gorm:"type:varchar(64);index:idx_orders_instrument;not null" json:"instrument_id"`
	Side            OrderSide           `gorm:"type:varchar(8);not null" json:"side"`
	Type            OrderType           `gorm:"type:varchar(16);not null" json:"type"`
	TimeInForce     OrderTimeInForce    `gorm:"type:varchar(8);not null" json:"time_in_force"`
	Quantity        decimal.Decimal     `gorm:"type:numeric(36,18);not null" json:"quantity"`
	FilledQuantity  decimal.Decimal     `gorm:"type:numeric(36,18);not null" json:"filled_quantity"`
	Price           decimal.NullDecimal `gorm:"type:numeric(36,18)" json:"price"`
	StopPrice       decimal.NullDecimal `gorm:"type:numeric(36,18)" json:"stop_price"`
	DisplayQuantity decimal.NullDecimal `gorm:"type:numeric(36,18)" json:"display_quantity"`
	AveragePrice    decimal.NullDecimal `gorm:"type:numeric(36,18)" json:"average_price"`
	FilledNotional  decimal.Decimal     `gorm:"type:numeric(48,18);not null;default:0" json:"filled_notional"`
	Status          OrderStatus         `gorm:"type:varchar(20);not null" json:"status"`
	RejectReason    string              `gorm:"type:text" json:"reject_reason,omitempty"`
	Notes           string              `gorm:"type:text" json:"notes,omitempty"`
	ExpireAt        *time.Time          `json:"expire_at,omitempty"`

	// engine bookkeeping
	Resting   bool  `gorm:"index:idx_orders_resting;not null" json:"resting"`
	Triggered bool  `gorm:"not null" json:"triggered,omitempty"`
	Sequence  int64 `gorm:"not null" json:"sequence"`
	Version   int64 `gorm:"not null" json:"version"`
	// QueuedAt and QueueSequence are the book priority of the current iceberg
	// tranche. Unset means CreatedAt and Sequence.
	QueuedAt      *time.Time `json:"queued_at,omitempty"`
	QueueSequence int64      `gorm:"not null;default:0" json:"queue_sequence,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_orders_resting" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

func (o *Order) CanCancel() bool {
	return !o.Status.IsTerminal()
}

// IsLimit reports whether the order carries a limit price when it executes.
func (o *Order) IsLimit() bool {
	return o.Type != OrderTypeMarket && o.Price.Valid
}

// IsArmedStop reports whether o is a stop order that has not been triggered yet.
func (o *Order) IsArmedStop() bool {
	return o.Type == OrderTypeStopLoss && !o.Triggered
}

// Displayed is the quantity of the remainder that is visible in the book. For
// an iceberg that is what is left of the current tranche.
func (o *Order) Displayed() decimal.Decimal {
	if o.Type != OrderTypeIceberg || !o.DisplayQuantity.Valid {
		return o.Remaining()
	}
	return Tranche(o.Quantity, o.FilledQuantity, o.DisplayQuantity.Decimal)
}

// Tranche is the unfilled part of the current display slice of an order of
// quantity qty that shows display at a time and has filled so far. Slices are
// cut from the start of the order, so every slice but the last is display.
func Tranche(qty, filled, display decimal.Decimal) decimal.Decimal {
	rem := qty.Sub(filled)
	if !display.IsPositive() || !display.LessThan(rem) {
		return rem
	}
	return decimal.Min(display.Sub(filled.Mod(display)), rem)
}

// Priority is the time priority of the order's book entry.
func (o *Order) Priority() (time.Time, int64) {
	if o.QueuedAt != nil {
		return *o.QueuedAt, o.QueueSequence
	}
	return o.CreatedAt, o.Sequence
}

// Transition moves the order to next when the lifecycle allows it.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// Fill records an execution of qty at price, updating the average price and status.
func (o *Order) Fill(qty, price decimal.Decimal) error {
	if qty.GreaterThan(o.Remaining()) {
		return fmt.Errorf("%w: order %s remaining %s fill %s", ErrOverfill, o.ID, o.Remaining(), qty)
	}
	next := OrderStatusPartiallyFilled
	if qty.Equal(o.Remaining()) {
		next = OrderStatusFilled
	}
	if err := o.Transition(next); err != nil {
		return err
	}
	o.FilledNotional = o.FilledNotional.Add(price.Mul(qty))
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.AveragePrice = decimal.NewNullDecimal(o.FilledNotional.Div(o.FilledQuantity))
	return nil
}

// Validate checks the shape of a submission.
func (o *Order) Validate() error {
	if o.InstrumentID == "" {
		return errors.New("instrument id is required")
	}
	if o.AccountID == "" {
		return errors.New("account id is required")
	}
	if !o.Side.Valid() {
		return fmt.Errorf("unknown side %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return errors.New("quantity must be positive")
	}
	if o.FilledQuantity.IsNegative() || o.FilledQuantity.GreaterThan(o.Quantity) {
		return errors.New("filled quantity out of range")
	}
	switch o.TimeInForce {
	case OrderTimeInForceGTC, OrderTimeInForceIOC, OrderTimeInForceFOK, OrderTimeInForceDAY:
	default:
		return fmt.Errorf("unknown time in force %q", o.TimeInForce)
	}
	if o.Price.Valid && !o.Price.Decimal.IsPositive() {
		return errors.New("price must be positive")
	}
	switch o.Type {
	case OrderTypeMarket:
		if o.Price.Valid {
			return errors.New("market order must not carry a price")
		}
	case OrderTypeLimit:
		if !o.Price.Valid {
			return errors.New("limit order requires a price")
		}
	case OrderTypeIceberg:
		if !o.Price.Valid {
			return errors.New("iceberg order requires a price")
		}
		if !o.DisplayQuantity.Valid || !o.DisplayQuantity.Decimal.IsPositive() {
			return errors.New("iceberg order requires a positive display quantity")
		}
		if o.DisplayQuantity.Decimal.GreaterThan(o.Quantity) {
			return errors.New("display quantity exceeds quantity")
		}
	case OrderTypeStopLoss:
		if !o.StopPrice.Valid || !o.StopPrice.Decimal.IsPositive() {
			return errors.New("stop order requires a positive stop price")
		}
	default:
		return fmt.Errorf("unknown order type %q", o.Type)
	}
	if o.Type != OrderTypeStopLoss && o.StopPrice.Valid {
		return errors.New("stop price is only valid for stop orders")
	}
	if o.Type != OrderTypeIceberg && o.DisplayQuantity.Valid {
		return errors.New("display quantity is only valid for iceberg orders")
	}
	return nil
}

// Clone returns a copy that shares no pointers with o.
func (o *Order) Clone() *Order {
	c := *o
	if o.ExpireAt != nil {
		t := *o.ExpireAt
		c.ExpireAt = &t
	}
	if o.QueuedAt != nil {
		t := *o.QueuedAt
		c.QueuedAt = &t
	}
	return &c
}
