package oms

import (
	"context"

	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
)

// IOMS is what gateways call.
type IOMS interface {
	AddOrder(ctx context.Context, addOrder *model.AddOrder) (*matching.Result, error)
	CancelOrder(ctx context.Context, cancelOrder *model.CancelOrder) (*matching.CancelResult, error)
	ExpireOrder(ctx context.Context, orderID string) (*matching.CancelResult, error)
}

// IQuery serves read-only views for the API.
type IQuery interface {
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	OrderEvents(ctx context.Context, orderID string) ([]*model.OrderEvent, error)
	Book(instrument string, depth int) (bids, asks []orderbook.Level)
	Trades(ctx context.Context, instrument string, limit int) ([]*model.Trade, error)
}

// Matcher is the matching engine as seen by the OMS.
type Matcher interface {
	Submit(ctx context.Context, order *model.Order) (*matching.Result, error)
	Cancel(ctx context.Context, req matching.CancelRequest) (*matching.CancelResult, error)
	Expire(ctx context.Context, orderID string) (*matching.CancelResult, error)
	TopOfBook(instrument string, depth int) (bids, asks []orderbook.Level)
	RegisterOrderCallback(fn func([]model.Order))
}
