package oms

import (
	"context"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
)

type OrderGateway interface {
	Start(ctx context.Context) error

	// OnOrderReport is called for every committed change of an order. It is
	// called from inside the matching engine and must not block.
	OnOrderReport(ctx context.Context, order model.Order, event *model.OrderEvent)
}
