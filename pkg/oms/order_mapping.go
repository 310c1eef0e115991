package oms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// newOrder maps a gateway submission onto a new order.
func (s *OMS) newOrder(addOrder *model.AddOrder) (*model.Order, error) {
	if addOrder == nil {
		return nil, fmt.Errorf("%w: empty submission", ErrInvalidOrder)
	}
	if addOrder.Symbol == "" {
		return nil, fmt.Errorf("%w: instrument is required", ErrInvalidOrder)
	}
	if len(s.instruments) > 0 {
		if _, ok := s.instruments[addOrder.Symbol]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, addOrder.Symbol)
		}
	}
	if addOrder.Account == "" {
		return nil, fmt.Errorf("%w: account is required", ErrInvalidOrder)
	}

	order := &model.Order{
		ID:              uuid.NewString(),
		ClientOrderID:   addOrder.GatewayID,
		AccountID:       addOrder.Account,
		InstrumentID:    addOrder.Symbol,
		Side:            addOrder.Side,
		Type:            addOrder.Type,
		TimeInForce:     addOrder.TimeInForce,
		Quantity:        addOrder.Quantity,
		Price:           addOrder.Price,
		StopPrice:       addOrder.StopPrice,
		DisplayQuantity: addOrder.DisplayQuantity,
		Notes:           addOrder.Notes,
	}
	if order.Type == "" {
		order.Type = model.OrderTypeLimit
		if !order.Price.Valid {
			order.Type = model.OrderTypeMarket
		}
	}
	if order.TimeInForce == "" {
		order.TimeInForce = model.OrderTimeInForceDAY
	}

	now := s.now().UTC()
	switch {
	case addOrder.ExpireAt != nil:
		if !addOrder.ExpireAt.After(now) {
			return nil, fmt.Errorf("%w: expire_at %s is not in the future", ErrInvalidOrder, addOrder.ExpireAt.Format(time.RFC3339))
		}
		at := addOrder.ExpireAt.UTC()
		order.ExpireAt = &at
	case order.TimeInForce == model.OrderTimeInForceDAY && s.session != nil:
		at := s.session.NextClose(now)
		order.ExpireAt = &at
	}

	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	return order, nil
}

func (s *OMS) startCleaner(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *OMS) cleanup() {
	n := s.eventstore.Prune(s.now().Add(-s.cfg.EventRetention))
	if n > 0 {
		s.logger.Debug(context.Background(), "pruned closed orders", zap.Int("orders", n))
	}
}

// resolveOrderID finds the order a cancel refers to, by order id or by the
// account's original client order id.
func (s *OMS) resolveOrderID(ctx context.Context, c *model.CancelOrder) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: empty cancel request", ErrInvalidOrder)
	}
	if c.OrderID != "" {
		return c.OrderID, nil
	}
	if c.OrigGatewayID == "" || c.Account == "" {
		return "", fmt.Errorf("%w: order id or account and original client order id required", ErrInvalidOrder)
	}
	if id := s.eventstore.GetOrderID(c.Account, c.OrigGatewayID); id != "" {
		return id, nil
	}
	if s.store != nil {
		o, err := s.store.Order().GetByClientID(ctx, c.Account, c.OrigGatewayID)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", matching.ErrPersistence, err)
		}
	}
	return "", fmt.Errorf("%w: client order id %s", ErrOrderIDNotFound, c.OrigGatewayID)
}
