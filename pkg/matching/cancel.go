package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"go.uber.org/zap"
)

// Cancel marks an open order CANCELLED and removes it from its book. An order
// that is already terminal yields Accepted=false and no error.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	return e.terminate(ctx, req, model.OrderStatusCancelled)
}

// Expire is Cancel with the EXPIRED status, used by time-based triggers.
func (e *Engine) Expire(ctx context.Context, orderID string) (*CancelResult, error) {
	return e.terminate(ctx, CancelRequest{OrderID: orderID}, model.OrderStatusExpired)
}

func (e *Engine) lookupErr(orderID string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return wrapPersistence(err)
}

func (e *Engine) terminate(ctx context.Context, req CancelRequest, status model.OrderStatus) (*CancelResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidOrder)
	}
	instrument := req.InstrumentID
	if instrument == "" {
		o, err := e.repo.Order().Get(ctx, req.OrderID)
		if err != nil {
			return nil, e.lookupErr(req.OrderID, err)
		}
		instrument = o.InstrumentID
	}

	d := e.domain(instrument)
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		cur := d.lookup(req.OrderID)
		if cur == nil {
			stored, err := e.repo.Order().Get(ctx, req.OrderID)
			if err != nil {
				return nil, e.lookupErr(req.OrderID, err)
			}
			if stored.InstrumentID != instrument {
				return nil, fmt.Errorf("%w: %s on %s", ErrOrderNotFound, req.OrderID, instrument)
			}
			cur = stored
		}
		if cur.IsTerminal() {
			return &CancelResult{Order: cur.Clone(), Reason: fmt.Sprintf(reasonAlreadyClosed, cur.Status)}, nil
		}

		upd := cur.Clone()
		if err := upd.Transition(status); err != nil {
			return &CancelResult{Order: cur.Clone(), Reason: err.Error()}, nil
		}
		upd.Resting = false
		upd.Version++
		upd.UpdatedAt = e.now().UTC()

		err := e.repo.Commit(ctx, &repo.Commit{Update: []*model.Order{upd}})
		var stale *repo.StaleOrderError
		if errors.As(err, &stale) && attempt == 0 {
			e.logger.Warn(ctx, "order out of sync with store, reloading",
				zap.String("instrument", instrument),
				zap.String("order_id", req.OrderID))
			if d.forget(req.OrderID) {
				e.publish(ctx, d, nil)
			}
			continue
		}
		if err != nil {
			return nil, e.persistErr(ctx, upd, err)
		}

		if d.forget(upd.ID) {
			e.publish(ctx, d, nil)
		}
		e.notify([]*model.Order{upd})
		e.logger.Debug(ctx, "order closed",
			zap.String("order_id", upd.ID),
			zap.String("instrument", instrument),
			zap.String("status", string(status)))
		return &CancelResult{Order: upd.Clone(), Accepted: true}, nil
	}
	return nil, wrapPersistence(fmt.Errorf("order %s keeps changing under cancel", req.OrderID))
}
