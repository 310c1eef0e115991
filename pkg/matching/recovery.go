package matching

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Recover rebuilds every book from the store's resting orders. Books are reset
// first, so running it again yields the same state. It must complete before
// the engine takes traffic.
func (e *Engine) Recover(ctx context.Context) (*RecoveryReport, error) {
	orders, err := e.repo.Order().ListResting(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list resting orders: %w", ErrPersistence, err)
	}
	maxSeq, err := e.repo.Order().MaxSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: max sequence: %w", ErrPersistence, err)
	}

	e.books.Range(func(k, _ any) bool {
		e.books.Delete(k)
		return true
	})

	report := &RecoveryReport{}
	for _, o := range orders {
		if !o.Remaining().IsPositive() {
			report.Skipped++
			e.logger.Warn(ctx, "skipping resting order without remaining quantity", zap.String("order_id", o.ID))
			continue
		}
		d := e.domain(o.InstrumentID)
		d.mu.Lock()
		ok := d.rest(o)
		if ts, _ := o.Priority(); ts.After(d.lastStamp) {
			d.lastStamp = ts
		}
		d.mu.Unlock()
		switch {
		case !ok:
			report.Skipped++
			e.logger.Warn(ctx, "skipping resting order the book cannot admit",
				zap.String("order_id", o.ID),
				zap.String("type", string(o.Type)))
		case o.IsArmedStop():
			report.Stops++
		default:
			report.Orders++
		}
	}

	for cur := e.seq.Load(); cur < maxSeq; cur = e.seq.Load() {
		if e.seq.CompareAndSwap(cur, maxSeq) {
			break
		}
	}

	e.books.Range(func(_, v any) bool {
		d := v.(*instrumentDomain)
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stops.len() > 0 {
			trades, err := e.repo.Trade().ListByInstrument(ctx, d.instrument, 1)
			if err != nil {
				e.logger.Warn(ctx, "last trade price unavailable", zap.String("instrument", d.instrument), zap.Error(err))
			} else if len(trades) == 1 {
				d.lastPrice = decimal.NewNullDecimal(trades[0].Price)
			}
		}
		e.publish(ctx, d, nil)
		report.Instruments++
		return true
	})

	e.logger.Info(ctx, "books recovered",
		zap.Int("instruments", report.Instruments),
		zap.Int("orders", report.Orders),
		zap.Int("stops", report.Stops),
		zap.Int("skipped", report.Skipped),
		zap.Int64("sequence", e.seq.Load()))
	return report, nil
}
