package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Submit admits a new order, matches it against its instrument's book and
// returns the settled outcome. A returned error means nothing was committed
// and the book is unchanged.
func (e *Engine) Submit(ctx context.Context, order *model.Order) (*Result, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	if !order.FilledQuantity.IsZero() {
		return nil, fmt.Errorf("%w: new order carries a fill", ErrInvalidOrder)
	}

	d := e.domain(order.InstrumentID)
	d.mu.Lock()
	defer d.mu.Unlock()

	taker := order.Clone()
	if taker.ID == "" {
		taker.ID = uuid.NewString()
	}
	taker.Status = model.OrderStatusPending
	taker.AveragePrice = decimal.NullDecimal{}
	taker.FilledNotional = decimal.Zero
	taker.QueuedAt, taker.QueueSequence = nil, 0
	taker.RejectReason = ""
	taker.Resting, taker.Triggered = false, false
	taker.Sequence = e.seq.Add(1)
	taker.CreatedAt = d.stamp(e.now())
	taker.UpdatedAt = taker.CreatedAt
	taker.Version = 1

	var (
		res *Result
		err error
	)
	if taker.Type == model.OrderTypeStopLoss && !(d.lastPrice.Valid && stopHit(taker, d.lastPrice.Decimal)) {
		res, err = e.arm(ctx, d, taker)
	} else {
		taker.Triggered = taker.Type == model.OrderTypeStopLoss
		res, err = e.execute(ctx, d, taker, true)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug(ctx, "order admitted",
		zap.String("order_id", res.Order.ID),
		zap.String("instrument", res.Order.InstrumentID),
		zap.String("status", string(res.Order.Status)),
		zap.Int("trades", len(res.Trades)))

	e.triggerStops(ctx, d)
	return res, nil
}

// arm stores a stop order that is not triggered yet.
func (e *Engine) arm(ctx context.Context, d *instrumentDomain, o *model.Order) (*Result, error) {
	o.Resting = true
	if err := e.repo.Commit(ctx, &repo.Commit{Insert: []*model.Order{o}}); err != nil {
		return nil, e.persistErr(ctx, o, err)
	}
	d.stops.add(o.Clone())
	e.notify([]*model.Order{o})
	return &Result{Order: o.Clone()}, nil
}

// settlement is the set of state changes derived from one plan, applied to
// memory only after it has been committed.
type settlement struct {
	taker  *model.Order
	insert bool
	fills  []fill
	makers []*model.Order
	trades []*model.Trade
}

func (s *settlement) commit() *repo.Commit {
	c := &repo.Commit{Trades: s.trades}
	if s.insert {
		c.Insert = []*model.Order{s.taker}
		c.Update = s.makers
	} else {
		c.Update = append([]*model.Order{s.taker}, s.makers...)
	}
	return c
}

func (s *settlement) orders() []*model.Order {
	return append([]*model.Order{s.taker}, s.makers...)
}

func (s *settlement) result() *Result {
	r := &Result{Order: s.taker.Clone(), Trades: s.trades}
	for _, m := range s.makers {
		r.Counterparties = append(r.Counterparties, m.Clone())
	}
	return r
}

// execute runs the plan/persist/apply cycle for taker. insert is false for a
// triggered stop that already exists in the store.
func (e *Engine) execute(ctx context.Context, d *instrumentDomain, taker *model.Order, insert bool) (*Result, error) {
	for attempt := 0; ; attempt++ {
		p := planMatch(d.book, taker)
		s, missing := e.settle(d, taker, p, insert)
		var err error
		if missing != "" {
			err = &repo.StaleOrderError{OrderID: missing}
		} else {
			err = e.repo.Commit(ctx, s.commit())
		}

		var stale *repo.StaleOrderError
		if errors.As(err, &stale) && stale.OrderID != taker.ID && attempt < e.cfg.MaxStaleRetries {
			e.logger.Warn(ctx, "resting order out of sync with store, purged",
				zap.String("instrument", d.instrument),
				zap.String("order_id", stale.OrderID),
				zap.String("taker_id", taker.ID),
				zap.Int("attempt", attempt+1))
			if d.forget(stale.OrderID) {
				e.publish(ctx, d, nil)
			}
			continue
		}
		if err != nil {
			return nil, e.persistErr(ctx, taker, err)
		}

		e.apply(d, s)
		if len(s.trades) > 0 || s.taker.Resting {
			e.publish(ctx, d, s.trades)
		}
		e.notify(s.orders())
		return s.result(), nil
	}
}

// settle derives the new order states and trades of p without touching d. It
// returns the id of a maker whose in-memory state cannot back its book entry.
func (e *Engine) settle(d *instrumentDomain, taker *model.Order, p plan, insert bool) (*settlement, string) {
	now := e.now().UTC()
	t := taker.Clone()
	if !insert {
		t.Version++
		t.UpdatedAt = now
	}
	s := &settlement{taker: t, insert: insert, fills: p.fills}

	if p.reject != "" {
		t.Status = model.OrderStatusRejected
		t.RejectReason = p.reject
		t.Resting = false
		return s, ""
	}

	byID := make(map[string]*model.Order, len(p.fills))
	queuedAt := now.Truncate(time.Microsecond)
	if queuedAt.Before(d.lastStamp) {
		queuedAt = d.lastStamp
	}
	for _, f := range p.fills {
		m, seen := byID[f.maker.OrderID]
		if !seen {
			cur, ok := d.resting[f.maker.OrderID]
			if !ok || !cur.Remaining().Equal(f.maker.Remaining) {
				return nil, f.maker.OrderID
			}
			m = cur.Clone()
			m.Version++
			m.UpdatedAt = now
			byID[m.ID] = m
			s.makers = append(s.makers, m)
		}
		if err := m.Fill(f.qty, f.maker.Price); err != nil {
			return nil, m.ID
		}
		m.Resting = m.Remaining().IsPositive()
		if f.maker.Replenishes(f.qty) {
			ts := queuedAt
			m.QueuedAt, m.QueueSequence = &ts, e.seq.Add(1)
		}
		if err := t.Fill(f.qty, f.maker.Price); err != nil {
			return nil, m.ID
		}
		s.trades = append(s.trades, model.NewTrade(t, m, f.qty, f.maker.Price, now))
	}

	t.Resting = false
	if t.Remaining().IsPositive() {
		switch {
		case t.IsLimit() && t.TimeInForce.Rests():
			t.Resting = true
		case len(p.fills) == 0:
			t.Status = model.OrderStatusCancelled
			t.RejectReason = reasonNoImmediate
		}
	}
	return s, ""
}

// apply mirrors a committed settlement into the book.
func (e *Engine) apply(d *instrumentDomain, s *settlement) {
	for _, f := range s.fills {
		d.book.Fill(f.maker.OrderID, f.qty)
	}
	for _, m := range s.makers {
		if !m.Resting {
			delete(d.resting, m.ID)
			continue
		}
		d.resting[m.ID] = m
		if m.QueuedAt == nil {
			continue
		}
		ts, seq := m.Priority()
		if entry, _, ok := d.book.Get(m.ID); ok && entry.Sequence != seq {
			d.book.Requeue(m.ID, ts, seq)
		}
		if ts.After(d.lastStamp) {
			d.lastStamp = ts
		}
	}
	if !s.insert {
		d.stops.remove(s.taker.ID)
	}
	if s.taker.Resting {
		d.rest(s.taker.Clone())
	}
	if n := len(s.trades); n > 0 {
		d.lastPrice = decimal.NewNullDecimal(s.trades[n-1].Price)
	}
}

// triggerStops executes armed stops whose trigger price has been reached,
// including stops reached by the executions of earlier stops.
func (e *Engine) triggerStops(ctx context.Context, d *instrumentDomain) {
	for n := d.stops.len(); n > 0 && d.lastPrice.Valid; n-- {
		stop := d.stops.next(d.lastPrice.Decimal)
		if stop == nil {
			return
		}
		o := stop.Clone()
		o.Triggered = true
		res, err := e.execute(ctx, d, o, false)
		if err != nil {
			var stale *repo.StaleOrderError
			if errors.As(err, &stale) && stale.OrderID == o.ID {
				e.logger.Warn(ctx, "stop order out of sync with store, disarmed", zap.String("order_id", o.ID))
				d.stops.remove(o.ID)
				continue
			}
			e.logger.Error(ctx, "triggered stop failed, left armed", zap.String("order_id", o.ID), zap.Error(err))
			return
		}
		e.logger.Info(ctx, "stop order triggered",
			zap.String("order_id", o.ID),
			zap.String("instrument", d.instrument),
			zap.String("last_price", d.lastPrice.Decimal.String()),
			zap.String("status", string(res.Order.Status)))
	}
}
