package repo

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
)

// InMemoryRepo is an IRepo kept in process memory, used by tests and the benchmark.
type InMemoryRepo struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
	trades []*model.Trade
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		orders: make(map[string]*model.Order),
	}
}

func (r *InMemoryRepo) Order() IOrder { return r }

func (r *InMemoryRepo) Trade() ITrade { return inMemoryTrades{r} }

func (r *InMemoryRepo) Commit(_ context.Context, c *Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range c.Insert {
		if _, ok := r.orders[o.ID]; ok {
			return ErrDuplicateOrder
		}
	}
	for _, o := range c.Update {
		cur, ok := r.orders[o.ID]
		if !ok || cur.Version != o.Version-1 {
			return &StaleOrderError{OrderID: o.ID, Version: o.Version - 1}
		}
	}
	for _, o := range c.Insert {
		r.orders[o.ID] = o.Clone()
	}
	for _, o := range c.Update {
		r.orders[o.ID] = o.Clone()
	}
	for _, t := range c.Trades {
		cp := *t
		r.trades = append(r.trades, &cp)
	}
	return nil
}

// Put stores o as is, bypassing version checks.
func (r *InMemoryRepo) Put(o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
}

func (r *InMemoryRepo) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
}

func (r *InMemoryRepo) Get(_ context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (r *InMemoryRepo) GetByClientID(_ context.Context, accountID, clientOrderID string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *model.Order
	for _, o := range r.orders {
		if o.AccountID != accountID || o.ClientOrderID != clientOrderID {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = o
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (r *InMemoryRepo) ListResting(_ context.Context) ([]*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.Resting && !o.IsTerminal() {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out, nil
}

func (r *InMemoryRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.Resting && o.ExpireAt != nil && !o.ExpireAt.After(now) {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.Order) int { return a.ExpireAt.Compare(*b.ExpireAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepo) MaxSequence(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var seq int64
	for _, o := range r.orders {
		seq = max(seq, o.Sequence, o.QueueSequence)
	}
	return seq, nil
}

type inMemoryTrades struct {
	r *InMemoryRepo
}

func (t inMemoryTrades) ListByInstrument(_ context.Context, instrumentID string, limit int) ([]*model.Trade, error) {
	t.r.mu.RLock()
	defer t.r.mu.RUnlock()
	var out []*model.Trade
	for i := len(t.r.trades) - 1; i >= 0; i-- {
		if tr := t.r.trades[i]; tr.InstrumentID == instrumentID {
			cp := *tr
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t inMemoryTrades) ListByOrder(_ context.Context, orderID string) ([]*model.Trade, error) {
	t.r.mu.RLock()
	defer t.r.mu.RUnlock()
	var out []*model.Trade
	for _, tr := range t.r.trades {
		if tr.BuyOrderID == orderID || tr.SellOrderID == orderID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Trades returns every stored trade in commit order.
func (r *InMemoryRepo) Trades() []*model.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Trade, len(r.trades))
	for i, tr := range r.trades {
		cp := *tr
		out[i] = &cp
	}
	return out
}
