package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/bhanukaranwal/SetuBond/pkg/projector"
	"github.com/shopspring/decimal"
)

const instrument = "INE002A08427"

var base = time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type capturePublisher struct {
	mu      sync.Mutex
	updates []projector.Update
}

func (p *capturePublisher) Publish(_ context.Context, u projector.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *capturePublisher) last() projector.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates[len(p.updates)-1]
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

// flakyRepo fails commits while fail is set.
type flakyRepo struct {
	*repo.InMemoryRepo
	fail atomic.Bool
}

var errStoreDown = errors.New("store down")

func (r *flakyRepo) Commit(ctx context.Context, c *repo.Commit) error {
	if r.fail.Load() {
		return errStoreDown
	}
	return r.InMemoryRepo.Commit(ctx, c)
}

type harness struct {
	t      *testing.T
	engine *Engine
	store  *flakyRepo
	pub    *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &flakyRepo{InMemoryRepo: repo.NewInMemoryRepo()}
	pub := &capturePublisher{}
	e := New(Config{BookDepth: 5}, store, pub, logging.NewNopLogger())
	var tick atomic.Int64
	e.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Millisecond) }
	return &harness{t: t, engine: e, store: store, pub: pub}
}

func newOrder(id, account string, side model.OrderSide, typ model.OrderType, tif model.OrderTimeInForce, qty string) *model.Order {
	return &model.Order{
		ID:           id,
		AccountID:    account,
		InstrumentID: instrument,
		Side:         side,
		Type:         typ,
		TimeInForce:  tif,
		Quantity:     d(qty),
	}
}

func limit(id string, side model.OrderSide, qty, price string, tif model.OrderTimeInForce) *model.Order {
	o := newOrder(id, "acc-"+id, side, model.OrderTypeLimit, tif, qty)
	o.Price = decimal.NewNullDecimal(d(price))
	return o
}

func market(id string, side model.OrderSide, qty string) *model.Order {
	return newOrder(id, "acc-"+id, side, model.OrderTypeMarket, model.OrderTimeInForceGTC, qty)
}

func stop(id string, side model.OrderSide, qty, stopPrice string) *model.Order {
	o := newOrder(id, "acc-"+id, side, model.OrderTypeStopLoss, model.OrderTimeInForceGTC, qty)
	o.StopPrice = decimal.NewNullDecimal(d(stopPrice))
	return o
}

func (h *harness) submit(o *model.Order) *Result {
	h.t.Helper()
	res, err := h.engine.Submit(context.Background(), o)
	if err != nil {
		h.t.Fatalf("submit %s: %v", o.ID, err)
	}
	h.validate()
	return res
}

func (h *harness) validate() {
	h.t.Helper()
	v, ok := h.engine.books.Load(instrument)
	if !ok {
		return
	}
	dom := v.(*instrumentDomain)
	dom.mu.Lock()
	defer dom.mu.Unlock()
	if err := dom.book.Validate(); err != nil {
		h.t.Fatalf("book invariant broken: %v", err)
	}
	for id, o := range dom.resting {
		e, _, ok := dom.book.Get(id)
		if !ok || !e.Remaining.Equal(o.Remaining()) {
			h.t.Fatalf("resting order %s out of sync with book", id)
		}
	}
}

func (h *harness) stored(id string) *model.Order {
	h.t.Helper()
	o, err := h.store.Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("stored %s: %v", id, err)
	}
	return o
}

func (h *harness) levels(side orderbook.Side) []orderbook.Level {
	bids, asks := h.engine.TopOfBook(instrument, 0)
	if side == orderbook.BUY {
		return bids
	}
	return asks
}

func checkOrderInvariants(t *testing.T, o *model.Order) {
	t.Helper()
	if o.FilledQuantity.IsNegative() || o.FilledQuantity.GreaterThan(o.Quantity) {
		t.Fatalf("%s: filled %s out of [0, %s]", o.ID, o.FilledQuantity, o.Quantity)
	}
	if o.FilledQuantity.Equal(o.Quantity) != (o.Status == model.OrderStatusFilled) {
		t.Fatalf("%s: status %s with filled %s of %s", o.ID, o.Status, o.FilledQuantity, o.Quantity)
	}
	if o.Status == model.OrderStatusPartiallyFilled && !o.FilledQuantity.IsPositive() {
		t.Fatalf("%s: partially filled without a fill", o.ID)
	}
}
