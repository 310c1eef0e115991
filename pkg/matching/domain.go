package matching

import (
	"sync"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// instrumentDomain is everything the engine keeps for one instrument. All
// fields are guarded by mu, which is held across planning, persistence and
// book update.
type instrumentDomain struct {
	mu         sync.Mutex
	instrument string
	book       *orderbook.Book
	// resting holds the current state of every order that has an entry in book.
	resting   map[string]*model.Order
	stops     *stopSet
	lastPrice decimal.NullDecimal
	lastStamp time.Time
}

func newDomain(instrument string) *instrumentDomain {
	return &instrumentDomain{
		instrument: instrument,
		book:       orderbook.New(instrument),
		resting:    make(map[string]*model.Order),
		stops:      &stopSet{},
	}
}

// stamp returns a microsecond admission time that never goes backwards.
func (d *instrumentDomain) stamp(now time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if ts.Before(d.lastStamp) {
		ts = d.lastStamp
	}
	d.lastStamp = ts
	return ts
}

// rest places o in the book, or in the stop set while it is an armed stop.
func (d *instrumentDomain) rest(o *model.Order) bool {
	if o.IsArmedStop() {
		d.stops.add(o)
		return true
	}
	if !d.book.Admit(entryFor(o), toSide(o.Side)) {
		return false
	}
	d.resting[o.ID] = o
	return true
}

func (d *instrumentDomain) lookup(orderID string) *model.Order {
	if o, ok := d.resting[orderID]; ok {
		return o
	}
	return d.stops.get(orderID)
}

// forget drops every in-memory trace of orderID. It reports whether the book changed.
func (d *instrumentDomain) forget(orderID string) bool {
	delete(d.resting, orderID)
	d.stops.remove(orderID)
	if _, side, ok := d.book.Get(orderID); ok {
		return d.book.Remove(orderID, side)
	}
	return false
}

func toSide(s model.OrderSide) orderbook.Side {
	if s == model.OrderSideBuy {
		return orderbook.BUY
	}
	return orderbook.SELL
}

func entryFor(o *model.Order) orderbook.Entry {
	e := orderbook.Entry{
		OrderID:   o.ID,
		AccountID: o.AccountID,
		Price:     o.Price.Decimal,
		Quantity:  o.Quantity,
		Remaining: o.Remaining(),
	}
	e.Timestamp, e.Sequence = o.Priority()
	if o.Type == model.OrderTypeIceberg && o.DisplayQuantity.Valid {
		e.Display = o.DisplayQuantity.Decimal
	}
	return e
}
