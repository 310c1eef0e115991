package matching

import (
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/shopspring/decimal"
)

type fill struct {
	maker orderbook.Entry
	qty   decimal.Decimal
}

// plan is a read-only match of a taker against a book.
type plan struct {
	fills  []fill
	filled decimal.Decimal
	// reject is set when the taker must be rejected with no trades.
	reject string
}

// planMatch walks the opposite side in priority order and takes the smaller of
// the outstanding request and each entry's visible quantity. An iceberg whose
// slice is exhausted rejoins its level at the back. Every fill is priced at the
// resting entry. The book is not modified, and one maker may appear in several
// fills.
func planMatch(book *orderbook.Book, taker *model.Order) plan {
	side := toSide(taker.Side)
	want := taker.Remaining()
	limit := taker.IsLimit()
	price := taker.Price.Decimal

	crosses := func(e orderbook.Entry) bool {
		if !limit {
			return true
		}
		if taker.Side == model.OrderSideBuy {
			return e.Price.LessThanOrEqual(price)
		}
		return e.Price.GreaterThanOrEqual(price)
	}

	if taker.TimeInForce == model.OrderTimeInForceFOK {
		avail := decimal.Zero
		for e := range book.BestOpposite(side) {
			if avail.GreaterThanOrEqual(want) || !crosses(e) {
				break
			}
			avail = avail.Add(e.Remaining)
		}
		if avail.LessThan(want) {
			return plan{reject: reasonFillOrKill}
		}
	}

	var p plan
	// requeued holds replenished iceberg slices of the level being walked.
	// They rank behind every entry of that level and ahead of worse prices.
	var requeued []orderbook.Entry
	take := func(e orderbook.Entry) {
		q := decimal.Min(want.Sub(p.filled), e.Visible())
		p.fills = append(p.fills, fill{maker: e, qty: q})
		p.filled = p.filled.Add(q)
		if e.Replenishes(q) {
			e.Remaining = e.Remaining.Sub(q)
			requeued = append(requeued, e)
		}
	}
	drain := func() {
		for len(requeued) > 0 && p.filled.LessThan(want) {
			e := requeued[0]
			requeued = requeued[1:]
			take(e)
		}
		requeued = requeued[:0]
	}
	for e := range book.BestOpposite(side) {
		if len(requeued) > 0 && !e.Price.Equal(requeued[0].Price) {
			drain()
		}
		if !p.filled.LessThan(want) || !crosses(e) {
			break
		}
		take(e)
	}
	drain()
	if len(p.fills) == 0 && !limit {
		p.reject = reasonNoLiquidity
	}
	return p
}
