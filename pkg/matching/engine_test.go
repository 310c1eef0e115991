package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/shopspring/decimal"
)

func TestMarketBuyWalksLevels(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "60", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "50", "101", model.OrderTimeInForceGTC))

	res := h.submit(market("B1", model.OrderSideBuy, "100"))
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	if !res.Trades[0].Quantity.Equal(d("60")) || !res.Trades[0].Price.Equal(d("100")) {
		t.Fatalf("unexpected first trade %s@%s", res.Trades[0].Quantity, res.Trades[0].Price)
	}
	if !res.Trades[1].Quantity.Equal(d("40")) || !res.Trades[1].Price.Equal(d("101")) {
		t.Fatalf("unexpected second trade %s@%s", res.Trades[1].Quantity, res.Trades[1].Price)
	}
	if res.Order.Status != model.OrderStatusFilled {
		t.Fatalf("expected FILLED, got %s", res.Order.Status)
	}
	if !res.Order.AveragePrice.Decimal.Equal(d("100.4")) {
		t.Fatalf("expected average 100.4, got %s", res.Order.AveragePrice.Decimal)
	}
	asks := h.levels(orderbook.SELL)
	if len(asks) != 1 || !asks[0].Price.Equal(d("101")) || !asks[0].Quantity.Equal(d("10")) {
		t.Fatalf("expected ask book (101, 10), got %+v", asks)
	}
	if s1 := h.stored("S1"); s1.Status != model.OrderStatusFilled || s1.Resting {
		t.Fatalf("S1 should be filled and gone, got %s resting=%v", s1.Status, s1.Resting)
	}
	if s2 := h.stored("S2"); s2.Status != model.OrderStatusPartiallyFilled || !s2.Remaining().Equal(d("10")) {
		t.Fatalf("S2 should have 10 left, got %s %s", s2.Status, s2.Remaining())
	}
	if len(res.Counterparties) != 2 || res.Counterparties[0].ID != "S1" {
		t.Fatalf("unexpected counterparties %+v", res.Counterparties)
	}
}

func TestLimitSellRestsOnEmptyBook(t *testing.T) {
	h := newHarness(t)
	res := h.submit(limit("S1", model.OrderSideSell, "50", "99", model.OrderTimeInForceGTC))
	if len(res.Trades) != 0 || res.Order.Status != model.OrderStatusPending {
		t.Fatalf("expected resting PENDING order, got %s with %d trades", res.Order.Status, len(res.Trades))
	}
	asks := h.levels(orderbook.SELL)
	if len(asks) != 1 || !asks[0].Price.Equal(d("99")) || !asks[0].Quantity.Equal(d("50")) {
		t.Fatalf("expected ask (99, 50), got %+v", asks)
	}
	if !h.stored("S1").Resting {
		t.Fatalf("stored order must be flagged resting")
	}
	if u := h.pub.last(); len(u.Asks) != 1 || len(u.Trades) != 0 {
		t.Fatalf("expected book snapshot with the new ask, got %+v", u)
	}
}

func TestCancelledBuyNeverMatches(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("B1", model.OrderSideBuy, "20", "50", model.OrderTimeInForceGTC))

	cr, err := h.engine.Cancel(context.Background(), CancelRequest{OrderID: "B1", InstrumentID: instrument})
	if err != nil || !cr.Accepted {
		t.Fatalf("cancel failed: %v %+v", err, cr)
	}
	if cr.Order.Status != model.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cr.Order.Status)
	}
	if len(h.levels(orderbook.BUY)) != 0 {
		t.Fatalf("bid book must be empty")
	}
	res := h.submit(limit("S1", model.OrderSideSell, "20", "50", model.OrderTimeInForceGTC))
	if len(res.Trades) != 0 {
		t.Fatalf("cancelled order must not trade")
	}
	if h.stored("B1").Status != model.OrderStatusCancelled {
		t.Fatalf("store must hold CANCELLED")
	}
}

func TestFillOrKillRejectsWithoutChange(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "40", "9", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "20", "10", model.OrderTimeInForceGTC))
	h.submit(limit("S3", model.OrderSideSell, "500", "11", model.OrderTimeInForceGTC))
	before := h.levels(orderbook.SELL)

	res := h.submit(limit("B1", model.OrderSideBuy, "100", "10", model.OrderTimeInForceFOK))
	if res.Order.Status != model.OrderStatusRejected || len(res.Trades) != 0 {
		t.Fatalf("expected REJECTED with no trades, got %s %d", res.Order.Status, len(res.Trades))
	}
	if res.Order.RejectReason != reasonFillOrKill {
		t.Fatalf("unexpected reason %q", res.Order.RejectReason)
	}
	after := h.levels(orderbook.SELL)
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Fatalf("book changed: %v -> %v", before, after)
	}
	if len(h.store.Trades()) != 0 {
		t.Fatalf("no trade may be stored")
	}
}

func TestFillOrKillFillsWhenSatisfiable(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "40", "9", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "70", "10", model.OrderTimeInForceGTC))

	res := h.submit(limit("B1", model.OrderSideBuy, "100", "10", model.OrderTimeInForceFOK))
	if res.Order.Status != model.OrderStatusFilled || len(res.Trades) != 2 {
		t.Fatalf("expected FILLED over 2 trades, got %s %d", res.Order.Status, len(res.Trades))
	}
}

func TestMarketOnEmptyBookRejected(t *testing.T) {
	h := newHarness(t)
	res := h.submit(market("B1", model.OrderSideBuy, "10"))
	if res.Order.Status != model.OrderStatusRejected || res.Order.RejectReason != reasonNoLiquidity {
		t.Fatalf("expected no-liquidity rejection, got %s %q", res.Order.Status, res.Order.RejectReason)
	}
	if res.Order.Resting || h.stored("B1").Resting {
		t.Fatalf("market order must never rest")
	}
}

func TestMarketRemainderDoesNotRest(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	res := h.submit(market("B1", model.OrderSideBuy, "8"))
	if res.Order.Status != model.OrderStatusPartiallyFilled || res.Order.Resting {
		t.Fatalf("expected non-resting PARTIALLY_FILLED, got %s resting=%v", res.Order.Status, res.Order.Resting)
	}
	if len(h.levels(orderbook.BUY)) != 0 || len(h.levels(orderbook.SELL)) != 0 {
		t.Fatalf("book must be empty")
	}
}

func TestImmediateOrCancel(t *testing.T) {
	h := newHarness(t)
	res := h.submit(limit("B0", model.OrderSideBuy, "10", "100", model.OrderTimeInForceIOC))
	if res.Order.Status != model.OrderStatusCancelled {
		t.Fatalf("IOC without a match must be CANCELLED, got %s", res.Order.Status)
	}

	h.submit(limit("S1", model.OrderSideSell, "4", "100", model.OrderTimeInForceGTC))
	res = h.submit(limit("B1", model.OrderSideBuy, "10", "100", model.OrderTimeInForceIOC))
	if res.Order.Status != model.OrderStatusPartiallyFilled || !res.Order.FilledQuantity.Equal(d("4")) {
		t.Fatalf("expected IOC partial fill of 4, got %s %s", res.Order.Status, res.Order.FilledQuantity)
	}
	if len(h.levels(orderbook.BUY)) != 0 {
		t.Fatalf("IOC remainder must not rest")
	}
}

func TestLimitRemainderRestsAtOwnPrice(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "99", model.OrderTimeInForceGTC))
	res := h.submit(limit("B1", model.OrderSideBuy, "12", "101", model.OrderTimeInForceDAY))
	if len(res.Trades) != 1 || !res.Trades[0].Price.Equal(d("99")) {
		t.Fatalf("expected one trade at the resting price 99, got %+v", res.Trades)
	}
	if res.Order.Status != model.OrderStatusPartiallyFilled || !res.Order.Resting {
		t.Fatalf("expected resting PARTIALLY_FILLED, got %s", res.Order.Status)
	}
	bids := h.levels(orderbook.BUY)
	if len(bids) != 1 || !bids[0].Price.Equal(d("101")) || !bids[0].Quantity.Equal(d("7")) {
		t.Fatalf("expected bid (101, 7), got %+v", bids)
	}
}

func TestPricePriorityAndFIFO(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "101", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S3", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))

	res := h.submit(limit("B1", model.OrderSideBuy, "12", "101", model.OrderTimeInForceGTC))
	var got []string
	for _, tr := range res.Trades {
		got = append(got, tr.SellOrderID+"@"+tr.Price.String())
	}
	if want := "[S2@100 S3@100 S1@101]"; fmt.Sprint(got) != want {
		t.Fatalf("expected %s, got %v", want, got)
	}
}

func TestPriceBound(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "5", "102", model.OrderTimeInForceGTC))
	res := h.submit(limit("B1", model.OrderSideBuy, "10", "101", model.OrderTimeInForceGTC))
	for _, tr := range res.Trades {
		if tr.Price.GreaterThan(d("101")) {
			t.Fatalf("buy limit 101 traded at %s", tr.Price)
		}
	}
	h.submit(limit("B2", model.OrderSideBuy, "5", "98", model.OrderTimeInForceGTC))
	res = h.submit(limit("S3", model.OrderSideSell, "20", "99", model.OrderTimeInForceGTC))
	for _, tr := range res.Trades {
		if tr.Price.LessThan(d("99")) {
			t.Fatalf("sell limit 99 traded at %s", tr.Price)
		}
	}
}

func TestConservationAndInvariants(t *testing.T) {
	h := newHarness(t)
	sides := []model.OrderSide{model.OrderSideBuy, model.OrderSideSell}
	var ids []string
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("O%d", i)
		ids = append(ids, id)
		side := sides[i%2]
		if i%7 == 0 {
			h.submit(market(id, side, fmt.Sprintf("%d", 1+i%9)))
			continue
		}
		h.submit(limit(id, side, fmt.Sprintf("%d", 1+i%13), fmt.Sprintf("%d", 95+(i*7)%11), model.OrderTimeInForceGTC))
	}

	filled := map[string]decimal.Decimal{}
	buyTotal, sellTotal := decimal.Zero, decimal.Zero
	for _, tr := range h.store.Trades() {
		filled[tr.BuyOrderID] = filled[tr.BuyOrderID].Add(tr.Quantity)
		filled[tr.SellOrderID] = filled[tr.SellOrderID].Add(tr.Quantity)
		buyTotal = buyTotal.Add(tr.Quantity)
		sellTotal = sellTotal.Add(tr.Quantity)
		if !tr.Value.Equal(tr.Quantity.Mul(tr.Price)) {
			t.Fatalf("trade %s value mismatch", tr.ID)
		}
	}
	if !buyTotal.Equal(sellTotal) {
		t.Fatalf("buy side %s != sell side %s", buyTotal, sellTotal)
	}
	for _, id := range ids {
		o := h.stored(id)
		checkOrderInvariants(t, o)
		if !o.FilledQuantity.Equal(filled[id]) {
			t.Fatalf("%s: filled %s but trades sum to %s", id, o.FilledQuantity, filled[id])
		}
	}
}

func TestPersistenceFailureLeavesBookUntouched(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "10", "100", model.OrderTimeInForceGTC))
	before := h.levels(orderbook.SELL)
	published := h.pub.count()

	h.store.fail.Store(true)
	_, err := h.engine.Submit(context.Background(), limit("B1", model.OrderSideBuy, "4", "100", model.OrderTimeInForceGTC))
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errStoreDown) {
		t.Fatalf("expected wrapped persistence error, got %v", err)
	}
	h.validate()
	if fmt.Sprint(before) != fmt.Sprint(h.levels(orderbook.SELL)) {
		t.Fatalf("book changed after failed commit")
	}
	if h.pub.count() != published {
		t.Fatalf("nothing may be published after a failed commit")
	}
	if h.stored("S1").Version != 1 {
		t.Fatalf("maker must be untouched in store")
	}

	_, err = h.engine.Cancel(context.Background(), CancelRequest{OrderID: "S1", InstrumentID: instrument})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error on cancel, got %v", err)
	}
	if len(h.levels(orderbook.SELL)) != 1 {
		t.Fatalf("failed cancel must leave the entry in the book")
	}

	h.store.fail.Store(false)
	res := h.submit(limit("B2", model.OrderSideBuy, "4", "100", model.OrderTimeInForceGTC))
	if len(res.Trades) != 1 {
		t.Fatalf("book must stay usable after a failure")
	}
}

func TestStaleMakerIsPurgedAndReplanned(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "10", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "10", "100.5", model.OrderTimeInForceGTC))

	// S1 is cancelled behind the engine's back
	s1 := h.stored("S1")
	s1.Status = model.OrderStatusCancelled
	s1.Resting = false
	s1.Version++
	h.store.Put(s1)

	res := h.submit(limit("B1", model.OrderSideBuy, "10", "101", model.OrderTimeInForceGTC))
	if len(res.Trades) != 1 || res.Trades[0].SellOrderID != "S2" {
		t.Fatalf("expected a single trade against S2, got %+v", res.Trades)
	}
	if _, _, ok := h.domainBook().Get("S1"); ok {
		t.Fatalf("stale S1 must be purged from the book")
	}
	if h.stored("S1").Status != model.OrderStatusCancelled {
		t.Fatalf("store state of S1 must be preserved")
	}
}

func (h *harness) domainBook() *orderbook.Book {
	v, _ := h.engine.books.Load(instrument)
	return v.(*instrumentDomain).book
}

func TestCancelTerminalIsBenign(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	h.submit(limit("B1", model.OrderSideBuy, "5", "100", model.OrderTimeInForceGTC))

	cr, err := h.engine.Cancel(context.Background(), CancelRequest{OrderID: "S1"})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if cr.Accepted || cr.Order.Status != model.OrderStatusFilled || cr.Reason == "" {
		t.Fatalf("expected benign rejection of a filled order, got %+v", cr)
	}

	if _, err := h.engine.Cancel(context.Background(), CancelRequest{OrderID: "nope"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := h.engine.Cancel(context.Background(), CancelRequest{OrderID: "S1", InstrumentID: "OTHER"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for the wrong instrument, got %v", err)
	}
}

func TestCancelPartiallyFilled(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("B1", model.OrderSideBuy, "10", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S1", model.OrderSideSell, "3", "100", model.OrderTimeInForceGTC))

	cr, err := h.engine.Cancel(context.Background(), CancelRequest{OrderID: "B1"})
	if err != nil || !cr.Accepted {
		t.Fatalf("cancel failed: %v", err)
	}
	if cr.Order.Status != model.OrderStatusCancelled || !cr.Order.FilledQuantity.Equal(d("3")) {
		t.Fatalf("expected CANCELLED keeping the fill of 3, got %s %s", cr.Order.Status, cr.Order.FilledQuantity)
	}
	h.validate()
}

func TestExpire(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("B1", model.OrderSideBuy, "10", "100", model.OrderTimeInForceDAY))
	cr, err := h.engine.Expire(context.Background(), "B1")
	if err != nil || !cr.Accepted || cr.Order.Status != model.OrderStatusExpired {
		t.Fatalf("expire failed: %v %+v", err, cr)
	}
	if len(h.levels(orderbook.BUY)) != 0 {
		t.Fatalf("expired order must leave the book")
	}
}

func iceberg(id string, side model.OrderSide, qty, display, price string) *model.Order {
	o := newOrder(id, "acc-"+id, side, model.OrderTypeIceberg, model.OrderTimeInForceGTC, qty)
	o.Price = decimal.NewNullDecimal(d(price))
	o.DisplayQuantity = decimal.NewNullDecimal(d(display))
	return o
}

func tradeLegs(trades []*model.Trade) []string {
	var legs []string
	for _, tr := range trades {
		legs = append(legs, tr.SellOrderID+":"+tr.Quantity.String())
	}
	return legs
}

func TestIcebergReplenishmentLosesPriority(t *testing.T) {
	h := newHarness(t)
	h.submit(iceberg("S1", model.OrderSideSell, "30", "10", "100"))
	h.submit(limit("S2", model.OrderSideSell, "20", "100", model.OrderTimeInForceGTC))

	if asks := h.levels(orderbook.SELL); len(asks) != 1 || !asks[0].Quantity.Equal(d("30")) {
		t.Fatalf("expected 10 shown by the iceberg plus 20, got %+v", asks)
	}
	// the first slice keeps S1's priority, the hidden rest queues behind S2
	res := h.submit(limit("B1", model.OrderSideBuy, "35", "100", model.OrderTimeInForceGTC))
	if got := fmt.Sprint(tradeLegs(res.Trades)); got != "[S1:10 S2:20 S1:5]" {
		t.Fatalf("expected S1:10 S2:20 S1:5, got %s", got)
	}
	if res.Order.Status != model.OrderStatusFilled {
		t.Fatalf("expected B1 filled, got %s", res.Order.Status)
	}

	ice := h.stored("S1")
	if ice.QueuedAt == nil || ice.QueueSequence <= ice.Sequence || !ice.FilledQuantity.Equal(d("15")) {
		t.Fatalf("expected a requeued iceberg with 15 filled, got %+v", ice)
	}
	if asks := h.levels(orderbook.SELL); len(asks) != 1 || !asks[0].Quantity.Equal(d("5")) {
		t.Fatalf("expected 5 left in the current slice, got %+v", asks)
	}

	// a later order at the same price still ranks behind the replenished slice
	h.submit(limit("S3", model.OrderSideSell, "10", "100", model.OrderTimeInForceGTC))
	res = h.submit(limit("B2", model.OrderSideBuy, "8", "100", model.OrderTimeInForceGTC))
	if got := fmt.Sprint(tradeLegs(res.Trades)); got != "[S1:5 S3:3]" {
		t.Fatalf("expected S1:5 S3:3, got %s", got)
	}

	// recovery restores the replenished priority
	if _, err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	h.validate()
	res = h.submit(limit("B3", model.OrderSideBuy, "20", "100", model.OrderTimeInForceGTC))
	if got := fmt.Sprint(tradeLegs(res.Trades)); got != "[S3:7 S1:10]" {
		t.Fatalf("expected S3:7 S1:10 after recovery, got %s", got)
	}
	if s1 := h.stored("S1"); !s1.FilledQuantity.Equal(d("30")) || s1.Status != model.OrderStatusFilled {
		t.Fatalf("expected S1 filled, got %s %s", s1.Status, s1.FilledQuantity)
	}
}

func TestStopLossTriggers(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var reported []model.Order
	h.engine.RegisterOrderCallback(func(orders []model.Order) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, orders...)
	})

	h.submit(limit("B1", model.OrderSideBuy, "10", "99", model.OrderTimeInForceGTC))
	h.submit(limit("B2", model.OrderSideBuy, "10", "97", model.OrderTimeInForceGTC))
	res := h.submit(stop("SL", model.OrderSideSell, "10", "98"))
	if res.Order.Status != model.OrderStatusPending || !res.Order.Resting || len(res.Trades) != 0 {
		t.Fatalf("stop must arm, got %s", res.Order.Status)
	}
	if len(h.levels(orderbook.SELL)) != 0 {
		t.Fatalf("armed stop must not be visible in the book")
	}

	// trade at 99 does not reach a sell stop at 98
	h.submit(limit("S1", model.OrderSideSell, "5", "99", model.OrderTimeInForceGTC))
	if h.stored("SL").Status != model.OrderStatusPending {
		t.Fatalf("stop triggered too early")
	}
	// trade at 97 triggers it; it sells into the remaining bids
	h.submit(market("S2", model.OrderSideSell, "8"))
	sl := h.stored("SL")
	if !sl.Triggered || sl.Resting {
		t.Fatalf("stop should have triggered and left memory, got %+v", sl)
	}
	if sl.Status != model.OrderStatusPartiallyFilled || !sl.FilledQuantity.Equal(d("7")) {
		t.Fatalf("expected stop to fill the last 7 of B2, got %s %s", sl.Status, sl.FilledQuantity)
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, o := range reported {
		if o.ID == "SL" && o.Triggered {
			found = true
		}
	}
	if !found {
		t.Fatalf("triggered stop must be reported through the callback")
	}
}

func TestStopSubmittedPastTriggerExecutesImmediately(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("S1", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	h.submit(limit("S2", model.OrderSideSell, "5", "101", model.OrderTimeInForceGTC))
	h.submit(limit("B1", model.OrderSideBuy, "5", "100", model.OrderTimeInForceGTC))

	sl := stop("SL", model.OrderSideBuy, "5", "99")
	sl.Price = decimal.NewNullDecimal(d("101"))
	res := h.submit(sl)
	if res.Order.Status != model.OrderStatusFilled || !res.Order.Triggered {
		t.Fatalf("expected immediate stop-limit execution, got %s", res.Order.Status)
	}
}

func TestStopStaysArmedWhenTriggeredExecutionFails(t *testing.T) {
	h := newHarness(t)
	h.submit(limit("B1", model.OrderSideBuy, "10", "99", model.OrderTimeInForceGTC))
	h.submit(stop("SL", model.OrderSideSell, "5", "99"))
	h.submit(limit("B2", model.OrderSideBuy, "10", "98", model.OrderTimeInForceGTC))

	h.store.fail.Store(true)
	dom := h.domainOf()
	dom.mu.Lock()
	dom.lastPrice = decimal.NewNullDecimal(d("99"))
	h.engine.triggerStops(context.Background(), dom)
	armed := dom.stops.get("SL") != nil
	dom.mu.Unlock()
	if !armed {
		t.Fatalf("stop must stay armed after a failed triggered execution")
	}
}

func (h *harness) domainOf() *instrumentDomain {
	v, _ := h.engine.books.Load(instrument)
	return v.(*instrumentDomain)
}

func TestInvalidOrderHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	bad := limit("B1", model.OrderSideBuy, "0", "100", model.OrderTimeInForceGTC)
	if _, err := h.engine.Submit(context.Background(), bad); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	if _, err := h.store.Get(context.Background(), "B1"); err == nil {
		t.Fatalf("invalid order must not be stored")
	}
}

func TestCallbacksReceiveEveryChangedOrder(t *testing.T) {
	h := newHarness(t)
	var calls [][]string
	h.engine.RegisterOrderCallback(func(orders []model.Order) {
		var ids []string
		for _, o := range orders {
			ids = append(ids, o.ID+":"+string(o.Status))
		}
		calls = append(calls, ids)
	})
	h.submit(limit("S1", model.OrderSideSell, "5", "100", model.OrderTimeInForceGTC))
	h.submit(limit("B1", model.OrderSideBuy, "5", "100", model.OrderTimeInForceGTC))
	want := "[[S1:PENDING] [B1:FILLED S1:FILLED]]"
	if fmt.Sprint(calls) != want {
		t.Fatalf("expected %s, got %v", want, calls)
	}
}

func TestInstrumentsAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const n = 200
	instruments := []string{"BOND-A", "BOND-B", "BOND-C", "BOND-D"}

	var wg sync.WaitGroup
	for _, inst := range instruments {
		for _, side := range []model.OrderSide{model.OrderSideBuy, model.OrderSideSell} {
			wg.Add(1)
			go func(inst string, side model.OrderSide) {
				defer wg.Done()
				for i := 0; i < n; i++ {
					o := limit(fmt.Sprintf("%s-%s-%d", inst, side, i), side, "1", "100", model.OrderTimeInForceGTC)
					o.InstrumentID = inst
					if _, err := h.engine.Submit(ctx, o); err != nil {
						t.Errorf("submit: %v", err)
						return
					}
				}
			}(inst, side)
		}
	}
	wg.Wait()

	perInstrument := map[string]decimal.Decimal{}
	for _, tr := range h.store.Trades() {
		perInstrument[tr.InstrumentID] = perInstrument[tr.InstrumentID].Add(tr.Quantity)
	}
	for _, inst := range instruments {
		bids, asks := h.engine.TopOfBook(inst, 0)
		if len(bids) != 0 && len(asks) != 0 {
			t.Fatalf("%s: crossed book left after matching: %v / %v", inst, bids, asks)
		}
		if !perInstrument[inst].Equal(decimal.NewFromInt(n)) {
			t.Fatalf("%s: expected %d traded, got %s", inst, n, perInstrument[inst])
		}
	}
}

func TestSubmitAndCancelOnOneBook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const (
		workers = 8
		perWork = 300
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []string
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			var mine []string
			for i := 0; i < perWork; i++ {
				side := model.OrderSideBuy
				if rng.Intn(2) == 0 {
					side = model.OrderSideSell
				}
				id := fmt.Sprintf("w%d-%d", w, i)
				qty := fmt.Sprint(1 + rng.Intn(20))
				var o *model.Order
				switch r := rng.Intn(10); {
				case r == 0:
					o = market(id, side, qty)
				case r == 1:
					o = iceberg(id, side, "30", "7", fmt.Sprint(98+rng.Intn(5)))
				default:
					o = limit(id, side, qty, fmt.Sprint(98+rng.Intn(5)), model.OrderTimeInForceGTC)
				}
				if _, err := h.engine.Submit(ctx, o); err != nil {
					t.Errorf("submit %s: %v", id, err)
					return
				}
				mine = append(mine, id)
				if rng.Intn(4) == 0 {
					target := mine[rng.Intn(len(mine))]
					if _, err := h.engine.Cancel(ctx, CancelRequest{OrderID: target, InstrumentID: instrument}); err != nil {
						t.Errorf("cancel %s: %v", target, err)
						return
					}
				}
			}
			mu.Lock()
			ids = append(ids, mine...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	h.validate()
	resting, err := h.store.ListResting(ctx)
	if err != nil {
		t.Fatalf("list resting: %v", err)
	}
	v, _ := h.engine.books.Load(instrument)
	dom := v.(*instrumentDomain)
	dom.mu.Lock()
	if n := dom.book.Len(orderbook.BUY) + dom.book.Len(orderbook.SELL); n != len(resting) {
		dom.mu.Unlock()
		t.Fatalf("book holds %d entries, store %d resting orders", n, len(resting))
	}
	for _, o := range resting {
		e, _, ok := dom.book.Get(o.ID)
		if !ok || !e.Remaining.Equal(o.Remaining()) {
			dom.mu.Unlock()
			t.Fatalf("stored resting order %s does not match the book", o.ID)
		}
	}
	dom.mu.Unlock()

	bids, asks := h.engine.TopOfBook(instrument, 1)
	if len(bids) == 1 && len(asks) == 1 && !bids[0].Price.LessThan(asks[0].Price) {
		t.Fatalf("crossed book: bid %s ask %s", bids[0].Price, asks[0].Price)
	}
	for _, id := range ids {
		checkOrderInvariants(t, h.stored(id))
	}

	filled := map[string]decimal.Decimal{}
	for _, tr := range h.store.Trades() {
		filled[tr.BuyOrderID] = filled[tr.BuyOrderID].Add(tr.Quantity)
		filled[tr.SellOrderID] = filled[tr.SellOrderID].Add(tr.Quantity)
	}
	for _, id := range ids {
		if o := h.stored(id); !o.FilledQuantity.Equal(filled[id]) {
			t.Fatalf("%s: filled %s but traded %s", id, o.FilledQuantity, filled[id])
		}
	}
}
