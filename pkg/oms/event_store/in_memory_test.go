package eventstore

import (
	"testing"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/shopspring/decimal"
)

func event(orderID string, version int64, status model.OrderStatus, filled string, at time.Time) *model.OrderEvent {
	return &model.OrderEvent{
		EventID:        model.NewEventID(orderID, version),
		OrderID:        orderID,
		ClOrdID:        "cl-" + orderID,
		Status:         status,
		FilledQuantity: decimal.RequireFromString(filled),
		Version:        version,
		Timestamp:      at,
	}
}

func TestAddEventDeduplicates(t *testing.T) {
	s := NewInMemoryEventStore()
	now := time.Now()
	if !s.AddEvent(event("o1", 1, model.OrderStatusPending, "0", now)) {
		t.Fatalf("first event rejected")
	}
	if s.AddEvent(event("o1", 1, model.OrderStatusPending, "0", now)) {
		t.Fatalf("duplicate event accepted")
	}
	s.AddEvent(event("o1", 2, model.OrderStatusPartiallyFilled, "4", now))
	if got := len(s.Events("o1")); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if last := s.Last("o1"); last == nil || !last.FilledQuantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("unexpected last event %+v", last)
	}
	if s.Last("unknown") != nil {
		t.Fatalf("unknown order has no last event")
	}
	if s.GetLatestClOrdID("o1") != "cl-o1" {
		t.Fatalf("latest ClOrdID not tracked")
	}
}

func TestReserveClientOrder(t *testing.T) {
	s := NewInMemoryEventStore()
	if _, ok := s.ReserveClientOrder("acc", "c1", "o1"); !ok {
		t.Fatalf("first reservation failed")
	}
	if existing, ok := s.ReserveClientOrder("acc", "c1", "o2"); ok || existing != "o1" {
		t.Fatalf("expected o1 to own c1, got %q %v", existing, ok)
	}
	if _, ok := s.ReserveClientOrder("other", "c1", "o3"); !ok {
		t.Fatalf("client ids are scoped per account")
	}
	s.ReleaseClientOrder("acc", "c1")
	if s.GetOrderID("acc", "c1") != "" {
		t.Fatalf("release did not drop the binding")
	}
}

func TestClOrdChain(t *testing.T) {
	s := NewInMemoryEventStore()
	s.ReserveClientOrder("acc", "c1", "o1")
	s.TrackClOrdChain("o1", "acc", "c2", "c1")
	s.TrackClOrdChain("o1", "acc", "c3", "c2")

	if s.GetOrderID("acc", "c3") != "o1" {
		t.Fatalf("cancel id must resolve to the order")
	}
	if s.GetLatestClOrdID("o1") != "c3" || s.GetOrigClOrdID("acc", "c3") != "c2" {
		t.Fatalf("chain head wrong")
	}
	chain := s.ReconstructChain("acc", "c3")
	if len(chain) != 3 || chain[2] != "c1" {
		t.Fatalf("unexpected chain %v", chain)
	}
}

func TestPruneDropsOldTerminalOrders(t *testing.T) {
	s := NewInMemoryEventStore()
	old := time.Now().Add(-time.Hour)
	s.ReserveClientOrder("acc", "cl-done", "done")
	s.AddEvent(event("done", 1, model.OrderStatusFilled, "5", old))
	s.AddEvent(event("open", 1, model.OrderStatusPending, "0", old))
	s.AddEvent(event("fresh", 1, model.OrderStatusCancelled, "0", time.Now()))

	if n := s.Prune(time.Now().Add(-time.Minute)); n != 1 {
		t.Fatalf("expected 1 pruned order, got %d", n)
	}
	if len(s.Events("done")) != 0 || s.GetOrderID("acc", "cl-done") != "" {
		t.Fatalf("pruned order still indexed")
	}
	if len(s.Events("open")) != 1 || len(s.Events("fresh")) != 1 {
		t.Fatalf("open or recent orders must survive")
	}
}
