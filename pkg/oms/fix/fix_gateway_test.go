package fixgateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// fakeOMS reports a PENDING event synchronously, the way the engine callback does.
type fakeOMS struct {
	gw     *FixGateway
	addErr error
	cancel *matching.CancelResult
}

func (f *fakeOMS) AddOrder(ctx context.Context, add *model.AddOrder) (*matching.Result, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	o := model.Order{
		ID: "o-1", ClientOrderID: add.GatewayID, AccountID: add.Account, InstrumentID: add.Symbol,
		Side: add.Side, Type: add.Type, TimeInForce: add.TimeInForce, Quantity: add.Quantity,
		Price: add.Price, Status: model.OrderStatusPending, Version: 1,
	}
	f.gw.OnOrderReport(ctx, o, model.NewOrderEvent(o, nil, time.Now()))
	return &matching.Result{Order: &o}, nil
}

func (f *fakeOMS) CancelOrder(ctx context.Context, c *model.CancelOrder) (*matching.CancelResult, error) {
	if f.cancel == nil {
		return nil, fmt.Errorf("%w: %s", oms.ErrOrderIDNotFound, c.OrigGatewayID)
	}
	return f.cancel, nil
}

func (f *fakeOMS) ExpireOrder(context.Context, string) (*matching.CancelResult, error) {
	return nil, nil
}

type sent struct {
	mu   sync.Mutex
	msgs []outbound
}

func (s *sent) send(msg quickfix.Messagable, sessionID quickfix.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, outbound{msg: msg, sessionID: sessionID})
	return nil
}

func newTestGateway() (*FixGateway, *fakeOMS, *sent) {
	gw := NewFixGateway(&FixGatewayConfig{}, logging.NewNopLogger())
	out := &sent{}
	gw.out = newOutbox(out.send, logging.NewNopLogger())
	f := &fakeOMS{gw: gw}
	gw.AddOmsInstance(f)
	gw.app = newApplication(gw, 0, 0)
	return gw, f, out
}

func limitRequest(clOrdID string) *NewOrderSingle {
	return &NewOrderSingle{
		SessionID:   session44,
		ClOrdID:     clOrdID,
		Symbol:      "INE002A08427",
		Side:        enum.Side_BUY,
		OrdType:     enum.OrdType_LIMIT,
		TimeInForce: enum.TimeInForce_DAY,
		OrderQty:    dec("10"),
		Price:       decimal.NewNullDecimal(dec("100")),
	}
}

func TestAddOrderReportsToSubmittingSession(t *testing.T) {
	gw, _, out := newTestGateway()
	gw.app.process(limitRequest("c1"))
	gw.out.drain()

	if len(out.msgs) != 1 {
		t.Fatalf("expected one report, got %d", len(out.msgs))
	}
	m := out.msgs[0]
	if m.sessionID != session44 {
		t.Fatalf("report went to %v", m.sessionID)
	}
	if got := bodyString(t, m.msg, tag.OrdStatus); got != string(enum.OrdStatus_NEW) {
		t.Fatalf("expected NEW, got %q", got)
	}
	// the account defaults to the sender comp id
	if got := bodyString(t, m.msg, tag.Account); got != "CLIENT" {
		t.Fatalf("expected account CLIENT, got %q", got)
	}
	if _, ok := gw.sessionMapping.Load(sessionKey("CLIENT", "c1")); !ok {
		t.Fatalf("live order lost its session mapping")
	}
}

func TestRejectedOrderSendsRejectReport(t *testing.T) {
	gw, f, out := newTestGateway()
	f.addErr = fmt.Errorf("%w: XYZ", oms.ErrUnknownInstrument)
	gw.app.process(limitRequest("c2"))
	gw.out.drain()

	if len(out.msgs) != 1 {
		t.Fatalf("expected one reject, got %d", len(out.msgs))
	}
	if got := bodyString(t, out.msgs[0].msg, tag.OrdRejReason); got != string(enum.OrdRejReason_UNKNOWN_SYMBOL) {
		t.Fatalf("expected UNKNOWN_SYMBOL, got %q", got)
	}
	if got := bodyString(t, out.msgs[0].msg, tag.ExecType); got != string(enum.ExecType_REJECTED) {
		t.Fatalf("expected REJECTED exec type, got %q", got)
	}
	if _, ok := gw.sessionMapping.Load(sessionKey("CLIENT", "c2")); ok {
		t.Fatalf("rejected order kept a session mapping")
	}
}

func TestUnsupportedOrdTypeNeverReachesOMS(t *testing.T) {
	gw, f, out := newTestGateway()
	f.addErr = fmt.Errorf("must not be called")
	req := limitRequest("c3")
	req.OrdType = enum.OrdType_PEGGED
	gw.AddOrder(context.Background(), req)
	gw.out.drain()
	if len(out.msgs) != 1 {
		t.Fatalf("expected one reject, got %d", len(out.msgs))
	}
	if got := bodyString(t, out.msgs[0].msg, tag.Text); got == "must not be called" {
		t.Fatalf("order reached the OMS")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	gw, _, out := newTestGateway()
	gw.app.process(&OrderCancelRequest{SessionID: session44, ClOrdID: "x-cxl", OrigClOrdID: "x", Symbol: "INE002A08427"})
	gw.out.drain()
	if len(out.msgs) != 1 {
		t.Fatalf("expected one cancel reject, got %d", len(out.msgs))
	}
	if got := bodyString(t, out.msgs[0].msg, tag.CxlRejReason); got != string(enum.CxlRejReason_UNKNOWN_ORDER) {
		t.Fatalf("expected UNKNOWN_ORDER, got %q", got)
	}
}

func TestCancelTooLate(t *testing.T) {
	gw, f, out := newTestGateway()
	f.cancel = &matching.CancelResult{
		Order:  &model.Order{ID: "o-1", Status: model.OrderStatusFilled},
		Reason: "order already FILLED",
	}
	gw.app.process(&OrderCancelRequest{SessionID: session42, ClOrdID: "c1-cxl", OrigClOrdID: "c1", Symbol: "INE002A08427"})
	gw.out.drain()
	if len(out.msgs) != 1 {
		t.Fatalf("expected one cancel reject, got %d", len(out.msgs))
	}
	m := out.msgs[0].msg
	if got := bodyString(t, m, tag.CxlRejReason); got != string(enum.CxlRejReason_TOO_LATE_TO_CANCEL) {
		t.Fatalf("expected TOO_LATE_TO_CANCEL, got %q", got)
	}
	if got := bodyString(t, m, tag.OrdStatus); got != string(enum.OrdStatus_FILLED) {
		t.Fatalf("expected FILLED status, got %q", got)
	}
}

func TestTerminalReportDropsMapping(t *testing.T) {
	gw, _, out := newTestGateway()
	gw.app.process(limitRequest("c4"))

	o := model.Order{
		ID: "o-1", ClientOrderID: "c4", AccountID: "CLIENT", InstrumentID: "INE002A08427",
		Side: model.OrderSideBuy, Type: model.OrderTypeLimit, TimeInForce: model.OrderTimeInForceDAY,
		Quantity: dec("10"), Price: decimal.NewNullDecimal(dec("100")), Status: model.OrderStatusCancelled, Version: 2,
	}
	gw.OnOrderReport(context.Background(), o, model.NewOrderEvent(o, nil, time.Now()))
	gw.out.drain()

	if len(out.msgs) != 2 {
		t.Fatalf("expected two reports, got %d", len(out.msgs))
	}
	if got := bodyString(t, out.msgs[1].msg, tag.OrdStatus); got != string(enum.OrdStatus_CANCELED) {
		t.Fatalf("expected CANCELED, got %q", got)
	}
	if _, ok := gw.sessionMapping.Load(sessionKey("CLIENT", "c4")); ok {
		t.Fatalf("terminal order kept its session mapping")
	}
}

func TestOutboxPreservesOrder(t *testing.T) {
	out := &sent{}
	box := newOutbox(out.send, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		box.run(ctx)
		close(done)
	}()
	o, ev := filledOrder()
	for i := 0; i < 50; i++ {
		ev.EventID = fmt.Sprintf("e-%d", i)
		msg, _ := executionReport(quickfix.BeginStringFIX44, o, ev)
		box.push(msg, session44)
	}
	cancel()
	<-done
	if len(out.msgs) != 50 {
		t.Fatalf("expected 50 sends, got %d", len(out.msgs))
	}
	for i, m := range out.msgs {
		if got := bodyString(t, m.msg, tag.ExecID); got != fmt.Sprintf("e-%d", i) {
			t.Fatalf("send %d out of order: %s", i, got)
		}
	}
}
