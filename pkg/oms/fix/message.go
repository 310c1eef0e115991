package fixgateway

import (
	"fmt"
	"strings"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/google/uuid"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	er42 "github.com/quickfixgo/fix42/executionreport"
	ocj42 "github.com/quickfixgo/fix42/ordercancelreject"
	er44 "github.com/quickfixgo/fix44/executionreport"
	ocj44 "github.com/quickfixgo/fix44/ordercancelreject"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

var (
	ordStatusMapping = map[model.OrderStatus]enum.OrdStatus{
		model.OrderStatusPending:         enum.OrdStatus_NEW,
		model.OrderStatusPartiallyFilled: enum.OrdStatus_PARTIALLY_FILLED,
		model.OrderStatusFilled:          enum.OrdStatus_FILLED,
		model.OrderStatusCancelled:       enum.OrdStatus_CANCELED,
		model.OrderStatusRejected:        enum.OrdStatus_REJECTED,
		model.OrderStatusExpired:         enum.OrdStatus_EXPIRED,
	}
	execTypeMapping = map[model.OrderExecType]enum.ExecType{
		model.ExecTypeNew:      enum.ExecType_NEW,
		model.ExecTypeTrade:    enum.ExecType_TRADE,
		model.ExecTypeCanceled: enum.ExecType_CANCELED,
		model.ExecTypeRejected: enum.ExecType_REJECTED,
		model.ExecTypeExpired:  enum.ExecType_EXPIRED,
	}
	ordTypeMapping = map[model.OrderType]enum.OrdType{
		model.OrderTypeLimit:   enum.OrdType_LIMIT,
		model.OrderTypeMarket:  enum.OrdType_MARKET,
		model.OrderTypeIceberg: enum.OrdType_LIMIT,
	}
)

// scale is the number of decimals d needs on the wire.
func scale(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}

func leavesQty(o model.Order) decimal.Decimal {
	if o.Status.IsTerminal() {
		return decimal.Zero
	}
	return o.Remaining()
}

func ordType(o model.Order) enum.OrdType {
	if o.Type == model.OrderTypeStopLoss {
		if o.Price.Valid {
			return enum.OrdType_STOP_LIMIT
		}
		return enum.OrdType_STOP
	}
	return ordTypeMapping[o.Type]
}

// setReportFields writes the fields both FIX versions carry the same way.
func setReportFields(body *quickfix.Body, o model.Order, ev *model.OrderEvent) {
	if ev.ClOrdID != "" {
		body.Set(field.NewClOrdID(ev.ClOrdID))
	}
	if ev.OrigClOrdID != "" {
		body.Set(field.NewOrigClOrdID(ev.OrigClOrdID))
	}
	if o.AccountID != "" {
		body.Set(field.NewAccount(o.AccountID))
	}
	body.Set(field.NewSymbol(o.InstrumentID))
	body.Set(field.NewOrderQty(o.Quantity, scale(o.Quantity)))
	if o.Price.Valid {
		body.Set(field.NewPrice(o.Price.Decimal, scale(o.Price.Decimal)))
	}
	if o.StopPrice.Valid {
		body.Set(field.NewStopPx(o.StopPrice.Decimal, scale(o.StopPrice.Decimal)))
	}
	if o.DisplayQuantity.Valid {
		body.Set(field.NewMaxFloor(o.DisplayQuantity.Decimal, scale(o.DisplayQuantity.Decimal)))
	}
	if tif, ok := fixTimeInForceMapping[o.TimeInForce]; ok {
		body.Set(field.NewTimeInForce(tif))
	}
	if t := ordType(o); t != "" {
		body.Set(field.NewOrdType(t))
	}
	if o.ExpireAt != nil {
		body.Set(field.NewExpireTime(*o.ExpireAt))
	}
	if ev.Reason != "" {
		body.Set(field.NewText(ev.Reason))
	}
	body.Set(field.NewTransactTime(ev.Timestamp))
}

func lastPx(ev *model.OrderEvent) (field.LastPxField, bool) {
	if ev.ExecType != model.ExecTypeTrade || !ev.LastPrice.Valid {
		return field.LastPxField{}, false
	}
	px := ev.LastPrice.Decimal.Round(8)
	return field.NewLastPx(px, scale(px)), true
}

// executionReport renders one order event in the dialect of beginString.
func executionReport(beginString string, o model.Order, ev *model.OrderEvent) (quickfix.Messagable, error) {
	status, ok := ordStatusMapping[ev.Status]
	if !ok {
		return nil, fmt.Errorf("no FIX status for %q", ev.Status)
	}
	side, ok := fixSideMapping[o.Side]
	if !ok {
		return nil, fmt.Errorf("no FIX side for %q", o.Side)
	}
	leaves, cum := leavesQty(o), ev.FilledQuantity
	avg := ev.AveragePrice.Decimal.Round(8)

	switch beginString {
	case quickfix.BeginStringFIX44:
		msg := er44.New(
			field.NewOrderID(o.ID),
			field.NewExecID(ev.EventID),
			field.NewExecType(execTypeMapping[ev.ExecType]),
			field.NewOrdStatus(status),
			field.NewSide(side),
			field.NewLeavesQty(leaves, scale(leaves)),
			field.NewCumQty(cum, scale(cum)),
			field.NewAvgPx(avg, scale(avg)),
		)
		setReportFields(msg.Body, o, ev)
		if px, ok := lastPx(ev); ok {
			msg.Body.Set(field.NewLastQty(ev.LastQty, scale(ev.LastQty)))
			msg.Body.Set(px)
		}
		return msg, nil

	case quickfix.BeginStringFIX42:
		// 4.2 has no TRADE exec type and reports fills by their effect on the order.
		execType := execTypeMapping[ev.ExecType]
		if ev.ExecType == model.ExecTypeTrade {
			execType = enum.ExecType_PARTIAL_FILL
			if ev.Status == model.OrderStatusFilled {
				execType = enum.ExecType_FILL
			}
		}
		msg := er42.New(
			field.NewOrderID(o.ID),
			field.NewExecID(ev.EventID),
			field.NewExecTransType(enum.ExecTransType_NEW),
			field.NewExecType(execType),
			field.NewOrdStatus(status),
			field.NewSymbol(o.InstrumentID),
			field.NewSide(side),
			field.NewLeavesQty(leaves, scale(leaves)),
			field.NewCumQty(cum, scale(cum)),
			field.NewAvgPx(avg, scale(avg)),
		)
		setReportFields(msg.Body, o, ev)
		if px, ok := lastPx(ev); ok {
			msg.Body.Set(field.NewLastShares(ev.LastQty, scale(ev.LastQty)))
			msg.Body.Set(px)
		}
		return msg, nil
	}
	return nil, fmt.Errorf("unsupported begin string %q", beginString)
}

// rejectReport answers a NewOrderSingle that never became an order.
func rejectReport(nos *NewOrderSingle, reason enum.OrdRejReason, text string) (quickfix.Messagable, error) {
	o := nos.rejectedOrder(text)
	if _, ok := fixSideMapping[o.Side]; !ok {
		o.Side = model.OrderSideBuy
	}
	ev := &model.OrderEvent{
		EventID:   uuid.NewString(),
		OrderID:   o.ID,
		ClOrdID:   nos.ClOrdID,
		ExecType:  model.ExecTypeRejected,
		Status:    model.OrderStatusRejected,
		Reason:    text,
		Timestamp: nos.TransactTime,
	}
	msg, err := executionReport(nos.SessionID.BeginString, o, ev)
	if err != nil {
		return nil, err
	}
	msg.ToMessage().Body.Set(field.NewOrdRejReason(reason))
	return msg, nil
}

// cancelReject answers an OrderCancelRequest that did not cancel anything.
func cancelReject(req *OrderCancelRequest, orderID string, status model.OrderStatus, reason enum.CxlRejReason, text string) (quickfix.Messagable, error) {
	if orderID == "" {
		orderID = "NONE"
	}
	ordStatus, ok := ordStatusMapping[status]
	if !ok {
		ordStatus = enum.OrdStatus_REJECTED
	}

	var msg quickfix.Messagable
	switch req.SessionID.BeginString {
	case quickfix.BeginStringFIX44:
		msg = ocj44.New(
			field.NewOrderID(orderID),
			field.NewClOrdID(req.ClOrdID),
			field.NewOrigClOrdID(req.OrigClOrdID),
			field.NewOrdStatus(ordStatus),
			field.NewCxlRejResponseTo(enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST),
		)
	case quickfix.BeginStringFIX42:
		msg = ocj42.New(
			field.NewOrderID(orderID),
			field.NewClOrdID(req.ClOrdID),
			field.NewOrigClOrdID(req.OrigClOrdID),
			field.NewOrdStatus(ordStatus),
			field.NewCxlRejResponseTo(enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST),
		)
	default:
		return nil, fmt.Errorf("unsupported begin string %q", req.SessionID.BeginString)
	}
	body := msg.ToMessage().Body
	body.Set(field.NewCxlRejReason(reason))
	if req.Account != "" {
		body.Set(field.NewAccount(req.Account))
	}
	if text != "" {
		body.Set(field.NewText(text))
	}
	return msg, nil
}
