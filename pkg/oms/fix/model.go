package fixgateway

import (
	"fmt"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

type NewOrderSingle struct {
	SessionID quickfix.SessionID

	ClOrdID      string
	Account      string
	Symbol       string
	Side         enum.Side
	OrdType      enum.OrdType
	TimeInForce  enum.TimeInForce
	OrderQty     decimal.Decimal
	Price        decimal.NullDecimal
	StopPx       decimal.NullDecimal
	MaxFloor     decimal.NullDecimal
	ExpireTime   *time.Time
	TransactTime time.Time
	Text         string
}

type OrderCancelRequest struct {
	SessionID quickfix.SessionID

	OrderID     string
	ClOrdID     string
	OrigClOrdID string
	Account     string
	Symbol      string
	Side        enum.Side
}

var (
	sideMapping = map[enum.Side]model.OrderSide{
		enum.Side_BUY:  model.OrderSideBuy,
		enum.Side_SELL: model.OrderSideSell,
	}
	fixSideMapping = map[model.OrderSide]enum.Side{
		model.OrderSideBuy:  enum.Side_BUY,
		model.OrderSideSell: enum.Side_SELL,
	}
	timeInForceMapping = map[enum.TimeInForce]model.OrderTimeInForce{
		enum.TimeInForce_DAY:                 model.OrderTimeInForceDAY,
		enum.TimeInForce_GOOD_TILL_CANCEL:    model.OrderTimeInForceGTC,
		enum.TimeInForce_GOOD_TILL_DATE:      model.OrderTimeInForceGTC,
		enum.TimeInForce_IMMEDIATE_OR_CANCEL: model.OrderTimeInForceIOC,
		enum.TimeInForce_FILL_OR_KILL:        model.OrderTimeInForceFOK,
	}
	fixTimeInForceMapping = map[model.OrderTimeInForce]enum.TimeInForce{
		model.OrderTimeInForceDAY: enum.TimeInForce_DAY,
		model.OrderTimeInForceGTC: enum.TimeInForce_GOOD_TILL_CANCEL,
		model.OrderTimeInForceIOC: enum.TimeInForce_IMMEDIATE_OR_CANCEL,
		model.OrderTimeInForceFOK: enum.TimeInForce_FILL_OR_KILL,
	}
)

// toAddOrder maps the FIX order onto an OMS submission. MaxFloor turns a limit
// order into an iceberg, STOP and STOP_LIMIT become stop-loss orders.
func (m *NewOrderSingle) toAddOrder() (*model.AddOrder, error) {
	side, ok := sideMapping[m.Side]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported side %q", oms.ErrInvalidOrder, m.Side)
	}
	tif := model.OrderTimeInForceDAY
	if m.TimeInForce != "" {
		if tif, ok = timeInForceMapping[m.TimeInForce]; !ok {
			return nil, fmt.Errorf("%w: unsupported time in force %q", oms.ErrInvalidOrder, m.TimeInForce)
		}
	}
	add := &model.AddOrder{
		GatewayID:    m.ClOrdID,
		Account:      m.Account,
		Symbol:       m.Symbol,
		Side:         side,
		TimeInForce:  tif,
		Quantity:     m.OrderQty,
		TransactTime: m.TransactTime,
		ExpireAt:     m.ExpireTime,
		Notes:        m.Text,
	}

	switch m.OrdType {
	case enum.OrdType_MARKET:
		add.Type = model.OrderTypeMarket
	case enum.OrdType_LIMIT:
		add.Type = model.OrderTypeLimit
		add.Price = m.Price
		if m.MaxFloor.Valid && m.MaxFloor.Decimal.IsPositive() && m.MaxFloor.Decimal.LessThan(m.OrderQty) {
			add.Type = model.OrderTypeIceberg
			add.DisplayQuantity = m.MaxFloor
		}
	case enum.OrdType_STOP:
		add.Type = model.OrderTypeStopLoss
		add.StopPrice = m.StopPx
	case enum.OrdType_STOP_LIMIT:
		add.Type = model.OrderTypeStopLoss
		add.StopPrice = m.StopPx
		add.Price = m.Price
	default:
		return nil, fmt.Errorf("%w: unsupported order type %q", oms.ErrInvalidOrder, m.OrdType)
	}
	return add, nil
}

// rejectedOrder is the order view reported when a submission never reached the engine.
func (m *NewOrderSingle) rejectedOrder(reason string) model.Order {
	return model.Order{
		ID:            "NONE",
		ClientOrderID: m.ClOrdID,
		AccountID:     m.Account,
		InstrumentID:  m.Symbol,
		Side:          sideMapping[m.Side],
		TimeInForce:   timeInForceMapping[m.TimeInForce],
		Quantity:      m.OrderQty,
		Price:         m.Price,
		Status:        model.OrderStatusRejected,
		RejectReason:  reason,
	}
}

func sessionKey(account, clOrdID string) string {
	return account + "|" + clOrdID
}
