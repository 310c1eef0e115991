package fixgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/enum"
	nos42 "github.com/quickfixgo/fix42/newordersingle"
	ocr42 "github.com/quickfixgo/fix42/ordercancelrequest"
	nos44 "github.com/quickfixgo/fix44/newordersingle"
	ocr44 "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultShards    = 16
	defaultQueueSize = 100_000
)

// Application implements quickfix.Application. Inbound orders are parsed on
// the session goroutine and handed to a queue sharded by symbol, so requests
// for one instrument reach the OMS in arrival order.
type Application struct {
	*quickfix.MessageRouter
	gateway    *FixGateway
	shardQueue *shardqueue.Shardqueue
	logger     *logging.Logger
}

// newOrderFields is the read side shared by the 4.2 and 4.4 NewOrderSingle.
type newOrderFields interface {
	GetClOrdID() (string, quickfix.MessageRejectError)
	GetAccount() (string, quickfix.MessageRejectError)
	GetSymbol() (string, quickfix.MessageRejectError)
	GetSide() (enum.Side, quickfix.MessageRejectError)
	GetOrdType() (enum.OrdType, quickfix.MessageRejectError)
	GetOrderQty() (decimal.Decimal, quickfix.MessageRejectError)
	GetPrice() (decimal.Decimal, quickfix.MessageRejectError)
	GetStopPx() (decimal.Decimal, quickfix.MessageRejectError)
	GetMaxFloor() (decimal.Decimal, quickfix.MessageRejectError)
	GetTimeInForce() (enum.TimeInForce, quickfix.MessageRejectError)
	GetExpireTime() (time.Time, quickfix.MessageRejectError)
	GetTransactTime() (time.Time, quickfix.MessageRejectError)
	GetText() (string, quickfix.MessageRejectError)
	HasAccount() bool
	HasPrice() bool
	HasStopPx() bool
	HasMaxFloor() bool
	HasTimeInForce() bool
	HasExpireTime() bool
	HasTransactTime() bool
	HasText() bool
}

// cancelFields is the read side shared by the 4.2 and 4.4 OrderCancelRequest.
type cancelFields interface {
	GetOrderID() (string, quickfix.MessageRejectError)
	GetClOrdID() (string, quickfix.MessageRejectError)
	GetOrigClOrdID() (string, quickfix.MessageRejectError)
	GetAccount() (string, quickfix.MessageRejectError)
	GetSymbol() (string, quickfix.MessageRejectError)
	GetSide() (enum.Side, quickfix.MessageRejectError)
	HasOrderID() bool
	HasAccount() bool
}

func newApplication(gateway *FixGateway, shards, queueSize int) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		gateway:       gateway,
		logger:        gateway.logger,
	}

	app.AddRoute(nos44.Route(app.onNewOrderSingle44))
	app.AddRoute(nos42.Route(app.onNewOrderSingle42))
	app.AddRoute(ocr44.Route(app.onOrderCancelRequest44))
	app.AddRoute(ocr42.Route(app.onOrderCancelRequest42))

	if shards > 0 {
		if queueSize <= 0 {
			queueSize = defaultQueueSize
		}
		app.shardQueue = shardqueue.NewShardQueue(shards, queueSize)
		app.shardQueue.Start(func(msg interface{}) error {
			app.process(msg)
			return nil
		})
	}
	return app
}

func loadSettings(path string) (*quickfix.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %v, %v", path, err)
	}
	defer f.Close() // nolint

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading cfg: %s", err)
	}
	settings, err := quickfix.ParseSettings(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error reading cfg: %s", err)
	}
	return settings, nil
}

func startAcceptor(app *Application, settings *quickfix.Settings) (*quickfix.Acceptor, error) {
	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		return nil, fmt.Errorf("unable to create log factory: %s", err)
	}
	acceptor, err := quickfix.NewAcceptor(app, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return nil, fmt.Errorf("unable to create acceptor: %s", err)
	}
	if err := acceptor.Start(); err != nil {
		return nil, fmt.Errorf("unable to start FIX acceptor: %s", err)
	}
	return acceptor, nil
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.logger.Info(context.Background(), "fix logon", zap.String("session", sessionID.String()))
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.logger.Info(context.Background(), "fix logout", zap.String("session", sessionID.String()))
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface, uses Router on incoming application messages
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.Route(msg, sessionID)
}

func (a *Application) dispatch(symbol string, msg interface{}) {
	if a.shardQueue == nil {
		a.process(msg)
		return
	}
	a.shardQueue.Shard(symbol, msg)
}

func (a *Application) process(msg interface{}) {
	switch v := msg.(type) {
	case *NewOrderSingle:
		a.gateway.AddOrder(logging.WithRequestID(context.Background(), v.ClOrdID), v)
	case *OrderCancelRequest:
		a.gateway.CancelOrder(logging.WithRequestID(context.Background(), v.ClOrdID), v)
	}
}

func (a *Application) onNewOrderSingle44(msg nos44.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.onNewOrderSingle(msg, sessionID)
}

func (a *Application) onNewOrderSingle42(msg nos42.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.onNewOrderSingle(msg, sessionID)
}

func (a *Application) onOrderCancelRequest44(msg ocr44.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.onOrderCancelRequest(msg, sessionID)
}

func (a *Application) onOrderCancelRequest42(msg ocr42.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.onOrderCancelRequest(msg, sessionID)
}

func (a *Application) onNewOrderSingle(msg newOrderFields, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	nos, rej := readNewOrderSingle(msg, sessionID)
	if rej != nil {
		return rej
	}
	a.dispatch(nos.Symbol, nos)
	return nil
}

func (a *Application) onOrderCancelRequest(msg cancelFields, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	req, rej := readOrderCancelRequest(msg, sessionID)
	if rej != nil {
		return rej
	}
	a.dispatch(req.Symbol, req)
	return nil
}

func readNewOrderSingle(msg newOrderFields, sessionID quickfix.SessionID) (*NewOrderSingle, quickfix.MessageRejectError) {
	var (
		nos = &NewOrderSingle{SessionID: sessionID}
		err quickfix.MessageRejectError
	)
	if nos.ClOrdID, err = msg.GetClOrdID(); err != nil {
		return nil, err
	}
	if nos.Symbol, err = msg.GetSymbol(); err != nil {
		return nil, err
	}
	if nos.Side, err = msg.GetSide(); err != nil {
		return nil, err
	}
	if nos.OrdType, err = msg.GetOrdType(); err != nil {
		return nil, err
	}
	if nos.OrderQty, err = msg.GetOrderQty(); err != nil {
		return nil, err
	}

	if msg.HasAccount() {
		nos.Account, _ = msg.GetAccount()
	}
	if msg.HasPrice() {
		px, _ := msg.GetPrice()
		nos.Price = decimal.NewNullDecimal(px)
	}
	if msg.HasStopPx() {
		px, _ := msg.GetStopPx()
		nos.StopPx = decimal.NewNullDecimal(px)
	}
	if msg.HasMaxFloor() {
		floor, _ := msg.GetMaxFloor()
		nos.MaxFloor = decimal.NewNullDecimal(floor)
	}
	if msg.HasTimeInForce() {
		nos.TimeInForce, _ = msg.GetTimeInForce()
	}
	if msg.HasExpireTime() {
		at, _ := msg.GetExpireTime()
		nos.ExpireTime = &at
	}
	if msg.HasTransactTime() {
		nos.TransactTime, _ = msg.GetTransactTime()
	} else {
		nos.TransactTime = time.Now().UTC()
	}
	if msg.HasText() {
		nos.Text, _ = msg.GetText()
	}
	return nos, nil
}

func readOrderCancelRequest(msg cancelFields, sessionID quickfix.SessionID) (*OrderCancelRequest, quickfix.MessageRejectError) {
	var (
		req = &OrderCancelRequest{SessionID: sessionID}
		err quickfix.MessageRejectError
	)
	if req.ClOrdID, err = msg.GetClOrdID(); err != nil {
		return nil, err
	}
	if req.OrigClOrdID, err = msg.GetOrigClOrdID(); err != nil {
		return nil, err
	}
	if req.Symbol, err = msg.GetSymbol(); err != nil {
		return nil, err
	}
	req.Side, _ = msg.GetSide()
	if msg.HasOrderID() {
		req.OrderID, _ = msg.GetOrderID()
	}
	if msg.HasAccount() {
		req.Account, _ = msg.GetAccount()
	}
	return req, nil
}
