package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	fix42nos "github.com/quickfixgo/fix42/newordersingle"
	fix42ocr "github.com/quickfixgo/fix42/ordercancelrequest"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// InitiatorApp logs on, crosses a buy and an iceberg sell, then cancels the
// resting remainder, printing every execution report it receives.
type InitiatorApp struct {
	symbol  string
	account string
}

func (a *InitiatorApp) OnCreate(sessionID quickfix.SessionID) {}

func (a *InitiatorApp) OnLogon(sessionID quickfix.SessionID) {
	log.Println("Logon success", sessionID)
	go a.run(sessionID)
}

func (a *InitiatorApp) OnLogout(sessionID quickfix.SessionID)                       {}
func (a *InitiatorApp) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (a *InitiatorApp) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (a *InitiatorApp) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}
func (a *InitiatorApp) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, _ := msg.Body.GetString(tag.ClOrdID)
	status, _ := msg.Body.GetString(tag.OrdStatus)
	cum, _ := msg.Body.GetString(tag.CumQty)
	text, _ := msg.Body.GetString(tag.Text)
	log.Printf("report ClOrdID=%s OrdStatus=%s CumQty=%s %s", clOrdID, status, cum, text)
	return nil
}

func (a *InitiatorApp) run(sessionID quickfix.SessionID) {
	sellID := randSeq(17)
	a.send(sessionID, randSeq(17), enum.Side_BUY, decimal.NewFromInt(5000), decimal.Zero)
	a.send(sessionID, sellID, enum.Side_SELL, decimal.NewFromInt(20000), decimal.NewFromInt(1000))
	time.Sleep(time.Second)
	a.cancel(sessionID, randSeq(17), sellID, enum.Side_SELL)
}

func (a *InitiatorApp) send(sessionID quickfix.SessionID, clOrdID string, side enum.Side, qty, maxFloor decimal.Decimal) {
	price := decimal.RequireFromString("100.25")
	var msg quickfix.Messagable
	switch sessionID.BeginString {
	case quickfix.BeginStringFIX42:
		m := fix42nos.New(
			field.NewClOrdID(clOrdID),
			field.NewHandlInst(enum.HandlInst_AUTOMATED_EXECUTION_ORDER_PRIVATE_NO_BROKER_INTERVENTION),
			field.NewSymbol(a.symbol),
			field.NewSide(side),
			field.NewTransactTime(time.Now()),
			field.NewOrdType(enum.OrdType_LIMIT))
		m.SetAccount(a.account)
		m.SetPrice(price, 2)
		m.SetOrderQty(qty, 0)
		m.SetTimeInForce(enum.TimeInForce_GOOD_TILL_CANCEL)
		if maxFloor.IsPositive() {
			m.SetMaxFloor(maxFloor, 0)
		}
		msg = m
	default:
		m := fix44nos.New(
			field.NewClOrdID(clOrdID),
			field.NewSide(side),
			field.NewTransactTime(time.Now()),
			field.NewOrdType(enum.OrdType_LIMIT))
		m.SetSymbol(a.symbol)
		m.SetAccount(a.account)
		m.SetPrice(price, 2)
		m.SetOrderQty(qty, 0)
		m.SetTimeInForce(enum.TimeInForce_GOOD_TILL_CANCEL)
		if maxFloor.IsPositive() {
			m.SetMaxFloor(maxFloor, 0)
		}
		msg = m
	}
	if err := quickfix.SendToTarget(msg, sessionID); err != nil {
		log.Println("send order:", err)
	}
}

func (a *InitiatorApp) cancel(sessionID quickfix.SessionID, clOrdID, origClOrdID string, side enum.Side) {
	var msg quickfix.Messagable
	switch sessionID.BeginString {
	case quickfix.BeginStringFIX42:
		m := fix42ocr.New(
			field.NewOrigClOrdID(origClOrdID),
			field.NewClOrdID(clOrdID),
			field.NewSymbol(a.symbol),
			field.NewSide(side),
			field.NewTransactTime(time.Now()))
		m.SetAccount(a.account)
		msg = m
	default:
		m := fix44ocr.New(
			field.NewOrigClOrdID(origClOrdID),
			field.NewClOrdID(clOrdID),
			field.NewSide(side),
			field.NewTransactTime(time.Now()))
		m.SetSymbol(a.symbol)
		m.SetAccount(a.account)
		msg = m
	}
	if err := quickfix.SendToTarget(msg, sessionID); err != nil {
		log.Println("send cancel:", err)
	}
}

func main() {
	var cfgPath string
	app := &InitiatorApp{}
	flag.StringVar(&cfgPath, "config", "config/fixclient.cfg", "quickfix initiator settings")
	flag.StringVar(&app.symbol, "symbol", "INE002A08427", "instrument to trade")
	flag.StringVar(&app.account, "account", "ACC-001", "account to trade for")
	flag.Parse()
	log.Println("cfgPath:", cfgPath)

	cfg, err := os.Open(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cfg.Close() // nolint

	settings, err := quickfix.ParseSettings(cfg)
	if err != nil {
		log.Fatal(err)
	}

	storeFactory := quickfix.NewMemoryStoreFactory()
	logFactory, _ := file.NewLogFactory(settings)
	initiator, err := quickfix.NewInitiator(app, storeFactory, settings, logFactory)
	if err != nil {
		log.Fatal(err)
	}
	if err := initiator.Start(); err != nil {
		log.Fatal(err)
	}
	log.Println("Initiator started...")
	select {}
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
