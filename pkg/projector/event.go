package projector

import (
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// Update is what the engine hands over after a committed mutation of one instrument.
type Update struct {
	Instrument string
	Bids       []orderbook.Level
	Asks       []orderbook.Level
	Trades     []model.Trade
	At         time.Time
}

type BookUpdate struct {
	Instrument string            `json:"instrument"`
	Bids       []orderbook.Level `json:"bids"`
	Asks       []orderbook.Level `json:"asks"`
	Timestamp  time.Time         `json:"timestamp"`
}

type TradeEvent struct {
	TradeID    string          `json:"trade_id"`
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TakerSide  model.OrderSide `json:"taker_side"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Event is a single item of the in-process stream; exactly one field is set.
type Event struct {
	Book  *BookUpdate
	Trade *TradeEvent
}

func (u Update) book() BookUpdate {
	bids, asks := u.Bids, u.Asks
	if bids == nil {
		bids = []orderbook.Level{}
	}
	if asks == nil {
		asks = []orderbook.Level{}
	}
	return BookUpdate{Instrument: u.Instrument, Bids: bids, Asks: asks, Timestamp: u.At}
}

func (u Update) trades() []TradeEvent {
	out := make([]TradeEvent, len(u.Trades))
	for i, t := range u.Trades {
		out[i] = TradeEvent{
			TradeID:    t.ID,
			Instrument: t.InstrumentID,
			Quantity:   t.Quantity,
			Price:      t.Price,
			TakerSide:  t.TakerSide,
			Timestamp:  t.ExecutedAt,
		}
	}
	return out
}
