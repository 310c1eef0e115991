package eventstore

import (
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
)

type EventStore interface {
	// AddEvent appends ev to its order's history. It returns false when an
	// event with the same id is already recorded.
	AddEvent(ev *model.OrderEvent) bool
	Events(orderID string) []*model.OrderEvent
	// Last is the order's latest event, nil when none is recorded.
	Last(orderID string) *model.OrderEvent

	// ReserveClientOrder binds accountID+clOrdID to orderID unless it is bound
	// already, in which case the existing order id is returned with false.
	ReserveClientOrder(accountID, clOrdID, orderID string) (string, bool)
	ReleaseClientOrder(accountID, clOrdID string)
	GetOrderID(accountID, clOrdID string) string

	TrackClOrdChain(orderID, accountID, clOrdID, origClOrdID string)
	GetLatestClOrdID(orderID string) string
	GetOrigClOrdID(accountID, clOrdID string) string
	ReconstructChain(accountID, clOrdID string) []string

	// Prune drops orders whose latest event is terminal and older than before.
	Prune(before time.Time) int
}
