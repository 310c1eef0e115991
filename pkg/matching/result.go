package matching

import "github.com/bhanukaranwal/SetuBond/pkg/oms/model"

// Result is the settled outcome of one submission.
type Result struct {
	Order  *model.Order
	Trades []*model.Trade
	// Counterparties are the resting orders as updated by this execution, in trade order.
	Counterparties []*model.Order
}

type CancelRequest struct {
	OrderID string
	// InstrumentID is optional; when empty it is looked up in the order store.
	InstrumentID string
}

// CancelResult reports Accepted=false with a Reason when the order was already terminal.
type CancelResult struct {
	Order    *model.Order
	Accepted bool
	Reason   string
}

type RecoveryReport struct {
	Instruments int
	Orders      int
	Stops       int
	Skipped     int
}
