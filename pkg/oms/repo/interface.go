package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateOrder = errors.New("order already exists")
)

// StaleOrderError reports an update whose expected version no longer matches the store.
type StaleOrderError struct {
	OrderID string
	Version int64
}

func (e *StaleOrderError) Error() string {
	return fmt.Sprintf("stale order %s: expected version %d", e.OrderID, e.Version)
}

// Commit is the set of writes produced by one engine attempt. It is applied
// atomically: either every write lands or none does.
type Commit struct {
	Insert []*model.Order
	// Update holds orders whose Version has already been bumped; each row is
	// written only if its stored version is Version-1.
	Update []*model.Order
	Trades []*model.Trade
}

func (c *Commit) Empty() bool {
	return len(c.Insert) == 0 && len(c.Update) == 0 && len(c.Trades) == 0
}

type IOrder interface {
	Get(ctx context.Context, id string) (*model.Order, error)
	GetByClientID(ctx context.Context, accountID, clientOrderID string) (*model.Order, error)
	// ListResting returns open orders flagged as resting by ascending (created_at, sequence).
	ListResting(ctx context.Context) ([]*model.Order, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Order, error)
	MaxSequence(ctx context.Context) (int64, error)
}

type ITrade interface {
	ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]*model.Trade, error)
	ListByOrder(ctx context.Context, orderID string) ([]*model.Trade, error)
}
