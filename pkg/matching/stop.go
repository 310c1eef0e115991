package matching

import (
	"cmp"
	"slices"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/shopspring/decimal"
)

// stopSet holds armed stop orders by ascending sequence.
type stopSet struct {
	orders []*model.Order
}

func (s *stopSet) add(o *model.Order) {
	i, found := slices.BinarySearchFunc(s.orders, o.Sequence, func(x *model.Order, seq int64) int {
		return cmp.Compare(x.Sequence, seq)
	})
	if found {
		s.orders[i] = o
		return
	}
	s.orders = slices.Insert(s.orders, i, o)
}

func (s *stopSet) remove(orderID string) bool {
	i := slices.IndexFunc(s.orders, func(o *model.Order) bool { return o.ID == orderID })
	if i < 0 {
		return false
	}
	s.orders = slices.Delete(s.orders, i, i+1)
	return true
}

func (s *stopSet) get(orderID string) *model.Order {
	for _, o := range s.orders {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

func (s *stopSet) len() int {
	return len(s.orders)
}

// next returns the earliest armed stop that last triggers.
func (s *stopSet) next(last decimal.Decimal) *model.Order {
	for _, o := range s.orders {
		if stopHit(o, last) {
			return o
		}
	}
	return nil
}

// stopHit: a buy stop fires at or above its stop price, a sell stop at or below.
func stopHit(o *model.Order, last decimal.Decimal) bool {
	if o.Side == model.OrderSideBuy {
		return last.GreaterThanOrEqual(o.StopPrice.Decimal)
	}
	return last.LessThanOrEqual(o.StopPrice.Decimal)
}
