package riskrule

import (
	"fmt"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/shopspring/decimal"
)

// TickSizeRule requires every price to be a multiple of the instrument's tick.
type TickSizeRule struct {
	steps map[string]decimal.Decimal
}

func (r *TickSizeRule) Check(order *model.Order) error {
	step, ok := r.steps[order.InstrumentID]
	if !ok { // no config -> no rule
		return nil
	}
	for _, p := range prices(order) {
		if !p.Mod(step).IsZero() {
			return fmt.Errorf("%w: %s with tick %s", ErrTickSize, p, step)
		}
	}
	return nil
}

// LotSizeRule requires quantities (and iceberg display sizes) in whole lots.
type LotSizeRule struct {
	lots map[string]decimal.Decimal
}

func (r *LotSizeRule) Check(order *model.Order) error {
	lot, ok := r.lots[order.InstrumentID]
	if !ok {
		return nil
	}
	if !order.Quantity.Mod(lot).IsZero() {
		return fmt.Errorf("%w: %s with lot %s", ErrLotSize, order.Quantity, lot)
	}
	if order.DisplayQuantity.Valid && !order.DisplayQuantity.Decimal.Mod(lot).IsZero() {
		return fmt.Errorf("%w: display %s with lot %s", ErrLotSize, order.DisplayQuantity.Decimal, lot)
	}
	return nil
}
