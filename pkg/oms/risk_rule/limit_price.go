package riskrule

import (
	"fmt"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/shopspring/decimal"
)

type limitPrice struct {
	floor decimal.NullDecimal
	ceil  decimal.NullDecimal
}

// LimitPriceRule keeps prices inside the instrument's band.
type LimitPriceRule struct {
	prices map[string]*limitPrice
}

func (r *LimitPriceRule) Check(order *model.Order) error {
	band, ok := r.prices[order.InstrumentID]
	if !ok {
		return nil
	}
	for _, p := range prices(order) {
		if band.ceil.Valid && p.GreaterThan(band.ceil.Decimal) {
			return fmt.Errorf("%w: %s above %s", ErrPriceLimit, p, band.ceil.Decimal)
		}
		if band.floor.Valid && p.LessThan(band.floor.Decimal) {
			return fmt.Errorf("%w: %s below %s", ErrPriceLimit, p, band.floor.Decimal)
		}
	}
	return nil
}
