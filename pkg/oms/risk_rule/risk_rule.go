package riskrule

import (
	"errors"
	"fmt"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/shopspring/decimal"
)

var (
	ErrTickSize   = errors.New("price is not a multiple of the tick size")
	ErrLotSize    = errors.New("quantity is not a multiple of the lot size")
	ErrPriceLimit = errors.New("price limit violation")
)

type RiskRule interface {
	Check(order *model.Order) error
}

// InstrumentSpec is the per-instrument trading configuration. Empty fields
// disable the matching rule.
type InstrumentSpec struct {
	ID       string `yaml:"id"`
	TickSize string `yaml:"tick_size"`
	LotSize  string `yaml:"lot_size"`
	MinPrice string `yaml:"min_price"`
	MaxPrice string `yaml:"max_price"`
}

func parseOptional(field, v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s %q: %w", field, v, err)
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, fmt.Errorf("%s %q must be positive", field, v)
	}
	return decimal.NewNullDecimal(d), nil
}

// NewRules builds the tick size, lot size and price band rules for specs.
func NewRules(specs []InstrumentSpec) ([]RiskRule, error) {
	tick := &TickSizeRule{steps: map[string]decimal.Decimal{}}
	lot := &LotSizeRule{lots: map[string]decimal.Decimal{}}
	band := &LimitPriceRule{prices: map[string]*limitPrice{}}
	for _, s := range specs {
		t, err := parseOptional("tick_size", s.TickSize)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", s.ID, err)
		}
		if t.Valid {
			tick.steps[s.ID] = t.Decimal
		}
		l, err := parseOptional("lot_size", s.LotSize)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", s.ID, err)
		}
		if l.Valid {
			lot.lots[s.ID] = l.Decimal
		}
		floor, err := parseOptional("min_price", s.MinPrice)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", s.ID, err)
		}
		ceil, err := parseOptional("max_price", s.MaxPrice)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", s.ID, err)
		}
		if floor.Valid && ceil.Valid && floor.Decimal.GreaterThan(ceil.Decimal) {
			return nil, fmt.Errorf("instrument %s: min_price above max_price", s.ID)
		}
		if floor.Valid || ceil.Valid {
			band.prices[s.ID] = &limitPrice{floor: floor, ceil: ceil}
		}
	}
	return []RiskRule{tick, lot, band}, nil
}

// prices returns the limit and stop prices carried by order.
func prices(order *model.Order) []decimal.Decimal {
	var out []decimal.Decimal
	if order.Price.Valid {
		out = append(out, order.Price.Decimal)
	}
	if order.StopPrice.Valid {
		out = append(out, order.StopPrice.Decimal)
	}
	return out
}
