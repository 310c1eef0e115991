package repo

import (
	"context"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"gorm.io/gorm"
)

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (r *TradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// ListByInstrument returns the latest trades first.
func (r *TradeSQLRepo) ListByInstrument(ctx context.Context, instrumentID string, limit int) ([]*model.Trade, error) {
	var trades []*model.Trade
	err := r.dbWithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("executed_at DESC").
		Limit(sqlLimit(limit)).
		Find(&trades).Error
	return trades, err
}

func (r *TradeSQLRepo) ListByOrder(ctx context.Context, orderID string) ([]*model.Trade, error) {
	var trades []*model.Trade
	err := r.dbWithContext(ctx).
		Where("buy_order_id = ? OR sell_order_id = ?", orderID, orderID).
		Order("executed_at ASC").
		Find(&trades).Error
	return trades, err
}

func insertTrades(tx *gorm.DB, trades []*model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return tx.Create(trades).Error
}

// sqlLimit maps a non-positive limit to gorm's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
