package repo

import (
	"context"
	"errors"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"gorm.io/gorm"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (s *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *OrderSQLRepo) Get(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.dbWithContext(ctx).Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderSQLRepo) GetByClientID(ctx context.Context, accountID, clientOrderID string) (*model.Order, error) {
	var o model.Order
	err := s.dbWithContext(ctx).
		Where("account_id = ? AND client_order_id = ?", accountID, clientOrderID).
		Order("created_at DESC").
		Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderSQLRepo) ListResting(ctx context.Context) ([]*model.Order, error) {
	var orders []*model.Order
	err := s.dbWithContext(ctx).
		Where("resting = ? AND status IN ?", true, []model.OrderStatus{model.OrderStatusPending, model.OrderStatusPartiallyFilled}).
		Order("created_at ASC, sequence ASC").
		Find(&orders).Error
	return orders, err
}

func (s *OrderSQLRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := s.dbWithContext(ctx).
		Where("resting = ? AND expire_at IS NOT NULL AND expire_at <= ?", true, now.UTC()).
		Order("expire_at ASC").
		Limit(sqlLimit(limit)).
		Find(&orders).Error
	return orders, err
}

// MaxSequence is the largest admission or queue sequence handed out so far.
func (s *OrderSQLRepo) MaxSequence(ctx context.Context) (int64, error) {
	var seq, queued int64
	if err := s.dbWithContext(ctx).Model(&model.Order{}).Select("COALESCE(MAX(sequence), 0)").Scan(&seq).Error; err != nil {
		return 0, err
	}
	if err := s.dbWithContext(ctx).Model(&model.Order{}).Select("COALESCE(MAX(queue_sequence), 0)").Scan(&queued).Error; err != nil {
		return 0, err
	}
	return max(seq, queued), nil
}

func insertOrders(tx *gorm.DB, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	err := tx.Create(orders).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrder
	}
	return err
}

// updateOrder writes the mutable columns of o guarded by its previous version.
func updateOrder(tx *gorm.DB, o *model.Order) error {
	res := tx.Model(&model.Order{}).
		Where("id = ? AND version = ?", o.ID, o.Version-1).
		Updates(map[string]any{
			"filled_quantity": o.FilledQuantity,
			"average_price":   o.AveragePrice,
			"filled_notional": o.FilledNotional,
			"queued_at":       o.QueuedAt,
			"queue_sequence":  o.QueueSequence,
			"status":          o.Status,
			"reject_reason":   o.RejectReason,
			"resting":         o.Resting,
			"triggered":       o.Triggered,
			"version":         o.Version,
			"updated_at":      o.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return &StaleOrderError{OrderID: o.ID, Version: o.Version - 1}
	}
	return nil
}
