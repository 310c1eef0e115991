package repo

import (
	"context"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"gorm.io/gorm"
)

type IRepo interface {
	Order() IOrder
	Trade() ITrade
	Commit(ctx context.Context, c *Commit) error
}

type Repo struct {
	omsDB *gorm.DB
}

func NewRepo(omsDB *gorm.DB) IRepo {
	return &Repo{
		omsDB: omsDB,
	}
}

func (r *Repo) Order() IOrder {
	return NewOrderSQLRepo(r.omsDB)
}

func (r *Repo) Trade() ITrade {
	return NewTradeSQLRepo(r.omsDB)
}

// Commit runs every write of c in one transaction.
func (r *Repo) Commit(ctx context.Context, c *Commit) error {
	if c.Empty() {
		return nil
	}
	return r.omsDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertOrders(tx, c.Insert); err != nil {
			return err
		}
		for _, o := range c.Update {
			if err := updateOrder(tx, o); err != nil {
				return err
			}
		}
		return insertTrades(tx, c.Trades)
	})
}

// AutoMigrate creates the tables from the models. Production schemas come from migration/sql.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Order{}, &model.Trade{})
}
