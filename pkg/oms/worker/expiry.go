// Package worker holds the background loops that drive the OMS without a
// gateway: the expiry sweep and the Kafka order intake.
package worker

import (
	"context"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"go.uber.org/zap"
)

const (
	defaultExpiryInterval = time.Second
	defaultExpiryBatch    = 500
)

type ExpiryConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// ExpiryWorker expires open orders whose ExpireAt has passed.
type ExpiryWorker struct {
	cfg    ExpiryConfig
	orders repo.IOrder
	oms    oms.IOMS
	logger *logging.Logger
	now    func() time.Time
}

func NewExpiryWorker(cfg ExpiryConfig, store repo.IRepo, o oms.IOMS, logger *logging.Logger) *ExpiryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultExpiryInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultExpiryBatch
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ExpiryWorker{
		cfg:    cfg,
		orders: store.Order(),
		oms:    o,
		logger: logger.With(zap.String("component", "expiry_worker")),
		now:    time.Now,
	}
}

// Run sweeps every Interval until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn(ctx, "expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires every order that is due and returns how many it expired.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		due, err := w.orders.ListExpired(ctx, w.now().UTC(), w.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		expired := 0
		for _, o := range due {
			res, err := w.oms.ExpireOrder(ctx, o.ID)
			if err != nil {
				w.logger.Warn(ctx, "expire order", zap.String("order_id", o.ID), zap.Error(err))
				continue
			}
			if res.Accepted {
				expired++
			}
		}
		total += expired
		// a page that made no progress would come back unchanged
		if len(due) < w.cfg.BatchSize || expired == 0 {
			break
		}
	}
	if total > 0 {
		w.logger.Info(ctx, "expired orders", zap.Int("count", total))
	}
	return total, nil
}
