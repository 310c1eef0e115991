package matching

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/bhanukaranwal/SetuBond/pkg/projector"
	"go.uber.org/zap"
)

const (
	defaultBookDepth       = 10
	defaultMaxStaleRetries = 8
)

type Config struct {
	BookDepth       int `yaml:"book_depth"`
	MaxStaleRetries int `yaml:"max_stale_retries"`
}

// Publisher receives a snapshot after every committed mutation of an instrument.
// It is called with the instrument's lock held.
type Publisher interface {
	Publish(ctx context.Context, u projector.Update)
}

// Engine matches orders per instrument. Work on one instrument is serialized by
// that instrument's lock; different instruments proceed in parallel.
type Engine struct {
	cfg       Config
	repo      repo.IRepo
	publisher Publisher
	logger    *logging.Logger

	books sync.Map // instrument id -> *instrumentDomain
	seq   atomic.Int64
	now   func() time.Time

	cbMu      sync.RWMutex
	callbacks []func([]model.Order)
}

func New(cfg Config, store repo.IRepo, publisher Publisher, logger *logging.Logger) *Engine {
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = defaultBookDepth
	}
	if cfg.MaxStaleRetries <= 0 {
		cfg.MaxStaleRetries = defaultMaxStaleRetries
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		cfg:       cfg,
		repo:      store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Engine) domain(instrument string) *instrumentDomain {
	if d, ok := e.books.Load(instrument); ok {
		return d.(*instrumentDomain)
	}
	d, _ := e.books.LoadOrStore(instrument, newDomain(instrument))
	return d.(*instrumentDomain)
}

// RegisterOrderCallback adds fn to the callbacks invoked with every order
// changed by a committed mutation. Callbacks run under the instrument lock and
// must not call back into the engine.
func (e *Engine) RegisterOrderCallback(fn func([]model.Order)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.callbacks = append(e.callbacks, fn)
}

func (e *Engine) notify(orders []*model.Order) {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	if len(e.callbacks) == 0 {
		return
	}
	out := make([]model.Order, len(orders))
	for i, o := range orders {
		out[i] = *o.Clone()
	}
	for _, fn := range e.callbacks {
		fn(out)
	}
}

func (e *Engine) publish(ctx context.Context, d *instrumentDomain, trades []*model.Trade) {
	if e.publisher == nil {
		return
	}
	u := projector.Update{
		Instrument: d.instrument,
		Bids:       d.book.TopLevels(orderbook.BUY, e.cfg.BookDepth),
		Asks:       d.book.TopLevels(orderbook.SELL, e.cfg.BookDepth),
		At:         e.now().UTC(),
	}
	for _, t := range trades {
		u.Trades = append(u.Trades, *t)
	}
	e.publisher.Publish(ctx, u)
}

// TopOfBook returns up to depth aggregated levels per side. depth <= 0 uses the configured depth.
func (e *Engine) TopOfBook(instrument string, depth int) (bids, asks []orderbook.Level) {
	if depth <= 0 {
		depth = e.cfg.BookDepth
	}
	v, ok := e.books.Load(instrument)
	if !ok {
		return []orderbook.Level{}, []orderbook.Level{}
	}
	d := v.(*instrumentDomain)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.book.TopLevels(orderbook.BUY, depth), d.book.TopLevels(orderbook.SELL, depth)
}

// Instruments lists every instrument that currently has a domain.
func (e *Engine) Instruments() []string {
	var out []string
	e.books.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}

func (e *Engine) persistErr(ctx context.Context, o *model.Order, err error) error {
	e.logger.Error(ctx, "persist failed",
		zap.String("order_id", o.ID),
		zap.String("instrument", o.InstrumentID),
		zap.Error(err))
	return wrapPersistence(err)
}
