package oms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	eventstore "github.com/bhanukaranwal/SetuBond/pkg/oms/event_store"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	riskrule "github.com/bhanukaranwal/SetuBond/pkg/oms/risk_rule"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCleanerInterval = time.Minute
	defaultEventRetention  = 24 * time.Hour
)

type Config struct {
	// Instruments lists the tradable instruments. Empty accepts any instrument.
	Instruments     []riskrule.InstrumentSpec
	Session         SessionConfig
	CleanerInterval time.Duration
	EventRetention  time.Duration
}

type OMS struct {
	cfg        Config
	engine     Matcher
	store      repo.IRepo
	eventstore eventstore.EventStore
	logger     *logging.Logger

	gwMu     sync.RWMutex
	gateways []OrderGateway

	instruments map[string]struct{}
	rules       []riskrule.RiskRule
	session     *Session
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewOMS(cfg Config, engine Matcher, store repo.IRepo, logger *logging.Logger, gateways ...OrderGateway) (*OMS, error) {
	if engine == nil {
		return nil, errNoMatcher
	}
	if cfg.CleanerInterval <= 0 {
		cfg.CleanerInterval = defaultCleanerInterval
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = defaultEventRetention
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rules, err := riskrule.NewRules(cfg.Instruments)
	if err != nil {
		return nil, err
	}
	session, err := NewSession(cfg.Session)
	if err != nil {
		return nil, err
	}
	instruments := make(map[string]struct{}, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		instruments[in.ID] = struct{}{}
	}

	s := &OMS{
		cfg:         cfg,
		engine:      engine,
		store:       store,
		eventstore:  eventstore.NewInMemoryEventStore(),
		logger:      logger.With(zap.String("component", "oms")),
		gateways:    gateways,
		instruments: instruments,
		rules:       rules,
		session:     session,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	engine.RegisterOrderCallback(s.onOrderUpdate)
	return s, nil
}

// AddGateway registers g for order reports. Gateways added before Start are started with the OMS.
func (s *OMS) AddGateway(g OrderGateway) {
	s.gwMu.Lock()
	defer s.gwMu.Unlock()
	s.gateways = append(s.gateways, g)
}

func (s *OMS) Start(ctx context.Context) error {
	s.gwMu.RLock()
	gateways := append([]OrderGateway(nil), s.gateways...)
	s.gwMu.RUnlock()
	for _, g := range gateways {
		if err := g.Start(ctx); err != nil {
			return err
		}
	}
	go s.startCleaner(s.cfg.CleanerInterval)
	return nil
}

func (s *OMS) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *OMS) AddOrder(ctx context.Context, addOrder *model.AddOrder) (*matching.Result, error) {
	order, err := s.newOrder(addOrder)
	if err != nil {
		return nil, err
	}
	for _, rule := range s.rules {
		if err := rule.Check(order); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
	}
	if order.ClientOrderID != "" {
		if err := s.reserve(ctx, order); err != nil {
			return nil, err
		}
	}

	res, err := s.engine.Submit(ctx, order)
	if err != nil {
		if order.ClientOrderID != "" {
			s.eventstore.ReleaseClientOrder(order.AccountID, order.ClientOrderID)
		}
		if errors.Is(err, matching.ErrInvalidOrder) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		s.logger.Error(ctx, "submit failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, err
	}
	return res, nil
}

// reserve binds the client order id so that a resend is refused, including
// after a restart when only the store remembers it.
func (s *OMS) reserve(ctx context.Context, order *model.Order) error {
	if existing, ok := s.eventstore.ReserveClientOrder(order.AccountID, order.ClientOrderID, order.ID); !ok {
		return fmt.Errorf("%w: %s already used by order %s", ErrDuplicateOrder, order.ClientOrderID, existing)
	}
	if s.store == nil {
		return nil
	}
	prev, err := s.store.Order().GetByClientID(ctx, order.AccountID, order.ClientOrderID)
	switch {
	case err == nil:
		s.eventstore.ReleaseClientOrder(order.AccountID, order.ClientOrderID)
		s.eventstore.ReserveClientOrder(order.AccountID, order.ClientOrderID, prev.ID)
		return fmt.Errorf("%w: %s already used by order %s", ErrDuplicateOrder, order.ClientOrderID, prev.ID)
	case errors.Is(err, repo.ErrNotFound):
		return nil
	default:
		s.eventstore.ReleaseClientOrder(order.AccountID, order.ClientOrderID)
		return fmt.Errorf("%w: %w", matching.ErrPersistence, err)
	}
}

func (s *OMS) CancelOrder(ctx context.Context, cancelOrder *model.CancelOrder) (*matching.CancelResult, error) {
	orderID, err := s.resolveOrderID(ctx, cancelOrder)
	if err != nil {
		return nil, err
	}
	if cancelOrder.GatewayID != "" && cancelOrder.Account != "" {
		s.eventstore.TrackClOrdChain(orderID, cancelOrder.Account, cancelOrder.GatewayID, cancelOrder.OrigGatewayID)
	}
	res, err := s.engine.Cancel(ctx, matching.CancelRequest{OrderID: orderID, InstrumentID: cancelOrder.Symbol})
	if err != nil {
		return nil, s.engineErr(err)
	}
	return res, nil
}

func (s *OMS) ExpireOrder(ctx context.Context, orderID string) (*matching.CancelResult, error) {
	res, err := s.engine.Expire(ctx, orderID)
	if err != nil {
		return nil, s.engineErr(err)
	}
	return res, nil
}

func (s *OMS) engineErr(err error) error {
	switch {
	case errors.Is(err, matching.ErrOrderNotFound):
		return fmt.Errorf("%w: %w", ErrOrderIDNotFound, err)
	case errors.Is(err, matching.ErrInvalidOrder):
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	return err
}

// onOrderUpdate records an event for every changed order and reports it to
// the gateways. It runs under the instrument lock of the engine.
func (s *OMS) onOrderUpdate(orders []model.Order) {
	ctx := context.Background()
	now := s.now().UTC()

	s.gwMu.RLock()
	defer s.gwMu.RUnlock()
	for _, o := range orders {
		ev := model.NewOrderEvent(o, s.eventstore.Last(o.ID), now)
		if latest := s.eventstore.GetLatestClOrdID(o.ID); latest != "" && latest != o.ClientOrderID {
			ev.ClOrdID = latest
			ev.OrigClOrdID = s.eventstore.GetOrigClOrdID(o.AccountID, latest)
		}
		if !s.eventstore.AddEvent(ev) {
			continue
		}
		for _, g := range s.gateways {
			g.OnOrderReport(ctx, o, ev)
		}
	}
}

func (s *OMS) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.store.Order().Get(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderIDNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrPersistence, err)
	}
	return o, nil
}

// OrderEvents returns the recorded history of an order. Once pruned, the
// history is reduced to the order's current state.
func (s *OMS) OrderEvents(ctx context.Context, orderID string) ([]*model.OrderEvent, error) {
	if evs := s.eventstore.Events(orderID); len(evs) > 0 {
		return evs, nil
	}
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ev := model.NewOrderEvent(*o, nil, o.UpdatedAt)
	ev.LastQty, ev.LastPrice = decimal.Zero, decimal.NullDecimal{}
	return []*model.OrderEvent{ev}, nil
}

func (s *OMS) Book(instrument string, depth int) (bids, asks []orderbook.Level) {
	return s.engine.TopOfBook(instrument, depth)
}

func (s *OMS) Trades(ctx context.Context, instrument string, limit int) ([]*model.Trade, error) {
	trades, err := s.store.Trade().ListByInstrument(ctx, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrPersistence, err)
	}
	return trades, nil
}
