package fixgateway

import (
	"context"
	"errors"
	"sync"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

// FixGateway accepts FIX 4.2 and 4.4 sessions and reports every order change
// back to the session that submitted the order.
type FixGateway struct {
	cfg         *FixGatewayConfig
	app         *Application
	acceptor    *quickfix.Acceptor
	omsInstance oms.IOMS
	logger      *logging.Logger

	// account|ClOrdID -> quickfix.SessionID
	sessionMapping sync.Map
	out            *outbox
	stopOnce       sync.Once
}

type FixGatewayConfig struct {
	ConfigFilepath string `yaml:"config_filepath"`
	// Shards is the number of per-symbol queues. Zero handles requests on the session goroutine.
	Shards    int `yaml:"shards"`
	QueueSize int `yaml:"queue_size"`
}

func NewFixGateway(cfg *FixGatewayConfig, logger *logging.Logger) *FixGateway {
	if cfg == nil {
		cfg = &FixGatewayConfig{Shards: defaultShards}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(zap.String("component", "fix_gateway"))
	return &FixGateway{
		cfg:    cfg,
		logger: logger,
		out:    newOutbox(nil, logger),
	}
}

func (s *FixGateway) AddOmsInstance(o oms.IOMS) {
	s.omsInstance = o
}

func (s *FixGateway) Start(ctx context.Context) error {
	settings, err := loadSettings(s.cfg.ConfigFilepath)
	if err != nil {
		return err
	}
	s.app = newApplication(s, s.cfg.Shards, s.cfg.QueueSize)
	acceptor, err := startAcceptor(s.app, settings)
	if err != nil {
		return err
	}
	s.acceptor = acceptor
	go s.out.run(ctx)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	s.logger.Info(ctx, "fix acceptor started", zap.String("config", s.cfg.ConfigFilepath))
	return nil
}

func (s *FixGateway) Stop() {
	s.stopOnce.Do(func() {
		if s.acceptor != nil {
			s.acceptor.Stop()
		}
	})
}

func accountOf(account string, sessionID quickfix.SessionID) string {
	if account != "" {
		return account
	}
	return sessionID.TargetCompID
}

func (s *FixGateway) AddOrder(ctx context.Context, req *NewOrderSingle) {
	req.Account = accountOf(req.Account, req.SessionID)
	addOrder, err := req.toAddOrder()
	if err != nil {
		s.reject(ctx, req, err)
		return
	}

	key := sessionKey(req.Account, req.ClOrdID)
	_, existed := s.sessionMapping.LoadOrStore(key, req.SessionID)
	if _, err := s.omsInstance.AddOrder(ctx, addOrder); err != nil {
		// the mapping of a duplicate belongs to the original order
		if !existed && !errors.Is(err, oms.ErrDuplicateOrder) {
			s.sessionMapping.Delete(key)
		}
		s.reject(ctx, req, err)
	}
}

func (s *FixGateway) reject(ctx context.Context, req *NewOrderSingle, err error) {
	reason := enum.OrdRejReason_OTHER
	switch {
	case errors.Is(err, oms.ErrUnknownInstrument):
		reason = enum.OrdRejReason_UNKNOWN_SYMBOL
	case errors.Is(err, oms.ErrDuplicateOrder):
		reason = enum.OrdRejReason_DUPLICATE_ORDER
	}
	s.logger.Info(ctx, "order rejected", zap.String("cl_ord_id", req.ClOrdID), zap.Error(err))

	msg, buildErr := rejectReport(req, reason, err.Error())
	if buildErr != nil {
		s.logger.Error(ctx, "build reject", zap.Error(buildErr))
		return
	}
	s.out.push(msg, req.SessionID)
}

func (s *FixGateway) CancelOrder(ctx context.Context, req *OrderCancelRequest) {
	req.Account = accountOf(req.Account, req.SessionID)
	s.sessionMapping.Store(sessionKey(req.Account, req.ClOrdID), req.SessionID)

	res, err := s.omsInstance.CancelOrder(ctx, &model.CancelOrder{
		OrderID:       req.OrderID,
		GatewayID:     req.ClOrdID,
		OrigGatewayID: req.OrigClOrdID,
		Account:       req.Account,
		Symbol:        req.Symbol,
	})
	switch {
	case err != nil:
		s.sessionMapping.Delete(sessionKey(req.Account, req.ClOrdID))
		reason := enum.CxlRejReason_OTHER
		if errors.Is(err, oms.ErrOrderIDNotFound) {
			reason = enum.CxlRejReason_UNKNOWN_ORDER
		}
		s.cancelReject(ctx, req, req.OrderID, "", reason, err.Error())
	case !res.Accepted:
		s.sessionMapping.Delete(sessionKey(req.Account, req.ClOrdID))
		s.cancelReject(ctx, req, res.Order.ID, res.Order.Status, enum.CxlRejReason_TOO_LATE_TO_CANCEL, res.Reason)
	}
}

func (s *FixGateway) cancelReject(ctx context.Context, req *OrderCancelRequest, orderID string, status model.OrderStatus, reason enum.CxlRejReason, text string) {
	msg, err := cancelReject(req, orderID, status, reason, text)
	if err != nil {
		s.logger.Error(ctx, "build cancel reject", zap.Error(err))
		return
	}
	s.out.push(msg, req.SessionID)
}

// OnOrderReport sends an execution report to the session that owns the
// event's client order id. Orders from other gateways are ignored.
func (s *FixGateway) OnOrderReport(ctx context.Context, order model.Order, event *model.OrderEvent) {
	if event.ClOrdID == "" {
		return
	}
	key := sessionKey(order.AccountID, event.ClOrdID)
	v, ok := s.sessionMapping.Load(key)
	if !ok {
		return
	}
	sessionID := v.(quickfix.SessionID)

	msg, err := executionReport(sessionID.BeginString, order, event)
	if err != nil {
		s.logger.Error(ctx, "build execution report", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	s.out.push(msg, sessionID)

	if order.Status.IsTerminal() {
		s.sessionMapping.Delete(key)
		if event.OrigClOrdID != "" {
			s.sessionMapping.Delete(sessionKey(order.AccountID, event.OrigClOrdID))
		}
	}
}
