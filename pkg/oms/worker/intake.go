package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkawrapper "github.com/bhanukaranwal/SetuBond/pkg/kafka_wrapper"
	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"go.uber.org/zap"
)

const (
	ActionAdd    = "add"
	ActionCancel = "cancel"
)

// Command is one message on the intake topic.
type Command struct {
	Action string             `json:"action"`
	Order  *model.AddOrder    `json:"order,omitempty"`
	Cancel *model.CancelOrder `json:"cancel,omitempty"`
}

// IntakeWorker feeds orders from a Kafka topic into the OMS.
type IntakeWorker struct {
	oms    oms.IOMS
	logger *logging.Logger
}

func NewIntakeWorker(o oms.IOMS, logger *logging.Logger) *IntakeWorker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IntakeWorker{oms: o, logger: logger.With(zap.String("component", "intake_worker"))}
}

// Handle processes a batch in order. Rejected commands are logged and
// skipped; only persistence failures fail the batch so that it is retried.
// A retried add is refused as a duplicate when it carries a client order id.
func (w *IntakeWorker) Handle(ctx context.Context, batch []kafkawrapper.Message) error {
	for _, m := range batch {
		var cmd Command
		if err := json.Unmarshal(m.Value, &cmd); err != nil {
			w.logger.Warn(ctx, "skip malformed command", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		err := w.apply(ctx, &cmd)
		switch {
		case err == nil:
		case errors.Is(err, matching.ErrPersistence):
			return err
		default:
			w.logger.Info(ctx, "command rejected",
				zap.String("action", cmd.Action), zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
	return nil
}

func (w *IntakeWorker) apply(ctx context.Context, cmd *Command) error {
	switch cmd.Action {
	case ActionAdd:
		if cmd.Order == nil {
			return fmt.Errorf("%w: add without order", oms.ErrInvalidOrder)
		}
		_, err := w.oms.AddOrder(logging.WithRequestID(ctx, cmd.Order.GatewayID), cmd.Order)
		return err
	case ActionCancel:
		if cmd.Cancel == nil {
			return fmt.Errorf("%w: cancel without target", oms.ErrInvalidOrder)
		}
		_, err := w.oms.CancelOrder(ctx, cmd.Cancel)
		return err
	}
	return fmt.Errorf("%w: unknown action %q", oms.ErrInvalidOrder, cmd.Action)
}
