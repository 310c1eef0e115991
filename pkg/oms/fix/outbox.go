package fixgateway

import (
	"context"
	"sync"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/gammazero/deque"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

type outbound struct {
	msg       quickfix.Messagable
	sessionID quickfix.SessionID
}

// outbox sends messages from one goroutine in the order they were pushed.
// push never blocks, so it is safe to call under the engine lock.
type outbox struct {
	mu     sync.Mutex
	queue  deque.Deque[outbound]
	wake   chan struct{}
	send   func(quickfix.Messagable, quickfix.SessionID) error
	logger *logging.Logger
}

func newOutbox(send func(quickfix.Messagable, quickfix.SessionID) error, logger *logging.Logger) *outbox {
	if send == nil {
		send = quickfix.SendToTarget
	}
	return &outbox{
		wake:   make(chan struct{}, 1),
		send:   send,
		logger: logger,
	}
}

func (o *outbox) push(msg quickfix.Messagable, sessionID quickfix.SessionID) {
	o.mu.Lock()
	o.queue.PushBack(outbound{msg: msg, sessionID: sessionID})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) run(ctx context.Context) {
	for {
		o.drain()
		select {
		case <-o.wake:
		case <-ctx.Done():
			o.drain()
			return
		}
	}
}

func (o *outbox) drain() {
	for {
		o.mu.Lock()
		if o.queue.Len() == 0 {
			o.mu.Unlock()
			return
		}
		next := o.queue.PopFront()
		o.mu.Unlock()

		if err := o.send(next.msg, next.sessionID); err != nil {
			o.logger.Warn(context.Background(), "fix send failed",
				zap.String("session", next.sessionID.String()), zap.Error(err))
		}
	}
}
