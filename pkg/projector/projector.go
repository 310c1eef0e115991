package projector

import (
	"context"
	"sync"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"go.uber.org/zap"
)

// Sink receives projections in the order the engine produced them.
type Sink interface {
	Name() string
	OnTrade(ctx context.Context, ev TradeEvent) error
	OnBookUpdate(ctx context.Context, ev BookUpdate) error
}

// Projector fans committed updates out to sinks and subscribers from a single
// dispatcher goroutine, so every consumer sees one instrument's updates in order.
//
// Publish never blocks. Once more than buffer updates are waiting, a new update
// is folded into the instrument's last queued one: its trades are appended and
// its book snapshot replaces the older one. Trades are never dropped.
type Projector struct {
	logger *logging.Logger
	sinks  []Sink
	limit  int

	qmu     sync.Mutex
	pending []*Update
	last    map[string]*Update
	wake    chan struct{}

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int

	closeOnce sync.Once
	done      chan struct{}
}

func New(logger *logging.Logger, buffer int, sinks ...Sink) *Projector {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Projector{
		logger: logger,
		sinks:  sinks,
		limit:  buffer,
		last:   make(map[string]*Update),
		wake:   make(chan struct{}, 1),
		subs:   make(map[int]chan Event),
		done:   make(chan struct{}),
	}
}

// Publish enqueues u. Callers hold the instrument lock, so it must not wait on the dispatcher.
func (p *Projector) Publish(ctx context.Context, u Update) {
	select {
	case <-p.done:
		return
	default:
	}
	p.qmu.Lock()
	if prev, ok := p.last[u.Instrument]; ok && len(p.pending) >= p.limit {
		prev.Trades = append(prev.Trades[:len(prev.Trades):len(prev.Trades)], u.Trades...)
		prev.Bids, prev.Asks, prev.At = u.Bids, u.Asks, u.At
		p.qmu.Unlock()
		p.logger.Debug(ctx, "projection coalesced", zap.String("instrument", u.Instrument))
		return
	}
	nu := u
	p.pending = append(p.pending, &nu)
	p.last[u.Instrument] = &nu
	p.qmu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Projector) pop() (Update, bool) {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if len(p.pending) == 0 {
		return Update{}, false
	}
	u := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	if p.last[u.Instrument] == u {
		delete(p.last, u.Instrument)
	}
	return *u, true
}

// Run dispatches until ctx is cancelled or Close is called, then drains what is queued.
func (p *Projector) Run(ctx context.Context) {
	for {
		select {
		case <-p.wake:
			p.drain(ctx)
		case <-ctx.Done():
			p.drain(context.Background())
			return
		case <-p.done:
			p.drain(context.Background())
			return
		}
	}
}

func (p *Projector) drain(ctx context.Context) {
	for {
		u, ok := p.pop()
		if !ok {
			return
		}
		p.dispatch(ctx, u)
	}
}

func (p *Projector) dispatch(ctx context.Context, u Update) {
	book := u.book()
	for _, tr := range u.trades() {
		p.broadcast(Event{Trade: &tr})
		for _, s := range p.sinks {
			if err := s.OnTrade(ctx, tr); err != nil {
				p.logger.Error(ctx, "sink trade failed", zap.String("sink", s.Name()), zap.String("trade_id", tr.TradeID), zap.Error(err))
			}
		}
	}
	p.broadcast(Event{Book: &book})
	for _, s := range p.sinks {
		if err := s.OnBookUpdate(ctx, book); err != nil {
			p.logger.Error(ctx, "sink book update failed", zap.String("sink", s.Name()), zap.String("instrument", book.Instrument), zap.Error(err))
		}
	}
}

// Subscribe returns an in-process event stream. Events are dropped for a
// subscriber whose buffer is full. The returned func unsubscribes.
func (p *Projector) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *Projector) broadcast(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *Projector) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
