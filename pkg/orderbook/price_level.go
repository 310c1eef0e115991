package orderbook

import (
	"github.com/gammazero/deque"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const btreeDegree = 32

// priceLevel holds the entries resting at one price in time priority.
type priceLevel struct {
	price   decimal.Decimal
	entries deque.Deque[*Entry]
}

// insert places e after every entry with earlier priority. Arrivals are
// almost always the newest, so the scan starts from the back.
func (l *priceLevel) insert(e *Entry) {
	i := l.entries.Len()
	for i > 0 && e.before(l.entries.At(i-1)) {
		i--
	}
	if i == l.entries.Len() {
		l.entries.PushBack(e)
		return
	}
	l.entries.Insert(i, e)
}

func (l *priceLevel) remove(orderID string) bool {
	i := l.entries.Index(func(e *Entry) bool { return e.OrderID == orderID })
	if i < 0 {
		return false
	}
	l.entries.Remove(i)
	return true
}

func (l *priceLevel) aggregate() Level {
	lvl := Level{Price: l.price, Orders: l.entries.Len()}
	for i := 0; i < l.entries.Len(); i++ {
		lvl.Quantity = lvl.Quantity.Add(l.entries.At(i).Visible())
	}
	return lvl
}

// bookSide is one side of a book. Ascend always yields the best price first.
type bookSide struct {
	levels *btree.BTreeG[*priceLevel]
	less   btree.LessFunc[*priceLevel]
	count  int
}

func newBookSide(side Side) *bookSide {
	less := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) }
	if side == BUY {
		less = func(a, b *priceLevel) bool { return a.price.GreaterThan(b.price) }
	}
	return &bookSide{levels: btree.NewG[*priceLevel](btreeDegree, less), less: less}
}

func (s *bookSide) level(price decimal.Decimal) (*priceLevel, bool) {
	return s.levels.Get(&priceLevel{price: price})
}

func (s *bookSide) add(e *Entry) {
	lvl, ok := s.level(e.Price)
	if !ok {
		lvl = &priceLevel{price: e.Price}
		s.levels.ReplaceOrInsert(lvl)
	}
	lvl.insert(e)
	s.count++
}

func (s *bookSide) remove(e *Entry) bool {
	lvl, ok := s.level(e.Price)
	if !ok || !lvl.remove(e.OrderID) {
		return false
	}
	if lvl.entries.Len() == 0 {
		s.levels.Delete(lvl)
	}
	s.count--
	return true
}

func (s *bookSide) ascend(fn func(*priceLevel) bool) {
	s.levels.Ascend(fn)
}
