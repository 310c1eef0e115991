package orderbook

import (
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

type located struct {
	entry *Entry
	side  Side
}

// Book is the two-sided book of one instrument. Bids are kept by descending
// price, asks by ascending price, and entries of one price by (Timestamp, Sequence).
//
// Book is not safe for concurrent use; the owner serializes access.
type Book struct {
	instrument string
	bids       *bookSide
	asks       *bookSide
	index      map[string]located
}

func New(instrument string) *Book {
	return &Book{
		instrument: instrument,
		bids:       newBookSide(BUY),
		asks:       newBookSide(SELL),
		index:      make(map[string]located),
	}
}

func (b *Book) Instrument() string {
	return b.instrument
}

func (b *Book) side(s Side) *bookSide {
	if s == BUY {
		return b.bids
	}
	return b.asks
}

// Admit inserts e on side s. It reports false, leaving the book unchanged, when
// the order id is already present or e has nothing left to trade.
func (b *Book) Admit(e Entry, s Side) bool {
	if _, ok := b.index[e.OrderID]; ok {
		return false
	}
	if !e.Remaining.IsPositive() || !e.Price.IsPositive() {
		return false
	}
	entry := &e
	b.side(s).add(entry)
	b.index[e.OrderID] = located{entry: entry, side: s}
	return true
}

// Remove deletes the entry of orderID from side s. Absent ids are a no-op.
func (b *Book) Remove(orderID string, s Side) bool {
	loc, ok := b.index[orderID]
	if !ok || loc.side != s {
		return false
	}
	b.side(s).remove(loc.entry)
	delete(b.index, orderID)
	return true
}

// Fill takes qty off the entry of orderID and removes it once exhausted.
// It returns the entry's remaining quantity.
func (b *Book) Fill(orderID string, qty decimal.Decimal) (decimal.Decimal, bool) {
	loc, ok := b.index[orderID]
	if !ok {
		return decimal.Zero, false
	}
	rem := loc.entry.Remaining.Sub(qty)
	if !rem.IsPositive() {
		b.side(loc.side).remove(loc.entry)
		delete(b.index, orderID)
		return decimal.Zero, true
	}
	loc.entry.Remaining = rem
	return rem, true
}

// Requeue gives the entry of orderID a new time priority, moving it behind
// every entry of its level that ranks before (ts, seq).
func (b *Book) Requeue(orderID string, ts time.Time, seq int64) bool {
	loc, ok := b.index[orderID]
	if !ok {
		return false
	}
	side := b.side(loc.side)
	side.remove(loc.entry)
	loc.entry.Timestamp, loc.entry.Sequence = ts, seq
	side.add(loc.entry)
	return true
}

func (b *Book) Get(orderID string) (Entry, Side, bool) {
	loc, ok := b.index[orderID]
	if !ok {
		return Entry{}, "", false
	}
	return *loc.entry, loc.side, true
}

func (b *Book) Len(s Side) int {
	return b.side(s).count
}

// Entries yields the entries of side s in matching priority.
func (b *Book) Entries(s Side) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		b.side(s).ascend(func(l *priceLevel) bool {
			for i := 0; i < l.entries.Len(); i++ {
				if !yield(*l.entries.At(i)) {
					return false
				}
			}
			return true
		})
	}
}

// BestOpposite yields the entries an incoming order on side s would match
// against, best price first and earliest first within a price. The book must
// not be mutated while the sequence is being consumed.
func (b *Book) BestOpposite(s Side) iter.Seq[Entry] {
	return b.Entries(s.Opposite())
}

// TopLevels aggregates the best n levels of side s. n <= 0 returns every level.
func (b *Book) TopLevels(s Side, n int) []Level {
	levels := make([]Level, 0, max(n, 0))
	b.side(s).ascend(func(l *priceLevel) bool {
		if n > 0 && len(levels) == n {
			return false
		}
		levels = append(levels, l.aggregate())
		return true
	})
	return levels
}

// Validate checks the ordering and uniqueness invariants of both sides.
func (b *Book) Validate() error {
	seen := 0
	for _, s := range []Side{BUY, SELL} {
		side := b.side(s)
		var (
			prev  *priceLevel
			err   error
			count int
		)
		side.ascend(func(l *priceLevel) bool {
			if l.entries.Len() == 0 {
				err = fmt.Errorf("%w: %s %s", errEmptyLevel, s, l.price)
				return false
			}
			if prev != nil && !side.less(prev, l) {
				err = fmt.Errorf("%w: %s %s then %s", errLevelOrder, s, prev.price, l.price)
				return false
			}
			prev = l
			var last *Entry
			for i := 0; i < l.entries.Len(); i++ {
				e := l.entries.At(i)
				if !e.Price.Equal(l.price) {
					err = fmt.Errorf("%w: %s at %s", errEntryPrice, e.OrderID, l.price)
					return false
				}
				if !e.Remaining.IsPositive() {
					err = fmt.Errorf("%w: %s", errEntryQuantity, e.OrderID)
					return false
				}
				if last != nil && !last.before(e) {
					err = fmt.Errorf("%w: %s then %s", errEntryOrder, last.OrderID, e.OrderID)
					return false
				}
				if loc, ok := b.index[e.OrderID]; !ok || loc.entry != e || loc.side != s {
					err = fmt.Errorf("%w: %s", errIndex, e.OrderID)
					return false
				}
				last = e
				count++
			}
			return true
		})
		if err != nil {
			return err
		}
		if count != side.count {
			return fmt.Errorf("%w: %s counted %d tracked %d", errIndex, s, count, side.count)
		}
		seen += count
	}
	if seen != len(b.index) {
		return fmt.Errorf("%w: %d entries, %d indexed", errIndex, seen, len(b.index))
	}
	return nil
}
