package eventstore

import (
	"sync"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
)

type InMemoryEventStore struct {
	mu            sync.RWMutex
	orders        map[string][]*model.OrderEvent
	eventIDs      map[string]struct{}
	clients       map[string]string   // account|ClOrdID -> OrderID
	orderKeys     map[string][]string // OrderID -> account|ClOrdID keys bound to it
	latestClOrdID map[string]string   // OrderID -> current ClOrdID
	clOrdChain    map[string]string   // account|ClOrdID -> OrigClOrdID
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		orders:        make(map[string][]*model.OrderEvent),
		eventIDs:      make(map[string]struct{}),
		clients:       make(map[string]string),
		orderKeys:     make(map[string][]string),
		latestClOrdID: make(map[string]string),
		clOrdChain:    make(map[string]string),
	}
}

func clientKey(accountID, clOrdID string) string {
	return accountID + "|" + clOrdID
}

func (s *InMemoryEventStore) AddEvent(ev *model.OrderEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eventIDs[ev.EventID]; ok {
		return false
	}
	s.eventIDs[ev.EventID] = struct{}{}
	s.orders[ev.OrderID] = append(s.orders[ev.OrderID], ev)
	if _, ok := s.latestClOrdID[ev.OrderID]; !ok && ev.ClOrdID != "" {
		s.latestClOrdID[ev.OrderID] = ev.ClOrdID
	}
	return true
}

func (s *InMemoryEventStore) Events(orderID string) []*model.OrderEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.orders[orderID]
	out := make([]*model.OrderEvent, len(evs))
	copy(out, evs)
	return out
}

func (s *InMemoryEventStore) Last(orderID string) *model.OrderEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.orders[orderID]
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func (s *InMemoryEventStore) ReserveClientOrder(accountID, clOrdID, orderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := clientKey(accountID, clOrdID)
	if existing, ok := s.clients[key]; ok {
		return existing, false
	}
	s.clients[key] = orderID
	s.orderKeys[orderID] = append(s.orderKeys[orderID], key)
	return orderID, true
}

func (s *InMemoryEventStore) ReleaseClientOrder(accountID, clOrdID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := clientKey(accountID, clOrdID)
	orderID, ok := s.clients[key]
	if !ok {
		return
	}
	delete(s.clients, key)
	delete(s.orderKeys, orderID)
}

func (s *InMemoryEventStore) GetOrderID(accountID, clOrdID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.clients[clientKey(accountID, clOrdID)]
}

// TrackClOrdChain records that clOrdID now refers to orderID, replacing origClOrdID.
func (s *InMemoryEventStore) TrackClOrdChain(orderID, accountID, clOrdID, origClOrdID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latestClOrdID[orderID] = clOrdID
	key := clientKey(accountID, clOrdID)
	if _, ok := s.clients[key]; !ok {
		s.clients[key] = orderID
		s.orderKeys[orderID] = append(s.orderKeys[orderID], key)
	}
	if origClOrdID != "" {
		s.clOrdChain[key] = origClOrdID
	}
}

func (s *InMemoryEventStore) GetLatestClOrdID(orderID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestClOrdID[orderID]
}

// GetOrigClOrdID returns the immediate OrigClOrdID for a given ClOrdID
func (s *InMemoryEventStore) GetOrigClOrdID(accountID, clOrdID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.clOrdChain[clientKey(accountID, clOrdID)]
}

// ReconstructChain walks backward to get full chain of ClOrdIDs
func (s *InMemoryEventStore) ReconstructChain(accountID, clOrdID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []string
	seen := map[string]bool{}
	for curr := clOrdID; curr != "" && !seen[curr]; curr = s.clOrdChain[clientKey(accountID, curr)] {
		seen[curr] = true
		chain = append(chain, curr)
	}
	return chain
}

func (s *InMemoryEventStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for orderID, evs := range s.orders {
		last := evs[len(evs)-1]
		if !last.Status.IsTerminal() || !last.Timestamp.Before(before) {
			continue
		}
		for _, ev := range evs {
			delete(s.eventIDs, ev.EventID)
		}
		for _, key := range s.orderKeys[orderID] {
			delete(s.clients, key)
			delete(s.clOrdChain, key)
		}
		delete(s.orderKeys, orderID)
		delete(s.latestClOrdID, orderID)
		delete(s.orders, orderID)
		n++
	}
	return n
}
