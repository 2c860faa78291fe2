package order

import (
	"context"
	"sync"
	"time"

	"antar/internal/modules/settlement"
	"antar/internal/types"
)

// memStore implements Store with the same conditional-write semantics as the
// SQL store, so service behaviour (including races) is testable without a
// database. Wallet credits and COD float changes are recorded for assertions.
type memStore struct {
	mu      sync.Mutex
	orders  map[types.ID]*Order
	events  []*Event
	wallets map[types.ID]int64
	codOwed map[types.ID]int64
	settled map[types.ID]int // settlement applications per order, must stay <= 1
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[types.ID]*Order),
		wallets: make(map[types.ID]int64),
		codOwed: make(map[types.ID]int64),
		settled: make(map[types.ID]int),
	}
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return nil, ErrConflict
	}
	o.Status = to
	o.StatusVersion++
	stamp(o, to)
	cp := *o
	return &cp, nil
}

func (m *memStore) Complete(_ context.Context, cur *Order, set settlement.Settlement) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[cur.ID]
	if !ok || o.Status != cur.Status || o.StatusVersion != cur.StatusVersion {
		return nil, ErrConflict
	}
	if o.DriverID == nil {
		return nil, ErrConsistency
	}
	o.Status = StatusCompleted
	o.StatusVersion++
	stamp(o, StatusCompleted)

	m.settled[o.ID]++
	if set.CreditWallet {
		m.wallets[*o.DriverID] += set.DriverEarning
	}
	if set.CODOwedDelta > 0 {
		m.codOwed[*o.DriverID] += set.CODOwedDelta
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// claim mirrors the dispatch coordinator's conditional write so lifecycle
// tests can move an order past ready.
func (m *memStore) claim(id, driverID types.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != StatusReady || o.DriverID != nil {
		return false
	}
	d := driverID
	o.DriverID = &d
	o.Status = StatusAccepted
	o.StatusVersion++
	stamp(o, StatusAccepted)
	return true
}

func (m *memStore) walletBalance(id types.ID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id]
}

func (m *memStore) codOwedFor(id types.ID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codOwed[id]
}

func (m *memStore) settlements(id types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled[id]
}

func stamp(o *Order, to Status) {
	now := time.Now().UTC()
	switch to {
	case StatusReady:
		if o.ReadyAt == nil {
			o.ReadyAt = &now
		}
	case StatusAccepted:
		if o.AcceptedAt == nil {
			o.AcceptedAt = &now
		}
	case StatusPickup:
		if o.PickedUpAt == nil {
			o.PickedUpAt = &now
		}
	case StatusDelivery:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case StatusCompleted:
		if o.CompletedAt == nil {
			o.CompletedAt = &now
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}
}
