// Package memory provides in-memory implementations of the trip and device
// token stores, for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ouest/trip-engine/ledger"
	"github.com/ouest/trip-engine/push"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store implements ledger.TripStore and push.TokenStore.
type Store struct {
	mu       sync.RWMutex
	trips    map[ledger.TripID]ledger.Trip
	members  map[ledger.TripID]map[ledger.MemberID]ledger.Member
	expenses map[ledger.TripID][]ledger.Expense
	payments map[ledger.TripID][]ledger.Payment
	tokens   map[string]push.DeviceToken // keyed by token
}

func New() *Store {
	return &Store{
		trips:    make(map[ledger.TripID]ledger.Trip),
		members:  make(map[ledger.TripID]map[ledger.MemberID]ledger.Member),
		expenses: make(map[ledger.TripID][]ledger.Expense),
		payments: make(map[ledger.TripID][]ledger.Payment),
		tokens:   make(map[string]push.DeviceToken),
	}
}

// =============================================================================
// TRIPS & MEMBERS
// =============================================================================

func (m *Store) SaveTrip(_ context.Context, trip ledger.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	m.trips[trip.ID] = trip
	return nil
}

func (m *Store) GetTrip(_ context.Context, id ledger.TripID) (ledger.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trip, ok := m.trips[id]
	if !ok {
		return ledger.Trip{}, ledger.ErrTripNotFound
	}
	return trip, nil
}

func (m *Store) AddMember(_ context.Context, member ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trips[member.TripID]; !ok {
		return ledger.ErrTripNotFound
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	if m.members[member.TripID] == nil {
		m.members[member.TripID] = make(map[ledger.MemberID]ledger.Member)
	}
	m.members[member.TripID][member.UserID] = member
	return nil
}

func (m *Store) Members(_ context.Context, tripID ledger.TripID) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.trips[tripID]; !ok {
		return nil, ledger.ErrTripNotFound
	}
	out := make([]ledger.Member, 0, len(m.members[tripID]))
	for _, mem := range m.members[tripID] {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// =============================================================================
// EXPENSES & PAYMENTS
// =============================================================================

// SaveExpense inserts or updates an expense. Ids are unique across trips.
func (m *Store) SaveExpense(_ context.Context, e ledger.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trips[e.TripID]; !ok {
		return ledger.ErrTripNotFound
	}
	for tripID, exps := range m.expenses {
		if tripID == e.TripID {
			continue
		}
		for _, existing := range exps {
			if existing.ID == e.ID {
				return ledger.ErrExpenseConflict
			}
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	exps := m.expenses[e.TripID]
	for i := range exps {
		if exps[i].ID == e.ID {
			e.CreatedAt = exps[i].CreatedAt
			exps[i] = e
			sortExpenses(exps)
			return nil
		}
	}
	exps = append(exps, e)
	sortExpenses(exps)
	m.expenses[e.TripID] = exps
	return nil
}

func (m *Store) Expenses(_ context.Context, tripID ledger.TripID) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.trips[tripID]; !ok {
		return nil, ledger.ErrTripNotFound
	}
	out := make([]ledger.Expense, len(m.expenses[tripID]))
	copy(out, m.expenses[tripID])
	return out, nil
}

func (m *Store) DeleteExpense(_ context.Context, tripID ledger.TripID, id ledger.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exps := m.expenses[tripID]
	for i := range exps {
		if exps[i].ID == id {
			m.expenses[tripID] = append(exps[:i:i], exps[i+1:]...)
			return nil
		}
	}
	return ledger.ErrExpenseNotFound
}

func (m *Store) SavePayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trips[p.TripID]; !ok {
		return ledger.ErrTripNotFound
	}
	ps := append(m.payments[p.TripID], p)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Date.Before(ps[j].Date) })
	m.payments[p.TripID] = ps
	return nil
}

func (m *Store) Payments(_ context.Context, tripID ledger.TripID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.trips[tripID]; !ok {
		return nil, ledger.ErrTripNotFound
	}
	out := make([]ledger.Payment, len(m.payments[tripID]))
	copy(out, m.payments[tripID])
	return out, nil
}

// =============================================================================
// DEVICE TOKENS
// =============================================================================

// SaveDeviceToken registers a token; re-registering moves it to the new user.
func (m *Store) SaveDeviceToken(_ context.Context, t push.DeviceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Token] = t
	return nil
}

func (m *Store) TokensForUsers(_ context.Context, userIDs []string) ([]push.DeviceToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []push.DeviceToken
	for _, t := range m.tokens {
		if wanted[t.UserID] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *Store) DeleteTokens(_ context.Context, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		delete(m.tokens, t)
	}
	return nil
}

func sortExpenses(exps []ledger.Expense) {
	sort.SliceStable(exps, func(i, j int) bool {
		if !exps[i].Date.Equal(exps[j].Date) {
			return exps[i].Date.Before(exps[j].Date)
		}
		return exps[i].CreatedAt.Before(exps[j].CreatedAt)
	})
}
