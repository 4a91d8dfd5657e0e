/*
store.go - Persistence interface for trips and their ledger rows

PURPOSE:
  The ledger engine itself never does I/O. This interface is what the HTTP
  layer uses to fetch the rows it feeds into the engine.

IMPLEMENTATIONS:
  - store/sqlite: SQLite-backed row store
  - store/memory: In-memory, for tests and local runs

CONTRACT:
  - Lookups on a missing trip return ErrTripNotFound.
  - Expenses and Payments are returned in (date, created_at) order.
  - Members are returned sorted by user id.
  - Expense ids are unique across trips: SaveExpense with an id owned by
    another trip returns ErrExpenseConflict and changes nothing.
*/
package ledger

import "context"

// TripStore persists trips, members, expenses and payments.
type TripStore interface {
	SaveTrip(ctx context.Context, trip Trip) error
	GetTrip(ctx context.Context, id TripID) (Trip, error)

	AddMember(ctx context.Context, member Member) error
	Members(ctx context.Context, tripID TripID) ([]Member, error)

	SaveExpense(ctx context.Context, expense Expense) error
	Expenses(ctx context.Context, tripID TripID) ([]Expense, error)
	DeleteExpense(ctx context.Context, tripID TripID, id ExpenseID) error

	SavePayment(ctx context.Context, payment Payment) error
	Payments(ctx context.Context, tripID TripID) ([]Payment, error)
}

// MemberIDs extracts the user ids of a roster.
func MemberIDs(members []Member) []MemberID {
	ids := make([]MemberID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}
