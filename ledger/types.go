/*
Package ledger provides the trip expense ledger engine.

PURPOSE:
  Turns the expenses recorded for a trip into per-member net balances and
  a minimal list of transfers that settles them. Everything in this
  package is a pure function over its inputs: no I/O, no shared state, safe
  to call from any number of goroutines.

KEY CONCEPTS IN THIS FILE (types.go):
  - MemberID / TripID / ExpenseID: Type-safe identifiers
  - Expense: Money fronted by one member and shared by a set of members
  - Payment: A recorded settle-up transfer between two members
  - Balances: Signed net amount per member, for a single currency
  - Debt: A suggested transfer, derived, never persisted

MONEY:
  All amounts are decimal.Decimal. Floating point never touches a balance.
  Splits are done in integer minor units (see split.go), so balances sum
  to exactly zero.

USAGE:
  balances, err := ledger.ComputeBalances(expenses, members)
  debts, err := ledger.ComputeSettlement(balances)

SEE ALSO:
  - split.go: Deterministic share distribution
  - balance.go: Balance computation
  - settlement.go: Greedy minimal-transfer settlement
  - trip.go: Per-currency trip summaries
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type TripID string
type ExpenseID string
type PaymentID string

// =============================================================================
// EXPENSE - Money fronted by one member for a group
// =============================================================================

// Expense is one shared cost within a trip.
//
// SplitAmong is a set: order is irrelevant and duplicates collapse. It may
// or may not contain PaidBy.
type Expense struct {
	ID         ExpenseID
	TripID     TripID
	Title      string
	Amount     decimal.Decimal
	Currency   Currency
	PaidBy     MemberID
	SplitAmong []MemberID
	Date       time.Time // when the expense was incurred
	CreatedAt  time.Time // when the record was written
}

// =============================================================================
// PAYMENT - A recorded settle-up between two members
// =============================================================================

// Payment records that From handed Amount to To outside the app.
// Applying it moves From towards zero from below and To from above.
type Payment struct {
	ID       PaymentID
	TripID   TripID
	From     MemberID
	To       MemberID
	Amount   decimal.Decimal
	Currency Currency
	Date     time.Time
}

// =============================================================================
// BALANCES - Net position per member
// =============================================================================

// Balances maps each member to a signed net amount in one currency.
// Positive: the member is owed money. Negative: the member owes money.
type Balances struct {
	Currency Currency
	Net      map[MemberID]decimal.Decimal
}

// NewBalances returns empty balances for a currency.
func NewBalances(currency Currency) Balances {
	return Balances{Currency: currency, Net: make(map[MemberID]decimal.Decimal)}
}

// Sum returns the total over all members. Zero for any valid ledger.
func (b Balances) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b.Net {
		sum = sum.Add(v)
	}
	return sum
}

// Get returns a member's balance, zero if absent.
func (b Balances) Get(id MemberID) decimal.Decimal {
	if v, ok := b.Net[id]; ok {
		return v
	}
	return decimal.Zero
}

// Members returns the member ids in sorted order.
func (b Balances) Members() []MemberID {
	ids := make([]MemberID, 0, len(b.Net))
	for id := range b.Net {
		ids = append(ids, id)
	}
	sortMembers(ids)
	return ids
}

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	out := NewBalances(b.Currency)
	for k, v := range b.Net {
		out.Net[k] = v
	}
	return out
}

func (b Balances) add(id MemberID, delta decimal.Decimal) {
	b.Net[id] = b.Get(id).Add(delta)
}

// =============================================================================
// DEBT - Suggested transfer (output only)
// =============================================================================

// Debt means From should pay To the given Amount.
type Debt struct {
	From     MemberID
	To       MemberID
	Amount   decimal.Decimal
	Currency Currency
}

func sortMembers(ids []MemberID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
