/*
settlement.go - Greedy minimal-transfer settlement

ALGORITHM:
  1. Partition members into creditors (balance > 0) and debtors (< 0).
  2. Sort both sides by magnitude, largest first, ties by member id.
  3. Match the largest debtor with the largest creditor and transfer
     min(|debtor|, creditor).
  4. Drop whoever reached zero, re-sort, repeat until both sides are empty.

GUARANTEES:
  - Every step zeroes at least one party and the last step zeroes two, so
    at most (members - 1) transfers are produced.
  - Every transfer is strictly positive.
  - Applying all transfers zeroes every balance exactly (decimal math).
  - Same input, same output: ordering never depends on map iteration.

PRECONDITION:
  Balances are for a single currency and sum to zero. Anything else is
  rejected with ErrUnbalanced rather than settled approximately.
*/
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type position struct {
	member MemberID
	amount decimal.Decimal // magnitude, always positive
}

// ComputeSettlement returns the transfers that bring every balance to zero.
func ComputeSettlement(balances Balances) ([]Debt, error) {
	if sum := balances.Sum(); !sum.IsZero() {
		return nil, fmt.Errorf("%w: residue %s", ErrUnbalanced, sum.String())
	}

	var creditors, debtors []position
	for _, id := range balances.Members() {
		v := balances.Net[id]
		switch {
		case v.IsPositive():
			creditors = append(creditors, position{member: id, amount: v})
		case v.IsNegative():
			debtors = append(debtors, position{member: id, amount: v.Neg()})
		}
	}

	debts := make([]Debt, 0)
	for len(creditors) > 0 && len(debtors) > 0 {
		sortPositions(creditors)
		sortPositions(debtors)

		c, d := &creditors[0], &debtors[0]
		amount := decimal.Min(c.amount, d.amount)
		debts = append(debts, Debt{
			From:     d.member,
			To:       c.member,
			Amount:   amount,
			Currency: balances.Currency,
		})

		c.amount = c.amount.Sub(amount)
		d.amount = d.amount.Sub(amount)
		creditors = dropSettled(creditors)
		debtors = dropSettled(debtors)
	}
	return debts, nil
}

// Apply returns balances after every debt has been paid. Used to verify a
// settlement: the result is all zeros.
func Apply(balances Balances, debts []Debt) Balances {
	out := balances.Clone()
	for _, d := range debts {
		out.add(d.From, d.Amount)
		out.add(d.To, d.Amount.Neg())
	}
	return out
}

func sortPositions(ps []position) {
	sort.Slice(ps, func(i, j int) bool {
		if cmp := ps[i].amount.Cmp(ps[j].amount); cmp != 0 {
			return cmp > 0
		}
		return ps[i].member < ps[j].member
	})
}

func dropSettled(ps []position) []position {
	out := ps[:0]
	for _, p := range ps {
		if !p.amount.IsZero() {
			out = append(out, p)
		}
	}
	return out
}
