package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Share is one participant's part of an expense.
type Share struct {
	Member MemberID
	Amount decimal.Decimal
}

// Split divides amount among participants in integer minor units.
//
// Participants are de-duplicated and sorted by id. Each one gets
// floor(minor/n) units; the remaining minor%n units go one each to the
// first participants in that order. The shares always add up to the
// amount rounded to the currency scale.
//
//   Split(10.00 USD, [c, a, b]) -> a: 3.34, b: 3.33, c: 3.33
func Split(amount decimal.Decimal, currency Currency, participants []MemberID) ([]Share, error) {
	if !amount.IsPositive() {
		return nil, &InvalidExpenseError{Field: "amount", Reason: "must be positive"}
	}
	members := uniqueSorted(participants)
	if len(members) == 0 {
		return nil, &InvalidExpenseError{Field: "split_among", Reason: "must not be empty"}
	}

	scale := currency.Scale()
	rounded := currency.Round(amount)
	if !rounded.IsPositive() {
		return nil, &InvalidExpenseError{Field: "amount", Reason: "rounds to zero at currency precision"}
	}

	// big.Int keeps amounts beyond int64 minor units exact.
	minor := rounded.Shift(scale).BigInt()
	base, rem := new(big.Int).QuoRem(minor, big.NewInt(int64(len(members))), new(big.Int))
	extra := rem.Int64()

	shares := make([]Share, len(members))
	for i, m := range members {
		units := new(big.Int).Set(base)
		if int64(i) < extra {
			units.Add(units, big.NewInt(1))
		}
		shares[i] = Share{Member: m, Amount: decimal.NewFromBigInt(units, -scale)}
	}
	return shares, nil
}

func uniqueSorted(ids []MemberID) []MemberID {
	seen := make(map[MemberID]bool, len(ids))
	out := make([]MemberID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sortMembers(out)
	return out
}
