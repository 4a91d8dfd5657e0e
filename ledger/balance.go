/*
balance.go - Net balance computation

PURPOSE:
  Answers "who is up and who is down" for one trip in one currency.

RULE:
  For each expense:
    credit PaidBy    by amount (rounded to the currency minor unit)
    debit  each id   by its share from Split()

  Because Split() distributes whole minor units and the credit uses the
  same rounded amount, every expense contributes exactly zero to the sum
  of balances. The sum over members is therefore exactly zero, not
  approximately.

VALIDATION:
  Every PaidBy and SplitAmong id must be a trip member. An unknown id is a
  DataIntegrityError: the expense is never dropped silently.

EXAMPLE:
  Members {A, B, C}, expense 30 USD paid by A split among A, B, C:
    A: +20.00   B: -10.00   C: -10.00
*/
package ledger

// =============================================================================
// BALANCE COMPUTATION
// =============================================================================

// ComputeBalances folds a single-currency expense list into net balances.
//
// Only members touched by an expense appear in the result; an empty list
// gives empty balances. Expenses in more than one currency return
// ErrMixedCurrencies (use SettleTrip for multi-currency trips).
func ComputeBalances(expenses []Expense, members []MemberID) (Balances, error) {
	roster := newRoster(members)

	var currency Currency
	if len(expenses) > 0 {
		c, err := ParseCurrency(string(expenses[0].Currency))
		if err != nil {
			return Balances{}, withExpenseID(err, expenses[0].ID)
		}
		currency = c
	}

	balances := NewBalances(currency)
	for _, e := range expenses {
		if err := applyExpense(balances, e, roster); err != nil {
			return Balances{}, err
		}
	}
	return balances, nil
}

// ApplyPayments returns a copy of balances with recorded payments applied.
// A payment from A to B moves A up and B down by the same amount.
func ApplyPayments(balances Balances, payments []Payment, members []MemberID) (Balances, error) {
	roster := newRoster(members)
	out := balances.Clone()

	for _, p := range payments {
		c, err := ParseCurrency(string(p.Currency))
		if err != nil {
			return Balances{}, err
		}
		if out.Currency == "" {
			out.Currency = c
		}
		if c != out.Currency {
			return Balances{}, &MixedCurrencyError{Want: out.Currency, Got: c}
		}
		if !p.Amount.IsPositive() {
			return Balances{}, &InvalidExpenseError{Field: "amount", Reason: "payment must be positive"}
		}
		if p.From == p.To {
			return Balances{}, &InvalidExpenseError{Field: "to", Reason: "payment to self"}
		}
		if !roster[p.From] {
			return Balances{}, &DataIntegrityError{Record: "payment", ID: string(p.ID), Role: "from", Member: p.From}
		}
		if !roster[p.To] {
			return Balances{}, &DataIntegrityError{Record: "payment", ID: string(p.ID), Role: "to", Member: p.To}
		}

		amount := c.Round(p.Amount)
		out.add(p.From, amount)
		out.add(p.To, amount.Neg())
	}
	return out, nil
}

func applyExpense(b Balances, e Expense, roster map[MemberID]bool) error {
	c, err := ParseCurrency(string(e.Currency))
	if err != nil {
		return withExpenseID(err, e.ID)
	}
	if c != b.Currency {
		return &MixedCurrencyError{Want: b.Currency, Got: c}
	}
	if !e.Amount.IsPositive() {
		return &InvalidExpenseError{ID: e.ID, Field: "amount", Reason: "must be positive"}
	}
	if len(e.SplitAmong) == 0 {
		return &InvalidExpenseError{ID: e.ID, Field: "split_among", Reason: "must not be empty"}
	}
	if !roster[e.PaidBy] {
		return &DataIntegrityError{Record: "expense", ID: string(e.ID), Role: "paid_by", Member: e.PaidBy}
	}
	for _, id := range e.SplitAmong {
		if !roster[id] {
			return &DataIntegrityError{Record: "expense", ID: string(e.ID), Role: "split_among", Member: id}
		}
	}

	shares, err := Split(e.Amount, c, e.SplitAmong)
	if err != nil {
		return withExpenseID(err, e.ID)
	}

	b.add(e.PaidBy, c.Round(e.Amount))
	for _, s := range shares {
		b.add(s.Member, s.Amount.Neg())
	}
	return nil
}

func newRoster(members []MemberID) map[MemberID]bool {
	roster := make(map[MemberID]bool, len(members))
	for _, m := range members {
		roster[m] = true
	}
	return roster
}

func withExpenseID(err error, id ExpenseID) error {
	if ie, ok := err.(*InvalidExpenseError); ok && ie.ID == "" {
		cp := *ie
		cp.ID = id
		return &cp
	}
	return err
}
