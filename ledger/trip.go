package ledger

import (
	"sort"
	"time"
)

// Trip is a shared travel plan. Currency is the default for new expenses.
type Trip struct {
	ID        TripID
	Name      string
	Currency  Currency
	CreatedAt time.Time
}

// Member is a user participating in a trip.
type Member struct {
	TripID      TripID
	UserID      MemberID
	DisplayName string
	JoinedAt    time.Time
}

// Summary is the settlement view of one currency within a trip.
type Summary struct {
	Currency  Currency
	Balances  Balances
	Transfers []Debt
}

// SettleTrip computes one Summary per currency present in the trip's
// expenses and payments, sorted by currency code. Currencies are never
// mixed: each is balanced and settled on its own.
func SettleTrip(expenses []Expense, payments []Payment, members []MemberID) ([]Summary, error) {
	byCurrency := make(map[Currency][]Expense)
	paymentsByCurrency := make(map[Currency][]Payment)

	for _, e := range expenses {
		c, err := ParseCurrency(string(e.Currency))
		if err != nil {
			return nil, withExpenseID(err, e.ID)
		}
		e.Currency = c
		byCurrency[c] = append(byCurrency[c], e)
	}
	for _, p := range payments {
		c, err := ParseCurrency(string(p.Currency))
		if err != nil {
			return nil, err
		}
		p.Currency = c
		paymentsByCurrency[c] = append(paymentsByCurrency[c], p)
	}

	currencies := make([]Currency, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	for c := range paymentsByCurrency {
		if _, ok := byCurrency[c]; !ok {
			currencies = append(currencies, c)
		}
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })

	summaries := make([]Summary, 0, len(currencies))
	for _, c := range currencies {
		balances, err := ComputeBalances(byCurrency[c], members)
		if err != nil {
			return nil, err
		}
		balances.Currency = c
		balances, err = ApplyPayments(balances, paymentsByCurrency[c], members)
		if err != nil {
			return nil, err
		}
		transfers, err := ComputeSettlement(balances)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{Currency: c, Balances: balances, Transfers: transfers})
	}
	return summaries, nil
}
