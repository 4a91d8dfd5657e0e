/*
errors.go - Error types for the ledger engine

ERROR CATEGORIES:
  1. Data integrity - an expense references someone outside the trip.
     Upstream data is inconsistent; the engine cannot repair it.
  2. Invalid expense - a malformed amount, split, or currency.
  3. Precondition - mixed currencies, unbalanced input to settlement.

USAGE:
  if errors.Is(err, ledger.ErrDataIntegrity) {
      // surface to the caller, never drop the expense
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDataIntegrity is returned when an expense or payment references a
	// member id that is not part of the trip.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrInvalidExpense is returned for non-positive amounts, empty splits
	// and malformed currency codes.
	ErrInvalidExpense = errors.New("invalid expense")

	// ErrMixedCurrencies is returned when a single-currency computation is
	// given amounts in more than one currency.
	ErrMixedCurrencies = errors.New("mixed currencies")

	// ErrUnbalanced is returned when balances handed to settlement do not
	// sum to zero.
	ErrUnbalanced = errors.New("balances do not sum to zero")

	// ErrTripNotFound is returned by stores when a trip does not exist.
	ErrTripNotFound = errors.New("trip not found")

	// ErrExpenseNotFound is returned by stores when an expense does not exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrExpenseConflict is returned by stores when an expense id already
	// belongs to another trip.
	ErrExpenseConflict = errors.New("expense id belongs to another trip")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DataIntegrityError names the record and the unknown member it references.
type DataIntegrityError struct {
	Record string // "expense" or "payment"
	ID     string
	Role   string // "paid_by", "split_among", "from", "to"
	Member MemberID
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%s %s: %s references unknown member %q", e.Record, e.ID, e.Role, e.Member)
}

func (e *DataIntegrityError) Unwrap() error {
	return ErrDataIntegrity
}

// InvalidExpenseError describes a malformed field.
type InvalidExpenseError struct {
	ID     ExpenseID
	Field  string
	Reason string
}

func (e *InvalidExpenseError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("expense %s: invalid %s: %s", e.ID, e.Field, e.Reason)
}

func (e *InvalidExpenseError) Unwrap() error {
	return ErrInvalidExpense
}

// MixedCurrencyError reports the first currency mismatch found.
type MixedCurrencyError struct {
	Want Currency
	Got  Currency
}

func (e *MixedCurrencyError) Error() string {
	return fmt.Sprintf("mixed currencies: expected %s, got %s", e.Want, e.Got)
}

func (e *MixedCurrencyError) Unwrap() error {
	return ErrMixedCurrencies
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidExpense) ||
		errors.Is(err, ErrMixedCurrencies)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTripNotFound) ||
		errors.Is(err, ErrExpenseNotFound)
}
