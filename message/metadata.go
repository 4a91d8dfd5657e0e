// Package message holds the typed metadata attached to trip chat messages.
//
// Metadata is a closed sum type: every variant is listed in this file and
// validated when decoded, so nothing downstream handles arbitrary JSON.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ouest/trip-engine/ledger"
)

// Kind tags a metadata variant on the wire.
type Kind string

const (
	KindExpense Kind = "expense"
)

var (
	// ErrUnknownKind is returned when the "type" tag names no variant.
	ErrUnknownKind = errors.New("unknown metadata type")

	// ErrInvalidMetadata is returned when a known variant fails validation.
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Metadata is implemented only by the variants in this package.
type Metadata interface {
	Kind() Kind
	validate() error
}

// ExpenseRef points a chat message at an expense.
type ExpenseRef struct {
	ExpenseID ledger.ExpenseID `json:"expense_id"`
	Title     string           `json:"title"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  ledger.Currency  `json:"currency"`
}

func (ExpenseRef) Kind() Kind { return KindExpense }

func (r ExpenseRef) validate() error {
	if r.ExpenseID == "" {
		return fmt.Errorf("%w: expense_id is required", ErrInvalidMetadata)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidMetadata)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidMetadata)
	}
	if _, err := ledger.ParseCurrency(string(r.Currency)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}

type envelope struct {
	Type Kind `json:"type"`
}

// Encode renders m as a flat JSON object with a "type" tag.
func Encode(m Metadata) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(m.Kind())
	fields["type"] = tag
	return json.Marshal(fields)
}

// Decode parses a tagged JSON object into its variant and validates it.
func Decode(data []byte) (Metadata, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	var m Metadata
	switch env.Type {
	case KindExpense:
		var ref ExpenseRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		c, err := ledger.ParseCurrency(string(ref.Currency))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		ref.Currency = c
		m = ref
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}
