/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in
  ledger/ and push/ never carry JSON tags for the trip API; these types are
  the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Requests accept amounts as JSON numbers or strings (decimal.Decimal).
  Responses always render amounts as strings fixed at the currency scale,
  e.g. "33.34" for EUR and "1000" for JPY.

VALIDATION:
  Shape checks live in `validate` struct tags (go-playground/validator).
  Money rules (positive amounts, roster membership) are enforced by the
  ledger engine before anything is written.

SEE ALSO:
  - handlers.go: Uses these types
  - push/types.go: Wire types of the push boundary
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ouest/trip-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// TRIPS & MEMBERS
// =============================================================================

// CreateTripRequest creates a trip. ID is generated when empty.
type CreateTripRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currency" validate:"required"`
}

// TripDTO represents a trip in API responses.
type TripDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AddMemberRequest adds a user to a trip roster.
type AddMemberRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`
}

// MemberDTO represents a roster entry.
type MemberDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    string `json:"joined_at,omitempty"`
}

// =============================================================================
// EXPENSES & PAYMENTS
// =============================================================================

// CreateExpenseRequest records an expense. Currency defaults to the trip
// currency and Date to today.
type CreateExpenseRequest struct {
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	PaidBy     string          `json:"paid_by" validate:"required"`
	SplitAmong []string        `json:"split_among" validate:"required,min=1,dive,required"`
	Date       string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID         string   `json:"id"`
	TripID     string   `json:"trip_id"`
	Title      string   `json:"title"`
	Amount     string   `json:"amount"`
	Currency   string   `json:"currency"`
	PaidBy     string   `json:"paid_by"`
	SplitAmong []string `json:"split_among"`
	Date       string   `json:"date"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// CreatePaymentRequest records a settle-up payment from one member to another.
type CreatePaymentRequest struct {
	ID       string          `json:"id,omitempty"`
	From     string          `json:"from" validate:"required"`
	To       string          `json:"to" validate:"required,nefield=From"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Date     string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID       string `json:"id"`
	TripID   string `json:"trip_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Date     string `json:"date"`
}

// =============================================================================
// BALANCES & SETTLEMENT
// =============================================================================

// BalanceDTO is one member's net position. Positive means owed money.
type BalanceDTO struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

// TransferDTO is a suggested payment.
type TransferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// CurrencyBalancesDTO groups balances of one currency.
type CurrencyBalancesDTO struct {
	Currency string       `json:"currency"`
	Balances []BalanceDTO `json:"balances"`
}

// SettlementDTO is the settlement view of one currency.
type SettlementDTO struct {
	Currency  string        `json:"currency"`
	Balances  []BalanceDTO  `json:"balances"`
	Transfers []TransferDTO `json:"transfers"`
}

// =============================================================================
// DEVICES
// =============================================================================

// RegisterDeviceRequest registers an APNs device token for a user.
type RegisterDeviceRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Token  string `json:"token" validate:"required,hexadecimal"`
}

// DeviceDTO represents a registered device.
type DeviceDTO struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTripDTO(t ledger.Trip) TripDTO {
	return TripDTO{
		ID:        string(t.ID),
		Name:      t.Name,
		Currency:  string(t.Currency),
		CreatedAt: formatTime(t.CreatedAt),
	}
}

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		UserID:      string(m.UserID),
		DisplayName: m.DisplayName,
		JoinedAt:    formatTime(m.JoinedAt),
	}
}

func toExpenseDTO(e ledger.Expense) ExpenseDTO {
	split := make([]string, len(e.SplitAmong))
	for i, id := range e.SplitAmong {
		split[i] = string(id)
	}
	return ExpenseDTO{
		ID:         string(e.ID),
		TripID:     string(e.TripID),
		Title:      e.Title,
		Amount:     e.Currency.Format(e.Amount),
		Currency:   string(e.Currency),
		PaidBy:     string(e.PaidBy),
		SplitAmong: split,
		Date:       e.Date.Format(dateLayout),
		CreatedAt:  formatTime(e.CreatedAt),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:       string(p.ID),
		TripID:   string(p.TripID),
		From:     string(p.From),
		To:       string(p.To),
		Amount:   p.Currency.Format(p.Amount),
		Currency: string(p.Currency),
		Date:     p.Date.Format(dateLayout),
	}
}

func toBalanceDTOs(b ledger.Balances) []BalanceDTO {
	members := b.Members()
	dtos := make([]BalanceDTO, len(members))
	for i, id := range members {
		dtos[i] = BalanceDTO{UserID: string(id), Amount: b.Currency.Format(b.Get(id))}
	}
	return dtos
}

func toSettlementDTO(s ledger.Summary) SettlementDTO {
	transfers := make([]TransferDTO, len(s.Transfers))
	for i, d := range s.Transfers {
		transfers[i] = TransferDTO{
			From:   string(d.From),
			To:     string(d.To),
			Amount: s.Currency.Format(d.Amount),
		}
	}
	return SettlementDTO{
		Currency:  string(s.Currency),
		Balances:  toBalanceDTOs(s.Balances),
		Transfers: transfers,
	}
}

func toMemberIDs(ids []string) []ledger.MemberID {
	out := make([]ledger.MemberID, len(ids))
	for i, id := range ids {
		out[i] = ledger.MemberID(id)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
