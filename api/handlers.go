/*
handlers.go - HTTP API handlers for trips, ledgers and push delivery

PURPOSE:
  Exposes the ledger engine and the push dispatcher via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Push (edge function boundary):
    POST   /                                 Dispatch a notification

  Trips:
    POST   /api/trips                        Create trip
    GET    /api/trips/{id}                   Get trip
    POST   /api/trips/{id}/members           Add member
    GET    /api/trips/{id}/members           List roster

  Ledger:
    POST   /api/trips/{id}/expenses          Record expense
    GET    /api/trips/{id}/expenses          List expenses
    DELETE /api/trips/{id}/expenses/{eid}    Delete expense
    POST   /api/trips/{id}/payments          Record settle-up payment
    GET    /api/trips/{id}/balances          Net balances per currency
    GET    /api/trips/{id}/settlement        Suggested transfers per currency

  Devices:
    POST   /api/devices                      Register APNs device token

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (struct tags, then ledger rules)
  3. Call domain logic
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Missing Authorization on the push route
  - 404: Trip or expense not found
  - 409: Expense id already used by another trip
  - 413: Request body over 1 MiB
  - 422: Ledger data integrity (payer or participant not in roster)
  - 500: Store or dependency failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ouest/trip-engine/ledger"
	"github.com/ouest/trip-engine/message"
	"github.com/ouest/trip-engine/push"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DeviceRegistry stores device tokens registered by clients.
type DeviceRegistry interface {
	SaveDeviceToken(ctx context.Context, token push.DeviceToken) error
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Trips      ledger.TripStore
	Devices    DeviceRegistry
	Dispatcher *push.Dispatcher
	Log        logrus.FieldLogger

	validate *validator.Validate
	newID    func() string
	now      func() time.Time
}

// NewHandler creates a new handler. dispatcher may be nil, in which case
// expense notifications are skipped and the push route answers 503.
func NewHandler(trips ledger.TripStore, devices DeviceRegistry, dispatcher *push.Dispatcher, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Trips:      trips,
		Devices:    devices,
		Dispatcher: dispatcher,
		Log:        log,
		validate:   newValidator(),
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// =============================================================================
// PUSH HANDLER
// =============================================================================

// SendPush dispatches a notification to every device of the listed users.
func (h *Handler) SendPush(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Push dispatcher unavailable", nil)
		return
	}

	var req push.Request
	if err := readJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	report, err := h.Dispatcher.Dispatch(r.Context(), req)
	if errors.Is(err, push.ErrValidation) {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("push dispatch failed")
		writeError(w, http.StatusInternalServerError, "Failed to dispatch notification", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// TRIP HANDLERS
// =============================================================================

// CreateTrip creates a new trip.
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if !h.decode(w, r, &req) {
		return
	}

	currency, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid currency", err)
		return
	}
	id := req.ID
	if id == "" {
		id = h.newID()
	}

	trip := ledger.Trip{
		ID:        ledger.TripID(id),
		Name:      req.Name,
		Currency:  currency,
		CreatedAt: h.now().UTC(),
	}
	if err := h.Trips.SaveTrip(r.Context(), trip); err != nil {
		h.writeLedgerError(w, "Failed to create trip", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTripDTO(trip))
}

// GetTrip returns a single trip.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.Trips.GetTrip(r.Context(), tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Trip not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(trip))
}

// AddMember adds a user to a trip's roster.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	member := ledger.Member{
		TripID:      tripID(r),
		UserID:      ledger.MemberID(req.UserID),
		DisplayName: req.DisplayName,
		JoinedAt:    h.now().UTC(),
	}
	if err := h.Trips.AddMember(r.Context(), member); err != nil {
		h.writeLedgerError(w, "Failed to add member", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// ListMembers returns a trip's roster.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Trips.Members(r.Context(), tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXPENSE & PAYMENT HANDLERS
// =============================================================================

// CreateExpense records an expense after checking it against the roster.
// Other members are notified on a best-effort basis.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	trip, members, err := h.loadTrip(ctx, tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to load trip", err)
		return
	}

	currency := trip.Currency
	if req.Currency != "" {
		if currency, err = ledger.ParseCurrency(req.Currency); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid currency", err)
			return
		}
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	id := req.ID
	if id == "" {
		id = h.newID()
	}

	expense := ledger.Expense{
		ID:         ledger.ExpenseID(id),
		TripID:     trip.ID,
		Title:      req.Title,
		Amount:     currency.Round(req.Amount),
		Currency:   currency,
		PaidBy:     ledger.MemberID(req.PaidBy),
		SplitAmong: toMemberIDs(req.SplitAmong),
		Date:       date,
		CreatedAt:  h.now().UTC(),
	}

	// Reject anything the ledger would refuse later.
	if _, err := ledger.ComputeBalances([]ledger.Expense{expense}, ledger.MemberIDs(members)); err != nil {
		h.writeLedgerError(w, "Invalid expense", err)
		return
	}
	if err := h.Trips.SaveExpense(ctx, expense); err != nil {
		h.writeLedgerError(w, "Failed to save expense", err)
		return
	}

	h.notifyExpense(ctx, trip, expense, members)
	writeJSON(w, http.StatusCreated, toExpenseDTO(expense))
}

// ListExpenses returns a trip's expenses in date order.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Trips.Expenses(r.Context(), tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteExpense removes an expense.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := ledger.ExpenseID(chi.URLParam(r, "expenseID"))
	if err := h.Trips.DeleteExpense(r.Context(), tripID(r), expenseID); err != nil {
		h.writeLedgerError(w, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePayment records that one member paid another back.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	trip, members, err := h.loadTrip(ctx, tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to load trip", err)
		return
	}

	currency := trip.Currency
	if req.Currency != "" {
		if currency, err = ledger.ParseCurrency(req.Currency); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid currency", err)
			return
		}
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	id := req.ID
	if id == "" {
		id = h.newID()
	}

	payment := ledger.Payment{
		ID:       ledger.PaymentID(id),
		TripID:   trip.ID,
		From:     ledger.MemberID(req.From),
		To:       ledger.MemberID(req.To),
		Amount:   currency.Round(req.Amount),
		Currency: currency,
		Date:     date,
	}

	if _, err := ledger.ApplyPayments(ledger.NewBalances(currency), []ledger.Payment{payment}, ledger.MemberIDs(members)); err != nil {
		h.writeLedgerError(w, "Invalid payment", err)
		return
	}
	if err := h.Trips.SavePayment(ctx, payment); err != nil {
		h.writeLedgerError(w, "Failed to save payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// =============================================================================
// BALANCE & SETTLEMENT HANDLERS
// =============================================================================

// GetBalances returns every member's net position, one entry per currency.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.settle(r.Context(), tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to compute balances", err)
		return
	}

	dtos := make([]CurrencyBalancesDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = CurrencyBalancesDTO{
			Currency: string(s.Currency),
			Balances: toBalanceDTOs(s.Balances),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettlement returns the suggested transfers, one entry per currency.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.settle(r.Context(), tripID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to compute settlement", err)
		return
	}

	dtos := make([]SettlementDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toSettlementDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) settle(ctx context.Context, id ledger.TripID) ([]ledger.Summary, error) {
	_, members, err := h.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	expenses, err := h.Trips.Expenses(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := h.Trips.Payments(ctx, id)
	if err != nil {
		return nil, err
	}
	return ledger.SettleTrip(expenses, payments, ledger.MemberIDs(members))
}

// =============================================================================
// DEVICE HANDLERS
// =============================================================================

// RegisterDevice stores a device token for push delivery.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if !h.decode(w, r, &req) {
		return
	}

	device := push.DeviceToken{
		ID:     h.newID(),
		UserID: req.UserID,
		Token:  req.Token,
	}
	if err := h.Devices.SaveDeviceToken(r.Context(), device); err != nil {
		h.Log.WithError(err).Error("error registering device")
		writeError(w, http.StatusInternalServerError, "Failed to register device", err)
		return
	}

	writeJSON(w, http.StatusCreated, DeviceDTO{ID: device.ID, UserID: device.UserID, Token: device.Token})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadTrip(ctx context.Context, id ledger.TripID) (ledger.Trip, []ledger.Member, error) {
	trip, err := h.Trips.GetTrip(ctx, id)
	if err != nil {
		return ledger.Trip{}, nil, err
	}
	members, err := h.Trips.Members(ctx, id)
	if err != nil {
		return ledger.Trip{}, nil, err
	}
	return trip, members, nil
}

// notifyExpense pushes the new expense to every other member. Failures
// never fail the request.
func (h *Handler) notifyExpense(ctx context.Context, trip ledger.Trip, e ledger.Expense, members []ledger.Member) {
	if h.Dispatcher == nil {
		return
	}

	var recipients []string
	for _, m := range members {
		if m.UserID != e.PaidBy {
			recipients = append(recipients, string(m.UserID))
		}
	}
	if len(recipients) == 0 {
		return
	}

	meta, err := message.Encode(message.ExpenseRef{
		ExpenseID: e.ID,
		Title:     e.Title,
		Amount:    e.Amount,
		Currency:  e.Currency,
	})
	if err != nil {
		h.Log.WithError(err).Warn("error encoding expense metadata")
		return
	}

	title := trip.Name
	if title == "" {
		title = "New expense"
	}
	report, err := h.Dispatcher.Dispatch(ctx, push.Request{
		UserIDs: recipients,
		Title:   title,
		Body:    fmt.Sprintf("%s added %s: %s %s", e.PaidBy, e.Title, e.Currency.Format(e.Amount), e.Currency),
		Data: map[string]string{
			"trip_id":  string(trip.ID),
			"metadata": string(meta),
		},
	})
	if err != nil {
		h.Log.WithError(err).WithField("expense", e.ID).Warn("error notifying trip members")
		return
	}
	h.Log.WithFields(logrus.Fields{
		"expense": e.ID,
		"sent":    report.Sent,
		"failed":  report.Failed,
	}).Debug("expense notification dispatched")
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		now := h.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, s)
}

// decode reads and validates a JSON body. On failure it writes a 400 and
// returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := readJSON(w, r, dst); err != nil {
		writeDecodeError(w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation_error",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

// readJSON reads at most maxBodyBytes of JSON into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body", err)
}

// writeLedgerError maps ledger and store errors to HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ledger.ErrDataIntegrity):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   msg,
			Code:    "data_integrity",
			Details: err.Error(),
		})
	case errors.Is(err, ledger.ErrExpenseConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   msg,
			Code:    "conflict",
			Details: err.Error(),
		})
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   msg,
			Code:    "not_found",
			Details: err.Error(),
		})
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		h.Log.WithError(err).Error(msg)
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

func tripID(r *http.Request) ledger.TripID {
	return ledger.TripID(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
