/*
handlers_test.go - HTTP tests for the push boundary and trip API

Tests for:
- Authorization and method checks on the push route
- Dispatch status mapping (400/500/200)
- Trip, expense and payment flow through balances and settlement
- Ledger error mapping (404/422/400)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ouest/trip-engine/push"
	"github.com/ouest/trip-engine/push/pushmock"
	"github.com/ouest/trip-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// stubSender answers with a fixed status per device token.
type stubSender map[string]int

func (s stubSender) Send(_ context.Context, _ string, token string, _ push.Notification) push.Result {
	status := s[token]
	return push.Result{Token: token, Success: status == http.StatusOK, Status: status}
}

type stubSigner struct{}

func (stubSigner) Sign(time.Time) (string, error) { return "jwt", nil }

func newTestHandler(t *testing.T, tokens push.TokenStore, sender push.Sender) (*Handler, *memory.Store) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memory.New()
	if tokens == nil {
		tokens = store
	}
	dispatcher := push.NewDispatcher(tokens, sender, stubSigner{}, push.WithLogger(logger))
	h := NewHandler(store, store, dispatcher, logger)
	h.now = func() time.Time { return time.Date(2026, time.July, 14, 10, 0, 0, 0, time.UTC) }
	return h, store
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var auth = map[string]string{"Authorization": "Bearer test"}

func pushBody() map[string]any {
	return map[string]any{
		"user_ids": []string{"u1"},
		"title":    "Lisbon",
		"body":     "Alice added Dinner",
	}
}

// =============================================================================
// PUSH BOUNDARY
// =============================================================================

func TestSendPush_MissingAuthorization(t *testing.T) {
	// GIVEN: a token store that fails the test on any call
	ctrl := gomock.NewController(t)
	tokens := pushmock.NewMockTokenStore(ctrl)
	h, _ := newTestHandler(t, tokens, stubSender{})

	// WHEN
	rec := do(t, NewRouter(h), http.MethodPost, "/", pushBody(), nil)

	// THEN
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
}

func TestSendPush_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})

	rec := do(t, NewRouter(h), http.MethodGet, "/", nil, auth)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSendPush_BadRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := pushmock.NewMockTokenStore(ctrl)
	h, _ := newTestHandler(t, tokens, stubSender{})
	router := NewRouter(h)

	for name, body := range map[string]any{
		"malformed json": "{not json",
		"no users":       map[string]any{"user_ids": []string{}, "title": "t", "body": "b"},
		"no title":       map[string]any{"user_ids": []string{"u1"}, "body": "b"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/", body, auth)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestSendPush_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := pushmock.NewMockTokenStore(ctrl)
	tokens.EXPECT().TokensForUsers(gomock.Any(), []string{"u1"}).Return(nil, errors.New("db down"))
	h, _ := newTestHandler(t, tokens, stubSender{})

	rec := do(t, NewRouter(h), http.MethodPost, "/", pushBody(), auth)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendPush_ReportsAndPrunesTokens(t *testing.T) {
	// GIVEN: u1 has two devices, APNs rejects one as unregistered
	h, store := newTestHandler(t, nil, stubSender{"aa11": 200, "bb22": 410})
	ctx := context.Background()
	require.NoError(t, store.SaveDeviceToken(ctx, push.DeviceToken{ID: "1", UserID: "u1", Token: "aa11"}))
	require.NoError(t, store.SaveDeviceToken(ctx, push.DeviceToken{ID: "2", UserID: "u1", Token: "bb22"}))

	// WHEN
	rec := do(t, NewRouter(h), http.MethodPost, "/", pushBody(), auth)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, push.Report{Sent: 1, Failed: 1, Total: 2}, decodeBody[push.Report](t, rec))

	left, err := store.TokensForUsers(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "aa11", left[0].Token)
}

func TestSendPush_NoTokensMessage(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})

	rec := do(t, NewRouter(h), http.MethodPost, "/", pushBody(), auth)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[push.Report](t, rec)
	assert.Equal(t, 0, report.Sent)
	assert.NotEmpty(t, report.Message)
}

// =============================================================================
// TRIP LEDGER FLOW
// =============================================================================

func seedTrip(t *testing.T, router http.Handler) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/trips", CreateTripRequest{ID: "t1", Name: "Lisbon", Currency: "eur"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "EUR", decodeBody[TripDTO](t, rec).Currency)

	for _, id := range []string{"carol", "alice", "bob"} {
		rec := do(t, router, http.MethodPost, "/api/trips/t1/members", AddMemberRequest{UserID: id}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestTripFlow_BalancesAndSettlement(t *testing.T) {
	// GIVEN: alice pays 100.00 EUR split three ways
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	seedTrip(t, router)

	rec := do(t, router, http.MethodPost, "/api/trips/t1/expenses", map[string]any{
		"title":       "Dinner",
		"amount":      "100",
		"paid_by":     "alice",
		"split_among": []string{"alice", "bob", "carol"},
		"date":        "2026-07-13",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	expense := decodeBody[ExpenseDTO](t, rec)
	assert.Equal(t, "100.00", expense.Amount)
	assert.Equal(t, "EUR", expense.Currency)
	assert.NotEmpty(t, expense.ID)

	// WHEN
	rec = do(t, router, http.MethodGet, "/api/trips/t1/balances", nil, nil)

	// THEN: the extra cent lands on the first member by id
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decodeBody[[]CurrencyBalancesDTO](t, rec)
	require.Len(t, balances, 1)
	assert.Equal(t, []BalanceDTO{
		{UserID: "alice", Amount: "66.66"},
		{UserID: "bob", Amount: "-33.33"},
		{UserID: "carol", Amount: "-33.33"},
	}, balances[0].Balances)

	rec = do(t, router, http.MethodGet, "/api/trips/t1/settlement", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settlement := decodeBody[[]SettlementDTO](t, rec)
	require.Len(t, settlement, 1)
	assert.Equal(t, []TransferDTO{
		{From: "bob", To: "alice", Amount: "33.33"},
		{From: "carol", To: "alice", Amount: "33.33"},
	}, settlement[0].Transfers)

	// WHEN: bob pays alice back
	rec = do(t, router, http.MethodPost, "/api/trips/t1/payments", map[string]any{
		"from": "bob", "to": "alice", "amount": 33.33,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: only carol still owes
	rec = do(t, router, http.MethodGet, "/api/trips/t1/settlement", nil, nil)
	settlement = decodeBody[[]SettlementDTO](t, rec)
	require.Len(t, settlement, 1)
	assert.Equal(t, []TransferDTO{{From: "carol", To: "alice", Amount: "33.33"}}, settlement[0].Transfers)
}

func TestTripFlow_MultipleCurrencies(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	seedTrip(t, router)

	for _, body := range []map[string]any{
		{"title": "Hotel", "amount": 90, "paid_by": "bob", "split_among": []string{"alice", "bob", "carol"}},
		{"title": "Sushi", "amount": 3000, "currency": "jpy", "paid_by": "carol", "split_among": []string{"alice", "carol"}},
	} {
		rec := do(t, router, http.MethodPost, "/api/trips/t1/expenses", body, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, router, http.MethodGet, "/api/trips/t1/settlement", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settlement := decodeBody[[]SettlementDTO](t, rec)
	require.Len(t, settlement, 2)

	assert.Equal(t, "EUR", settlement[0].Currency)
	assert.Len(t, settlement[0].Transfers, 2)
	assert.Equal(t, "JPY", settlement[1].Currency)
	assert.Equal(t, []TransferDTO{{From: "alice", To: "carol", Amount: "1500"}}, settlement[1].Transfers)
}

func TestTripFlow_DeleteExpense(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	seedTrip(t, router)

	rec := do(t, router, http.MethodPost, "/api/trips/t1/expenses", map[string]any{
		"id": "e1", "title": "Taxi", "amount": "12.50", "paid_by": "alice", "split_among": []string{"bob"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/api/trips/t1/expenses/e1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/trips/t1/expenses/e1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/trips/t1/expenses", nil, nil)
	assert.Empty(t, decodeBody[[]ExpenseDTO](t, rec))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestTripErrors(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	seedTrip(t, router)

	for _, tt := range []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name: "unknown trip", method: http.MethodGet, path: "/api/trips/nope/balances",
			status: http.StatusNotFound, code: "not_found",
		},
		{
			name: "payer outside roster", method: http.MethodPost, path: "/api/trips/t1/expenses",
			body:   map[string]any{"title": "Bar", "amount": 10, "paid_by": "mallory", "split_among": []string{"alice"}},
			status: http.StatusUnprocessableEntity, code: "data_integrity",
		},
		{
			name: "participant outside roster", method: http.MethodPost, path: "/api/trips/t1/expenses",
			body:   map[string]any{"title": "Bar", "amount": 10, "paid_by": "alice", "split_among": []string{"zoe"}},
			status: http.StatusUnprocessableEntity, code: "data_integrity",
		},
		{
			name: "non-positive amount", method: http.MethodPost, path: "/api/trips/t1/expenses",
			body:   map[string]any{"title": "Bar", "amount": -5, "paid_by": "alice", "split_among": []string{"bob"}},
			status: http.StatusBadRequest,
		},
		{
			name: "empty split", method: http.MethodPost, path: "/api/trips/t1/expenses",
			body:   map[string]any{"title": "Bar", "amount": 5, "paid_by": "alice", "split_among": []string{}},
			status: http.StatusBadRequest, code: "validation_error",
		},
		{
			name: "bad currency", method: http.MethodPost, path: "/api/trips",
			body:   map[string]any{"name": "x", "currency": "euro!"},
			status: http.StatusBadRequest,
		},
		{
			name: "payment to self", method: http.MethodPost, path: "/api/trips/t1/payments",
			body:   map[string]any{"from": "bob", "to": "bob", "amount": 5},
			status: http.StatusBadRequest, code: "validation_error",
		},
		{
			name: "non-hex device token", method: http.MethodPost, path: "/api/devices",
			body:   map[string]any{"user_id": "u1", "token": "not-hex"},
			status: http.StatusBadRequest, code: "validation_error",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.code != "" {
				assert.Equal(t, tt.code, resp.Code)
			}
		})
	}
}

// =============================================================================
// DEVICES & NOTIFICATIONS
// =============================================================================

func TestRegisterDevice_ThenExpenseNotifiesOthers(t *testing.T) {
	// GIVEN: bob registered a device, alice records an expense
	sent := make(chan push.Notification, 1)
	h, store := newTestHandler(t, nil, recordingSender{sent: sent})
	router := NewRouter(h)
	seedTrip(t, router)

	rec := do(t, router, http.MethodPost, "/api/devices", RegisterDeviceRequest{UserID: "bob", Token: "abcdef01"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN
	rec = do(t, router, http.MethodPost, "/api/trips/t1/expenses", map[string]any{
		"id": "e1", "title": "Dinner", "amount": "42", "paid_by": "alice", "split_among": []string{"alice", "bob"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: bob's device got the expense with typed metadata
	select {
	case n := <-sent:
		assert.Equal(t, "Lisbon", n.Title)
		assert.Equal(t, "alice added Dinner: 42.00 EUR", n.Body)
		assert.Equal(t, "t1", n.Data["trip_id"])
		assert.JSONEq(t, `{"type":"expense","expense_id":"e1","title":"Dinner","amount":"42","currency":"EUR"}`, n.Data["metadata"])
	default:
		t.Fatal("expected a notification")
	}

	tokens, err := store.TokensForUsers(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

type recordingSender struct {
	sent chan push.Notification
}

func (s recordingSender) Send(_ context.Context, _ string, token string, n push.Notification) push.Result {
	s.sent <- n
	return push.Result{Token: token, Success: true, Status: http.StatusOK}
}

func TestCreateExpense_IDFromAnotherTripConflicts(t *testing.T) {
	// GIVEN: expense e1 belongs to t1
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	seedTrip(t, router)
	rec := do(t, router, http.MethodPost, "/api/trips", CreateTripRequest{ID: "t2", Name: "Faro", Currency: "EUR"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/trips/t2/members", AddMemberRequest{UserID: "alice"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := map[string]any{"id": "e1", "title": "Taxi", "amount": "12.50", "paid_by": "alice", "split_among": []string{"alice"}}
	rec = do(t, router, http.MethodPost, "/api/trips/t1/expenses", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: t2 reuses the id
	rec = do(t, router, http.MethodPost, "/api/trips/t2/expenses", body, nil)

	// THEN
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/trips/t1/expenses", nil, nil)
	assert.Len(t, decodeBody[[]ExpenseDTO](t, rec), 1)
}

func TestRequestBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, nil, stubSender{})
	router := NewRouter(h)
	huge := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `","currency":"EUR"}`

	for name, tt := range map[string]struct {
		path    string
		headers map[string]string
	}{
		"push route": {path: "/", headers: auth},
		"trip route": {path: "/api/trips"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.path, huge, tt.headers)
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		})
	}
}
