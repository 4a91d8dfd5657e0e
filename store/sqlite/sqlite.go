/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TripStore and push.TokenStore on SQLite. The hosted
  product keeps these rows in Postgres; the SQL here sticks to the common
  subset so the same queries port with only dialect changes.

KEY TABLES:
  trips:          Shared travel plans
  trip_members:   Trip roster (the membership collaborator)
  expenses:       Shared costs; split_json holds the participant set
  payments:       Recorded settle-up transfers
  device_tokens:  APNs device tokens, unique per token

AMOUNTS:
  Stored as decimal strings, never REAL, so round-tripping through the
  database cannot introduce floating point drift into balances.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection so every caller sees the same schema.

USAGE:
  store, err := sqlite.New("./data/ouest.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: TripStore contract
  - push/store.go: TokenStore contract
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ouest/trip-engine/ledger"
	"github.com/ouest/trip-engine/push"
)

const (
	dateLayout = "2006-01-02"

	// Fixed width so text ordering matches time ordering.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trip_members (
		trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		display_name TEXT,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (trip_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		title TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		paid_by TEXT NOT NULL,
		split_json TEXT NOT NULL,
		incurred_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: load every expense of a trip in display order
	CREATE INDEX IF NOT EXISTS idx_expenses_trip_date
		ON expenses(trip_id, incurred_on, created_at);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		from_member TEXT NOT NULL,
		to_member TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		paid_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_trip
		ON payments(trip_id, paid_on);

	CREATE TABLE IF NOT EXISTS device_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_device_tokens_user
		ON device_tokens(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRIPS (ledger.TripStore)
// =============================================================================

// SaveTrip inserts or replaces a trip.
func (s *Store) SaveTrip(ctx context.Context, trip ledger.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trips (id, name, currency, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, currency = excluded.currency
	`, trip.ID, trip.Name, trip.Currency, trip.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save trip: %w", err)
	}
	return nil
}

// GetTrip returns ledger.ErrTripNotFound for unknown ids.
func (s *Store) GetTrip(ctx context.Context, id ledger.TripID) (ledger.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		trip      ledger.Trip
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, currency, created_at FROM trips WHERE id = ?", id,
	).Scan(&trip.ID, &trip.Name, &trip.Currency, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Trip{}, ledger.ErrTripNotFound
	}
	if err != nil {
		return ledger.Trip{}, fmt.Errorf("failed to get trip: %w", err)
	}
	trip.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return trip, nil
}

// AddMember inserts or updates a member of an existing trip.
func (s *Store) AddMember(ctx context.Context, member ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTrip(ctx, member.TripID); err != nil {
		return err
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trip_members (trip_id, user_id, display_name, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(trip_id, user_id) DO UPDATE SET display_name = excluded.display_name
	`, member.TripID, member.UserID, member.DisplayName, member.JoinedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// Members returns the roster sorted by user id.
func (s *Store) Members(ctx context.Context, tripID ledger.TripID) ([]ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTrip(ctx, tripID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, user_id, COALESCE(display_name, ''), joined_at
		FROM trip_members
		WHERE trip_id = ?
		ORDER BY user_id ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := make([]ledger.Member, 0)
	for rows.Next() {
		var (
			m        ledger.Member
			joinedAt string
		)
		if err := rows.Scan(&m.TripID, &m.UserID, &m.DisplayName, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// EXPENSES & PAYMENTS (ledger.TripStore)
// =============================================================================

// SaveExpense inserts or updates an expense. An id already used by another
// trip is left untouched and ledger.ErrExpenseConflict is returned.
func (s *Store) SaveExpense(ctx context.Context, e ledger.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTrip(ctx, e.TripID); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	splitJSON, err := json.Marshal(e.SplitAmong)
	if err != nil {
		return fmt.Errorf("failed to encode split: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses
		(id, trip_id, title, amount, currency, paid_by, split_json, incurred_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			amount = excluded.amount,
			currency = excluded.currency,
			paid_by = excluded.paid_by,
			split_json = excluded.split_json,
			incurred_on = excluded.incurred_on
		WHERE expenses.trip_id = excluded.trip_id
	`,
		e.ID,
		e.TripID,
		e.Title,
		e.Amount.String(),
		e.Currency,
		e.PaidBy,
		string(splitJSON),
		e.Date.Format(dateLayout),
		e.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	if n == 0 {
		return ledger.ErrExpenseConflict
	}
	return nil
}

// Expenses returns a trip's expenses ordered by date, then creation time.
func (s *Store) Expenses(ctx context.Context, tripID ledger.TripID) ([]ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTrip(ctx, tripID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trip_id, COALESCE(title, ''), amount, currency, paid_by, split_json, incurred_on, created_at
		FROM expenses
		WHERE trip_id = ?
		ORDER BY incurred_on ASC, created_at ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]ledger.Expense, 0)
	for rows.Next() {
		var (
			e                                 ledger.Expense
			amount, split, incurred, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.Title, &amount, &e.Currency, &e.PaidBy, &split, &incurred, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("expense %s: bad amount %q: %w", e.ID, amount, err)
		}
		if err := json.Unmarshal([]byte(split), &e.SplitAmong); err != nil {
			return nil, fmt.Errorf("expense %s: bad split: %w", e.ID, err)
		}
		e.Date, _ = time.Parse(dateLayout, incurred)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// DeleteExpense removes an expense. Returns ledger.ErrExpenseNotFound when
// nothing matched.
func (s *Store) DeleteExpense(ctx context.Context, tripID ledger.TripID, id ledger.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE trip_id = ? AND id = ?", tripID, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n == 0 {
		return ledger.ErrExpenseNotFound
	}
	return nil
}

// SavePayment records a settle-up payment.
func (s *Store) SavePayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTrip(ctx, p.TripID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, trip_id, from_member, to_member, amount, currency, paid_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.TripID, p.From, p.To, p.Amount.String(), p.Currency,
		p.Date.Format(dateLayout), time.Now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// Payments returns a trip's recorded payments in date order.
func (s *Store) Payments(ctx context.Context, tripID ledger.TripID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTrip(ctx, tripID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trip_id, from_member, to_member, amount, currency, paid_on
		FROM payments
		WHERE trip_id = ?
		ORDER BY paid_on ASC, created_at ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]ledger.Payment, 0)
	for rows.Next() {
		var (
			p              ledger.Payment
			amount, paidOn string
		)
		if err := rows.Scan(&p.ID, &p.TripID, &p.From, &p.To, &amount, &p.Currency, &paidOn); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
		}
		p.Date, _ = time.Parse(dateLayout, paidOn)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// DEVICE TOKENS (push.TokenStore)
// =============================================================================

// SaveDeviceToken registers a token. A token already known is reassigned
// to the new user, since a device has one signed-in user at a time.
func (s *Store) SaveDeviceToken(ctx context.Context, t push.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_tokens (id, user_id, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at
	`, t.ID, t.UserID, t.Token, now, now)
	if err != nil {
		return fmt.Errorf("failed to save device token: %w", err)
	}
	return nil
}

// TokensForUsers loads every token of the given users in one query.
func (s *Store) TokensForUsers(ctx context.Context, userIDs []string) ([]push.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT id, user_id, token FROM device_tokens WHERE user_id IN (%s) ORDER BY token ASC",
		placeholders(len(userIDs)),
	)
	rows, err := s.db.QueryContext(ctx, query, toArgs(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []push.DeviceToken
	for rows.Next() {
		var t push.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteTokens removes tokens in a single statement. Unknown tokens are
// ignored.
func (s *Store) DeleteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM device_tokens WHERE token IN (%s)", placeholders(len(tokens)))
	if _, err := s.db.ExecContext(ctx, query, toArgs(tokens)...); err != nil {
		return fmt.Errorf("failed to delete device tokens: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) requireTrip(ctx context.Context, id ledger.TripID) error {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips WHERE id = ?", id).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up trip: %w", err)
	}
	if count == 0 {
		return ledger.ErrTripNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
