// Package credits is the per-user credit ledger. Every balance change is a
// row in credit_movements; credit_balances holds the running total.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/idgen"
)

// Schema is the ledger DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS credit_balances (
    user_id    TEXT PRIMARY KEY,
    balance    INTEGER NOT NULL CHECK (balance >= 0),
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_movements (
    movement_id   TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES credit_balances(user_id),
    amount        INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    reason        TEXT NOT NULL,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credit_movements_user
    ON credit_movements(user_id, created_at DESC);
`

// Reasons recorded on movements.
const (
	ReasonSignup = "signup"
	ReasonRefund = "refund"
)

var (
	ErrInsufficient  = errors.New("credits: insufficient balance")
	ErrInvalidAmount = errors.New("credits: amount must be positive")
	ErrNoUser        = errors.New("credits: user id is required")
)

// Movement is one ledger entry. Amount is negative for debits.
type Movement struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger reads and writes balances. Accounts are opened on first use with
// the signup grant.
type Ledger struct {
	db          *sql.DB
	signupGrant int64
	newID       idgen.Generator
	now         func() time.Time
}

// NewLedger returns a ledger over db, which must hold Schema.
func NewLedger(db *sql.DB, signupGrant int64) *Ledger {
	return &Ledger{db: db, signupGrant: signupGrant, newID: idgen.Movement, now: time.Now}
}

// Balance returns the user's balance, opening the account if needed.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrNoUser
	}
	var balance int64
	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		balance, err = l.open(ctx, tx, userID)
		return err
	})
	return balance, err
}

// Grant adds amount to the balance and returns the movement.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, reason string) (*Movement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, amount, reason)
}

// Debit removes amount from the balance. When the balance is short nothing
// is written and the error wraps ErrInsufficient.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) (*Movement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, -amount, reason)
}

// Refund gives back a debit, typically after the paid operation failed.
func (l *Ledger) Refund(ctx context.Context, debit *Movement) (*Movement, error) {
	if debit == nil || debit.Amount >= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, debit.UserID, -debit.Amount, ReasonRefund+": "+debit.ID)
}

// History returns the user's movements, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT movement_id, user_id, amount, balance_after, reason, created_at
		FROM credit_movements WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("credits: history: %w", err)
	}
	defer rows.Close()

	out := []Movement{}
	for rows.Next() {
		var m Movement
		var ts int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Amount, &m.BalanceAfter, &m.Reason, &ts); err != nil {
			return nil, fmt.Errorf("credits: scan movement: %w", err)
		}
		m.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *Ledger) apply(ctx context.Context, userID string, delta int64, reason string) (*Movement, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	var mv *Movement
	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		balance, err := l.open(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance+delta < 0 {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficient, balance, -delta)
		}
		mv, err = l.write(ctx, tx, userID, delta, balance+delta, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

// open returns the current balance, creating the account with the signup
// grant when the user is new.
func (l *Ledger) open(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE user_id = ?`, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("credits: read balance: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO credit_balances (user_id, balance, updated_at) VALUES (?, 0, ?)`,
		userID, l.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("credits: open account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Opened concurrently by another transaction.
		if err := tx.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE user_id = ?`, userID).Scan(&balance); err != nil {
			return 0, fmt.Errorf("credits: read balance: %w", err)
		}
		return balance, nil
	}
	if l.signupGrant <= 0 {
		return 0, nil
	}
	if _, err := l.write(ctx, tx, userID, l.signupGrant, l.signupGrant, ReasonSignup); err != nil {
		return 0, err
	}
	return l.signupGrant, nil
}

func (l *Ledger) write(ctx context.Context, tx *sql.Tx, userID string, delta, after int64, reason string) (*Movement, error) {
	now := l.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_balances SET balance = ?, updated_at = ? WHERE user_id = ?`,
		after, now.Unix(), userID); err != nil {
		return nil, fmt.Errorf("credits: update balance: %w", err)
	}
	mv := &Movement{
		ID:           l.newID(),
		UserID:       userID,
		Amount:       delta,
		BalanceAfter: after,
		Reason:       reason,
		CreatedAt:    now.UTC().Truncate(time.Second),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_movements (movement_id, user_id, amount, balance_after, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.UserID, mv.Amount, mv.BalanceAfter, mv.Reason, now.Unix()); err != nil {
		return nil, fmt.Errorf("credits: record movement: %w", err)
	}
	return mv, nil
}
