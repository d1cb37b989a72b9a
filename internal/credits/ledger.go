package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fluxhive/fluxhive/pkg/logger"
)

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrAccountNotFound    = errors.New("credit account not found")
)

// Account is a user's credit balance.
type Account struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Credit    int64     `json:"credit" db:"credit"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ledger meters generation usage. Charge is at-most-once per task: the ledger
// entry is keyed by task id, so a duplicate charge request for the same task
// is a no-op.
type Ledger interface {
	GetOrCreateAccount(ctx context.Context, userID string) (*Account, error)
	Charge(ctx context.Context, userID string, taskID int64, amount int64) error
	Refund(ctx context.Context, userID string, taskID int64) error
}

type PostgresLedger struct {
	db *sqlx.DB
}

func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) GetOrCreateAccount(ctx context.Context, userID string) (*Account, error) {
	var account Account
	err := l.db.GetContext(ctx, &account, `SELECT * FROM credit_accounts WHERE user_id = $1`, userID)
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}

	account = Account{ID: uuid.New(), UserID: userID}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO credit_accounts (id, user_id, credit)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING`,
		account.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}

	// Re-read in case a concurrent request created the row first.
	if err := l.db.GetContext(ctx, &account, `SELECT * FROM credit_accounts WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}
	return &account, nil
}

// Charge debits the account and records a ledger entry for the task. The
// unique (task_id, kind) constraint makes a repeated charge for the same task
// a no-op instead of a double debit.
func (l *PostgresLedger) Charge(ctx context.Context, userID string, taskID int64, amount int64) error {
	if amount == 0 {
		return nil
	}
	log := logger.WithComponent("credit_ledger")

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin charge: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO credit_entries (id, user_id, task_id, amount, kind)
		VALUES ($1, $2, $3, $4, 'charge')
		ON CONFLICT (task_id, kind) DO NOTHING`,
		uuid.New(), userID, taskID, -amount)
	if err != nil {
		return fmt.Errorf("failed to record charge: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check charge entry: %w", err)
	}
	if inserted == 0 {
		log.Debug().Int64("task_id", taskID).Msg("Charge already recorded, skipping")
		return nil
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE credit_accounts SET credit = credit - $1, updated_at = now()
		WHERE user_id = $2 AND credit >= $1`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check debit result: %w", err)
	}
	if updated == 0 {
		return ErrInsufficientCredit
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge: %w", err)
	}

	log.Debug().
		Str("user_id", userID).
		Int64("task_id", taskID).
		Int64("amount", amount).
		Msg("Charged credits")
	return nil
}

// Refund reverses the charge recorded for a task, once.
func (l *PostgresLedger) Refund(ctx context.Context, userID string, taskID int64) error {
	log := logger.WithComponent("credit_ledger")

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refund: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var amount int64
	err = tx.GetContext(ctx, &amount,
		`SELECT -amount FROM credit_entries WHERE task_id = $1 AND kind = 'charge'`, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // nothing was charged
		}
		return fmt.Errorf("failed to look up charge: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO credit_entries (id, user_id, task_id, amount, kind)
		VALUES ($1, $2, $3, $4, 'refund')
		ON CONFLICT (task_id, kind) DO NOTHING`,
		uuid.New(), userID, taskID, amount)
	if err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check refund entry: %w", err)
	}
	if inserted == 0 {
		return nil // already refunded
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_accounts SET credit = credit + $1, updated_at = now()
		WHERE user_id = $2`,
		amount, userID); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refund: %w", err)
	}

	log.Debug().
		Str("user_id", userID).
		Int64("task_id", taskID).
		Int64("amount", amount).
		Msg("Refunded credits")
	return nil
}
