// Package repository provides data access for the money ledger.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
)

// Common errors for ledger operations.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// InsufficientFundsError identifies which account was short in a
// multi-account operation. It unwraps to ErrInsufficientFunds.
type InsufficientFundsError struct {
	UserID string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for account %s", e.UserID)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// AccountRepository handles ledger account persistence. Every balance
// mutation is a single atomic statement per account.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create creates a new ledger account with a zero balance.
func (r *AccountRepository) Create(ctx context.Context, userID string) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		RETURNING user_id, balance, created_at, updated_at
	`

	var acct model.Account
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&acct.UserID,
		&acct.Balance,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return &acct, nil
}

// GetByID retrieves an account by user ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, userID string) (*model.Account, error) {
	const query = `
		SELECT user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`

	var acct model.Account
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&acct.UserID,
		&acct.Balance,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acct, nil
}

// GetOrCreate retrieves an account, creating an empty one if it doesn't
// exist yet.
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID string) (*model.Account, error) {
	acct, err := r.GetByID(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	acct, err = r.Create(ctx, userID)
	if err != nil {
		// Another request may have created the account in between.
		acct, err = r.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return acct, nil
}

// ApplyDelta atomically adds delta to the account's balance. The statement
// refuses to drive the balance negative; in that case nothing changes and an
// InsufficientFundsError is returned.
func (r *AccountRepository) ApplyDelta(ctx context.Context, userID string, delta money.Amount) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING user_id, balance, created_at, updated_at
	`

	var acct model.Account
	err := r.pool.QueryRow(ctx, query, userID, delta).Scan(
		&acct.UserID,
		&acct.Balance,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the account is missing or the debit would overdraw it.
			if _, getErr := r.GetByID(ctx, userID); getErr != nil {
				return nil, getErr
			}
			return nil, &InsufficientFundsError{UserID: userID}
		}
		return nil, fmt.Errorf("failed to apply delta: %w", err)
	}

	return &acct, nil
}

// Transfer moves amount from one account to the other inside a single
// database transaction. Both balances are re-read under row locks (in
// ascending user-ID order so concurrent transfers cannot deadlock) and
// re-validated before any money moves, so the transfer is zero-sum and
// all-or-nothing even when the balances changed since the caller last
// looked.
func (r *AccountRepository) Transfer(ctx context.Context, fromID, toID string, amount money.Amount) (*model.Account, *model.Account, error) {
	return r.TransferChecked(ctx, fromID, toID, amount, 0)
}

// TransferChecked is like Transfer but additionally requires the receiving
// side to hold at least minToBalance before the transfer. The coinflip duel
// uses this to re-validate both parties' stakes at call time inside the same
// row-locked transaction that settles the wager.
func (r *AccountRepository) TransferChecked(ctx context.Context, fromID, toID string, amount, minToBalance money.Amount) (fromAcct, toAcct *model.Account, err error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	balances := make(map[string]money.Amount, 2)
	for _, id := range []string{first, second} {
		var bal money.Amount
		lockErr := tx.QueryRow(ctx,
			`SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, id,
		).Scan(&bal)
		if lockErr != nil {
			if errors.Is(lockErr, pgx.ErrNoRows) {
				err = ErrAccountNotFound
				return nil, nil, err
			}
			err = fmt.Errorf("failed to lock account %s: %w", id, lockErr)
			return nil, nil, err
		}
		balances[id] = bal
	}

	if balances[fromID] < amount {
		err = &InsufficientFundsError{UserID: fromID}
		return nil, nil, err
	}
	if balances[toID] < minToBalance {
		err = &InsufficientFundsError{UserID: toID}
		return nil, nil, err
	}

	fromAcct = &model.Account{}
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, balance, created_at, updated_at
	`, fromID, amount).Scan(&fromAcct.UserID, &fromAcct.Balance, &fromAcct.CreatedAt, &fromAcct.UpdatedAt)
	if err != nil {
		err = fmt.Errorf("failed to debit %s: %w", fromID, err)
		return nil, nil, err
	}

	toAcct = &model.Account{}
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, balance, created_at, updated_at
	`, toID, amount).Scan(&toAcct.UserID, &toAcct.Balance, &toAcct.CreatedAt, &toAcct.UpdatedAt)
	if err != nil {
		err = fmt.Errorf("failed to credit %s: %w", toID, err)
		return nil, nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("failed to commit transfer: %w", err)
		return nil, nil, err
	}

	return fromAcct, toAcct, nil
}
