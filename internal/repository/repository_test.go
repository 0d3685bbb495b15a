// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id VARCHAR(64) PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// ============================================================================
// AccountRepository Tests
// ============================================================================

func TestAccountRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	acct, err := repo.Create(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "user-a", acct.UserID)
	assert.Equal(t, money.Amount(0), acct.Balance)
	assert.False(t, acct.CreatedAt.IsZero())
}

func TestAccountRepository_GetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user-a")
	require.NoError(t, err)

	acct, err := repo.GetByID(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "user-a", acct.UserID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	acct, err := repo.GetOrCreate(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), acct.Balance)

	// Seed some balance, then GetOrCreate must return the existing row.
	_, err = repo.ApplyDelta(ctx, "user-a", money.MustParse("12.50"))
	require.NoError(t, err)

	acct, err = repo.GetOrCreate(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("12.50"), acct.Balance)
}

func TestAccountRepository_ApplyDelta(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user-a")
	require.NoError(t, err)

	acct, err := repo.ApplyDelta(ctx, "user-a", money.MustParse("10.00"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("10.00"), acct.Balance)

	acct, err = repo.ApplyDelta(ctx, "user-a", money.MustParse("3.25").Neg())
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("6.75"), acct.Balance)

	_, err = repo.ApplyDelta(ctx, "missing", money.MustParse("1.00"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_ApplyDelta_InsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "user-a")
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "user-a", money.MustParse("5.00"))
	require.NoError(t, err)

	// A debit past zero fails and leaves the balance untouched.
	_, err = repo.ApplyDelta(ctx, "user-a", money.MustParse("5.01").Neg())
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var insErr *InsufficientFundsError
	assert.ErrorAs(t, err, &insErr)
	assert.Equal(t, "user-a", insErr.UserID)

	acct, err := repo.GetByID(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("5.00"), acct.Balance)

	// Debiting exactly to zero is allowed.
	acct, err = repo.ApplyDelta(ctx, "user-a", money.MustParse("5.00").Neg())
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), acct.Balance)
}

func TestAccountRepository_Transfer(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "payer")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "payee")
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "payer", money.MustParse("20.00"))
	require.NoError(t, err)

	from, to, err := repo.Transfer(ctx, "payer", "payee", money.MustParse("7.50"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("12.50"), from.Balance)
	assert.Equal(t, money.MustParse("7.50"), to.Balance)

	// Zero-sum: total money is unchanged.
	assert.Equal(t, money.MustParse("20.00"), from.Balance+to.Balance)
}

func TestAccountRepository_Transfer_InsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "payer")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "payee")
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "payer", money.MustParse("5.00"))
	require.NoError(t, err)

	_, _, err = repo.Transfer(ctx, "payer", "payee", money.MustParse("5.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	payer, err := repo.GetByID(ctx, "payer")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("5.00"), payer.Balance)
	payee, err := repo.GetByID(ctx, "payee")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), payee.Balance)
}

func TestAccountRepository_TransferChecked_MinReceiverBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "loser")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "winner")
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "loser", money.MustParse("10.00"))
	require.NoError(t, err)
	_, err = repo.ApplyDelta(ctx, "winner", money.MustParse("3.00"))
	require.NoError(t, err)

	// Winner must still hold their own stake at settlement time.
	_, _, err = repo.TransferChecked(ctx, "loser", "winner", money.MustParse("5.00"), money.MustParse("5.00"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	loser, winner, err := repo.TransferChecked(ctx, "loser", "winner", money.MustParse("5.00"), money.MustParse("3.00"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("5.00"), loser.Balance)
	assert.Equal(t, money.MustParse("8.00"), winner.Balance)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	acctRepo := NewAccountRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := acctRepo.Create(ctx, "user-a")
	require.NoError(t, err)

	desc := "blackjack win"
	tx, err := txRepo.Create(ctx, "user-a", money.MustParse("5.00"), model.TxTypeBlackjackWin, &desc)
	require.NoError(t, err)
	assert.Equal(t, "user-a", tx.UserID)
	assert.Equal(t, money.MustParse("5.00"), tx.Amount)
	assert.Equal(t, model.TxTypeBlackjackWin, tx.Type)
	require.NotNil(t, tx.Description)
	assert.Equal(t, "blackjack win", *tx.Description)
}

func TestTransactionRepository_GetByUserID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	acctRepo := NewAccountRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := acctRepo.Create(ctx, "user-a")
	require.NoError(t, err)

	_, _ = txRepo.Create(ctx, "user-a", money.MustParse("1.00"), model.TxTypeCoinflipWin, nil)
	_, _ = txRepo.Create(ctx, "user-a", money.MustParse("0.50").Neg(), model.TxTypeCoinflipLose, nil)
	_, _ = txRepo.Create(ctx, "user-a", money.MustParse("2.00"), model.TxTypeCrashBail, nil)

	txs, err := txRepo.GetByUserID(ctx, "user-a", 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Newest first.
	assert.Equal(t, money.MustParse("2.00"), txs[0].Amount)

	txs, err = txRepo.GetByUserID(ctx, "user-a", 2)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}
