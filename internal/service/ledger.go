// Package service provides the business layer between games and the
// persistence repositories.
package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/repository"
)

// LedgerService fronts the ledger for the games and wallet commands: account
// balances, atomic per-account deltas, and the duel's two-party transfer.
// Every money-mutating call also appends a journal entry; journal failures
// are logged but never fail the balance change that already committed.
type LedgerService struct {
	accounts *repository.AccountRepository
	journal  *repository.TransactionRepository
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(accounts *repository.AccountRepository, journal *repository.TransactionRepository) *LedgerService {
	return &LedgerService{accounts: accounts, journal: journal}
}

// Balance returns the participant's current balance, creating an empty
// account on first contact.
func (s *LedgerService) Balance(ctx context.Context, userID string) (money.Amount, error) {
	acct, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// ApplyDelta atomically applies delta to the participant's balance and
// journals the change. Debits that would overdraw the account fail with
// repository.ErrInsufficientFunds and mutate nothing.
func (s *LedgerService) ApplyDelta(ctx context.Context, userID string, delta money.Amount, txType, description string) (money.Amount, error) {
	acct, err := s.accounts.ApplyDelta(ctx, userID, delta)
	if err != nil {
		return 0, err
	}
	s.record(ctx, userID, delta, txType, description)
	return acct.Balance, nil
}

// Transfer settles a symmetric wager: amount moves from the loser to the
// winner in one database transaction that re-validates both balances under
// row locks. minWinnerBalance lets the caller require the winner to still
// hold their own stake at settlement time.
func (s *LedgerService) Transfer(ctx context.Context, loserID, winnerID string, amount, minWinnerBalance money.Amount, loseType, winType, description string) (loserBalance, winnerBalance money.Amount, err error) {
	loser, winner, err := s.accounts.TransferChecked(ctx, loserID, winnerID, amount, minWinnerBalance)
	if err != nil {
		return 0, 0, err
	}
	s.record(ctx, loserID, amount.Neg(), loseType, description)
	s.record(ctx, winnerID, amount, winType, description)
	return loser.Balance, winner.Balance, nil
}

// Pay moves amount between two users outside any game.
func (s *LedgerService) Pay(ctx context.Context, fromID, toID string, amount money.Amount) (fromBalance, toBalance money.Amount, err error) {
	if _, err := s.accounts.GetOrCreate(ctx, toID); err != nil {
		return 0, 0, err
	}
	from, to, err := s.accounts.Transfer(ctx, fromID, toID, amount)
	if err != nil {
		return 0, 0, err
	}
	s.record(ctx, fromID, amount.Neg(), model.TxTypeTransfer, "payment sent")
	s.record(ctx, toID, amount, model.TxTypeTransfer, "payment received")
	return from.Balance, to.Balance, nil
}

// AdminAdd credits amount to a user's balance, creating the account first if
// needed. Negative amounts are allowed; a debit past zero fails with
// repository.ErrInsufficientFunds.
func (s *LedgerService) AdminAdd(ctx context.Context, userID string, amount money.Amount) (money.Amount, error) {
	if _, err := s.accounts.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}
	return s.ApplyDelta(ctx, userID, amount, model.TxTypeAdminAdd, "admin adjustment")
}

func (s *LedgerService) record(ctx context.Context, userID string, amount money.Amount, txType, description string) {
	var desc *string
	if description != "" {
		desc = &description
	}
	if _, err := s.journal.Create(ctx, userID, amount, txType, desc); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("tx_type", txType).
			Msg("Failed to journal balance change")
	}
}
