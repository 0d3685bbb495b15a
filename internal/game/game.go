// Package game defines the shared contracts the individual games depend on:
// the slice of the ledger they may touch and the claim registry they hold
// their participants in.
package game

import (
	"context"
	"errors"

	"discord-wager-bot/internal/pkg/money"
)

// Validation errors shared by the games. The command layer maps these to
// one-line user-visible messages; no game state is mutated when they occur.
var (
	ErrBetNotPositive    = errors.New("bet must be positive")
	ErrInsufficientFunds = errors.New("insufficient balance for bet")
	ErrAlreadyPlaying    = errors.New("participant already in an active game")
	ErrControlSetup      = errors.New("could not attach reaction controls")
)

// Ledger is the balance surface a game needs: read a balance and apply a
// single atomic delta. Implemented by service.LedgerService.
type Ledger interface {
	Balance(ctx context.Context, userID string) (money.Amount, error)
	ApplyDelta(ctx context.Context, userID string, delta money.Amount, txType, description string) (money.Amount, error)
}

// Settler extends Ledger with the two-party settlement a duel needs. The
// transfer re-validates both balances atomically at settlement time.
type Settler interface {
	Ledger
	Transfer(ctx context.Context, loserID, winnerID string, amount, minWinnerBalance money.Amount, loseType, winType, description string) (loserBalance, winnerBalance money.Amount, err error)
}

// Claims is the active-game registry surface games release their
// participants through. Implemented by registry.ActiveGames.
type Claims interface {
	TryActivate(gameID string, userIDs []string) bool
	TryAdd(gameID string, userIDs []string) bool
	Remove(gameID string, userIDs []string)
	Clear(gameID string)
}
