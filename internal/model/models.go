// Package model defines the persistent data models for the wager bot.
package model

import (
	"time"

	"discord-wager-bot/internal/pkg/money"
)

// Account is one participant's row in the money ledger. Balance is stored
// in cents; the database column is a BIGINT.
type Account struct {
	UserID    string       `db:"user_id"`
	Balance   money.Amount `db:"balance"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// Transaction is one journal entry recording a balance change.
type Transaction struct {
	ID          int64        `db:"id"`
	UserID      string       `db:"user_id"`
	Amount      money.Amount `db:"amount"`
	Type        string       `db:"type"`
	Description *string      `db:"description"`
	CreatedAt   time.Time    `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeBlackjackWin  = "blackjack_win"
	TxTypeBlackjackLose = "blackjack_lose"
	TxTypeCoinflipWin   = "coinflip_win"
	TxTypeCoinflipLose  = "coinflip_lose"
	TxTypeCrashBail     = "crash_bail"
	TxTypeCrashLose     = "crash_lose"
	TxTypeTransfer      = "transfer"
	TxTypeAdminAdd      = "admin_add"
)
