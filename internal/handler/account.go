package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/config"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/repository"
	"discord-wager-bot/internal/service"
)

const balanceColor = 0x32A852

// AccountHandler handles the wallet commands.
type AccountHandler struct {
	ledger *service.LedgerService
	cfg    *config.Config
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger *service.LedgerService, cfg *config.Config) *AccountHandler {
	return &AccountHandler{ledger: ledger, cfg: cfg}
}

// HandleBalance shows the caller's balance.
func (h *AccountHandler) HandleBalance(ctx context.Context, c Context) Reply {
	balance, err := h.ledger.Balance(ctx, c.AuthorID)
	if err != nil {
		log.Error().Err(err).Str("user_id", c.AuthorID).Msg("Failed to read balance")
		return text("Could not read your balance.")
	}
	return embed(gateway.Content{
		Title: "Balance: " + balance.String(),
		Color: balanceColor,
	})
}

// HandlePay transfers money to a mentioned user: `!pay @user <amount>`.
func (h *AccountHandler) HandlePay(ctx context.Context, c Context) Reply {
	args, msg := parseTargetAmountArgs(c)
	if msg != "" {
		return text(msg)
	}
	if !args.Amount.IsPositive() {
		return text("Amount must be positive.")
	}
	if args.TargetID == c.AuthorID {
		return text("You cannot pay yourself.")
	}

	fromBalance, toBalance, err := h.ledger.Pay(ctx, c.AuthorID, args.TargetID, args.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return text("You do not have enough balance to make that payment.")
		}
		log.Error().Err(err).Str("user_id", c.AuthorID).Msg("Payment failed")
		return text("Payment failed. No money moved.")
	}

	return embed(gateway.Content{
		Title: "Payment",
		Description: fmt.Sprintf("%s sent %s to %s",
			gateway.Mention(c.AuthorID), args.Amount.String(), gateway.Mention(args.TargetID)),
		Color: balanceColor,
		Fields: []gateway.Field{
			{Name: "Sender's new balance", Value: fromBalance.String(), Inline: true},
			{Name: "Recipient's new balance", Value: toBalance.String(), Inline: true},
		},
	})
}

// HandleAddMoney credits a user's balance: `!addmoney [@user] <amount>`.
// Admin only; without a mention the amount goes to the caller.
func (h *AccountHandler) HandleAddMoney(ctx context.Context, c Context) Reply {
	if !h.cfg.IsAdmin(c.AuthorID) {
		return text("You do not have permission to use this command.")
	}

	targetID := c.AuthorID
	amountRaw := ""
	if len(c.Mentions) > 0 {
		targetID = c.Mentions[0]
	}
	for _, arg := range c.Args {
		if !isMentionToken(arg) {
			amountRaw = arg
			break
		}
	}
	if amountRaw == "" {
		return text("Usage: `!addmoney [@user] <amount>`.")
	}
	amount, err := money.Parse(amountRaw)
	if err != nil || amount == 0 {
		return text("Invalid amount.")
	}

	balance, err := h.ledger.AdminAdd(ctx, targetID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return text("That would take the balance below zero.")
		}
		log.Error().Err(err).Str("user_id", targetID).Msg("Admin credit failed")
		return text("Could not adjust the balance.")
	}
	return text(fmt.Sprintf("Added %s to %s's balance. New balance: %s",
		amount.String(), gateway.Mention(targetID), balance.String()))
}

// HandleHelp lists the available commands.
func (h *AccountHandler) HandleHelp(_ context.Context, c Context) Reply {
	prefix := h.cfg.Bot.Prefix
	return embed(gateway.Content{
		Title: "Help",
		Description: fmt.Sprintf(
			"**Available commands:**\n"+
				"`%[1]sbalance` — check your balance\n"+
				"`%[1]spay @user <amount>` — send money to another user\n"+
				"`%[1]sblackjack <bet>` — play blackjack using reactions\n"+
				"`%[1]scoinflip @user <bet>` — challenge another user to a coinflip wager\n"+
				"`%[1]scrash <bet>` — multiplayer crash game with reaction cashouts\n"+
				"`%[1]sping` — check if the bot is online",
			prefix),
		Color: gateway.ColorNeutral,
	})
}

// HandlePing reports the gateway latency measured by the adapter.
func (h *AccountHandler) HandlePing(_ context.Context, _ Context, latency time.Duration) Reply {
	return embed(gateway.Content{
		Title: fmt.Sprintf("Latency: %dms", latency.Milliseconds()),
		Color: balanceColor,
	})
}
