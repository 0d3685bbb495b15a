package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/game"
	"discord-wager-bot/internal/game/blackjack"
	"discord-wager-bot/internal/game/coinflip"
	"discord-wager-bot/internal/game/crash"
	"discord-wager-bot/internal/gateway"
)

// GameHandler routes the wager game commands to their launchers.
type GameHandler struct {
	blackjack *blackjack.Launcher
	coinflip  *coinflip.Launcher
	crash     *crash.Manager
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(bj *blackjack.Launcher, cf *coinflip.Launcher, cr *crash.Manager) *GameHandler {
	return &GameHandler{blackjack: bj, coinflip: cf, crash: cr}
}

// HandleBlackjack starts a blackjack round: `!blackjack <bet>`.
func (h *GameHandler) HandleBlackjack(ctx context.Context, c Context) Reply {
	args, msg := parseBetArgs(c)
	if msg != "" {
		return text(msg)
	}

	if err := h.blackjack.Start(ctx, c.ChannelID, c.AuthorID, args.Bet); err != nil {
		return gameErrorReply(c, err, "blackjack")
	}
	return Reply{}
}

// HandleCoinflip starts a duel: `!coinflip @user <bet>`.
func (h *GameHandler) HandleCoinflip(ctx context.Context, c Context) Reply {
	if len(c.Mentions) < 1 {
		return text("You need to challenge a valid user.")
	}
	args, msg := parseTargetAmountArgs(c)
	if msg != "" {
		return text(msg)
	}
	if !args.Amount.IsPositive() {
		return text("Bet must be a positive amount.")
	}

	err := h.coinflip.Start(ctx, c.ChannelID, c.AuthorID, args.TargetID, args.Amount)
	if err != nil {
		switch {
		case errors.Is(err, coinflip.ErrSelfChallenge):
			return text("You cannot challenge yourself.")
		case errors.Is(err, coinflip.ErrChallengeeFunds):
			return text(gateway.Mention(args.TargetID) + " does not have enough balance to accept that bet.")
		default:
			return gameErrorReply(c, err, "coinflip")
		}
	}
	return Reply{}
}

// HandleCrash starts a crash game: `!crash <bet>`.
func (h *GameHandler) HandleCrash(ctx context.Context, c Context) Reply {
	args, msg := parseBetArgs(c)
	if msg != "" {
		return text(msg)
	}

	if err := h.crash.Start(ctx, c.ChannelID, c.AuthorID, args.Bet); err != nil {
		if errors.Is(err, crash.ErrChannelBusy) {
			return text("A crash game is already running in this channel.")
		}
		return gameErrorReply(c, err, "crash")
	}
	return Reply{}
}

// gameErrorReply maps the shared game validation errors to their one-line
// messages. Unexpected errors get logged and a generic line.
func gameErrorReply(c Context, err error, name string) Reply {
	switch {
	case errors.Is(err, game.ErrBetNotPositive):
		return text("Bet must be a positive amount.")
	case errors.Is(err, game.ErrInsufficientFunds):
		return text("You do not have enough balance to make that bet.")
	case errors.Is(err, game.ErrAlreadyPlaying):
		return text("You are already in an active game.")
	case errors.Is(err, game.ErrControlSetup):
		return text("I couldn't add reaction controls. Check channel permissions for Add Reactions.")
	default:
		log.Error().Err(err).Str("command", name).Str("user_id", c.AuthorID).Msg("Game command failed")
		return text("Something went wrong starting the game.")
	}
}
