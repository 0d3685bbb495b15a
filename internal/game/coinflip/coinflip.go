// Package coinflip implements the two-party coinflip duel. The challengee
// first accepts or declines, then calls the flip; each phase has a bounded
// response window. Settlement is a single zero-sum transfer that re-validates
// both balances at call time.
package coinflip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/game"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/repository"
	"discord-wager-bot/internal/session"
)

// Reaction control tokens.
const (
	TokenAccept  = "✅"
	TokenDecline = "❌"
	TokenHeads   = "🇭"
	TokenTails   = "🇹"
)

// DefaultResponseWindow bounds each of the two phases.
const DefaultResponseWindow = 45 * time.Second

// ErrSelfChallenge rejects a duel against oneself.
var ErrSelfChallenge = errors.New("cannot challenge yourself")

// ErrChallengeeFunds reports that the challengee cannot cover the bet. It
// unwraps to game.ErrInsufficientFunds.
var ErrChallengeeFunds = fmt.Errorf("challengee: %w", game.ErrInsufficientFunds)

// Side is one face of the coin.
type Side int

const (
	Heads Side = iota
	Tails
)

func (s Side) String() string {
	if s == Heads {
		return "heads"
	}
	return "tails"
}

type phase int

const (
	phaseChallenge phase = iota
	phaseCall
	phaseDone
)

// Launcher starts coinflip duels. Flip draws the coin; when nil a fair
// math/rand draw is used, tests inject a fixed one.
type Launcher struct {
	Ledger         game.Settler
	Claims         game.Claims
	Sessions       *session.Registry
	Renderer       gateway.Renderer
	Flip           func() Side
	ResponseWindow time.Duration
}

// Game is one duel instance.
type Game struct {
	id           string
	challengerID string
	challengeeID string
	bet          money.Amount
	promptID     string

	ledger   game.Settler
	claims   game.Claims
	sessions *session.Registry
	renderer gateway.Renderer
	flip     func() Side
	window   time.Duration

	mu    sync.Mutex
	phase phase
	timer *time.Timer

	processing atomic.Bool
	settled    atomic.Bool
}

// Start validates both parties, claims them atomically, and posts the
// challenge prompt. The challengee has one response window to accept and a
// second to call the flip; missing either auto-declines.
func (l *Launcher) Start(ctx context.Context, channelID, challengerID, challengeeID string, bet money.Amount) error {
	if !bet.IsPositive() {
		return game.ErrBetNotPositive
	}
	if challengerID == challengeeID {
		return ErrSelfChallenge
	}

	challengerBalance, err := l.Ledger.Balance(ctx, challengerID)
	if err != nil {
		return fmt.Errorf("failed to read challenger balance: %w", err)
	}
	if challengerBalance < bet {
		return game.ErrInsufficientFunds
	}
	challengeeBalance, err := l.Ledger.Balance(ctx, challengeeID)
	if err != nil {
		return fmt.Errorf("failed to read challengee balance: %w", err)
	}
	if challengeeBalance < bet {
		return ErrChallengeeFunds
	}

	window := l.ResponseWindow
	if window <= 0 {
		window = DefaultResponseWindow
	}
	flip := l.Flip
	if flip == nil {
		flip = func() Side { return Side(rand.Intn(2)) }
	}

	g := &Game{
		id:           uuid.NewString(),
		challengerID: challengerID,
		challengeeID: challengeeID,
		bet:          bet,
		ledger:       l.Ledger,
		claims:       l.Claims,
		sessions:     l.Sessions,
		renderer:     l.Renderer,
		flip:         flip,
		window:       window,
	}

	if !l.Claims.TryActivate(g.id, []string{challengerID, challengeeID}) {
		return game.ErrAlreadyPlaying
	}

	description := fmt.Sprintf(
		"%s challenged %s for **%s** each (pot: **%s**).\nReact with %s to accept or %s to decline.\nYou have %d seconds.",
		gateway.Mention(challengerID), gateway.Mention(challengeeID),
		bet.String(), (bet * 2).String(),
		TokenAccept, TokenDecline, int(window.Seconds()),
	)
	promptID, err := l.Renderer.CreatePrompt(ctx, channelID, gateway.Content{
		Title:       "Coinflip",
		Description: description,
		Color:       gateway.ColorPending,
	})
	if err != nil {
		l.Claims.Clear(g.id)
		return fmt.Errorf("failed to post challenge prompt: %w", err)
	}
	g.promptID = promptID

	for _, token := range []string{TokenAccept, TokenDecline} {
		if err := l.Renderer.AddControl(ctx, promptID, token); err != nil {
			l.Claims.Clear(g.id)
			return game.ErrControlSetup
		}
	}

	g.armTimeout()

	// The session outlives a single phase window; the per-phase timer is the
	// one that auto-declines.
	l.Sessions.Register(promptID, &session.Session{
		OwnerID: challengeeID,
		Timeout: window * 2,
		OnExpire: func() {
			g.stopTimer()
			l.Claims.Clear(g.id)
		},
		Handle: g.handleReaction,
	})
	return nil
}

func (g *Game) handleReaction(ctx context.Context, ev gateway.Event) error {
	if !g.processing.CompareAndSwap(false, true) {
		return nil
	}
	defer g.processing.Store(false)

	g.mu.Lock()
	current := g.phase
	g.mu.Unlock()
	if current == phaseDone {
		return nil
	}

	if err := g.renderer.RemoveActorControl(ctx, g.promptID, ev.Token, ev.ActorID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to retract reaction")
	}

	switch current {
	case phaseChallenge:
		return g.handleChallenge(ctx, ev)
	case phaseCall:
		return g.handleCall(ctx, ev)
	default:
		return nil
	}
}

func (g *Game) handleChallenge(ctx context.Context, ev gateway.Event) error {
	switch ev.Token {
	case TokenDecline:
		g.finish(ctx, fmt.Sprintf("%s declined the coinflip challenge.", gateway.Mention(g.challengeeID)), gateway.ColorLose, nil)
		return nil
	case TokenAccept:
	default:
		return nil
	}

	g.mu.Lock()
	g.phase = phaseCall
	g.mu.Unlock()
	g.armTimeout()

	description := fmt.Sprintf(
		"%s, call the flip.\nReact with %s for heads or %s for tails.\nYou have %d seconds.",
		gateway.Mention(g.challengeeID), TokenHeads, TokenTails, int(g.window.Seconds()),
	)
	if err := g.renderer.EditPrompt(ctx, g.promptID, gateway.Content{
		Title:       "Coinflip",
		Description: description,
		Color:       gateway.ColorNeutral,
	}); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to update prompt")
	}
	if err := g.renderer.ClearControls(ctx, g.promptID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to clear challenge controls")
	}
	for _, token := range []string{TokenHeads, TokenTails} {
		if err := g.renderer.AddControl(ctx, g.promptID, token); err != nil {
			g.finish(ctx, "I couldn't add coin reaction controls. Check channel permissions for Add Reactions.", gateway.ColorNeutral, nil)
			return nil
		}
	}
	return nil
}

func (g *Game) handleCall(ctx context.Context, ev gateway.Event) error {
	var called Side
	switch ev.Token {
	case TokenHeads:
		called = Heads
	case TokenTails:
		called = Tails
	default:
		return nil
	}

	if !g.settled.CompareAndSwap(false, true) {
		return nil
	}

	result := g.flip()
	challengeeWins := called == result

	loserID, winnerID := g.challengeeID, g.challengerID
	if challengeeWins {
		loserID, winnerID = g.challengerID, g.challengeeID
	}

	// Both balances are re-validated inside the transfer; either party may
	// have spent their stake in another game since the challenge was posted.
	_, _, err := g.ledger.Transfer(ctx, loserID, winnerID, g.bet, g.bet,
		model.TxTypeCoinflipLose, model.TxTypeCoinflipWin, "coinflip duel")
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			g.finish(ctx, "One of the players no longer has enough balance for this bet.", gateway.ColorNeutral, nil)
			return nil
		}
		g.finish(ctx, "Settlement failed. No money moved.", gateway.ColorNeutral, nil)
		return fmt.Errorf("coinflip settlement: %w", err)
	}

	description := fmt.Sprintf(
		"The coin landed on **%s**.\n%s won **%s**.\n%s lost **%s**.",
		result, gateway.Mention(winnerID), g.bet.String(), gateway.Mention(loserID), g.bet.String(),
	)
	fields := []gateway.Field{
		{Name: "Winnings", Value: "**" + g.bet.String() + "**", Inline: true},
		{Name: "Call", Value: called.String(), Inline: true},
	}
	g.finish(ctx, description, gateway.ColorWin, fields)
	return nil
}

// finish moves the duel to its terminal phase, renders the closing prompt,
// and releases the session, controls, and claims. Idempotent.
func (g *Game) finish(ctx context.Context, description string, color int, fields []gateway.Field) {
	g.mu.Lock()
	if g.phase == phaseDone {
		g.mu.Unlock()
		return
	}
	g.phase = phaseDone
	g.mu.Unlock()

	g.stopTimer()
	g.sessions.Clear(g.promptID)

	if err := g.renderer.EditPrompt(ctx, g.promptID, gateway.Content{
		Title:       "Coinflip",
		Description: description,
		Color:       color,
		Fields:      fields,
	}); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to render final prompt")
	}
	if err := g.renderer.ClearControls(ctx, g.promptID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to clear controls")
	}
}

// armTimeout restarts the per-phase response window. Firing auto-declines.
func (g *Game) armTimeout() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.window, func() {
		g.finish(context.Background(),
			fmt.Sprintf("%s did not respond in time.", gateway.Mention(g.challengeeID)),
			gateway.ColorLose, nil)
	})
	g.mu.Unlock()
}

func (g *Game) stopTimer() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()
}
