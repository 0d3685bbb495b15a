// Package blackjack implements the reaction-driven blackjack game. The deck
// is an infinite i.i.d. draw, the dealer stands on 17, and a natural 21 at
// deal time resolves before any input is accepted.
package blackjack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/game"
	"discord-wager-bot/internal/game/cards"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/session"
)

// Reaction control tokens.
const (
	TokenHit    = "🫳"
	TokenStand  = "🖐️"
	TokenDouble = "⏫"
)

// faceDown is the card-back glyph shown for the dealer's hole card.
const faceDown = "\U0001F0A0"

// dealerStand is the total the dealer draws up to.
const dealerStand = 17

// Outcome is the terminal result of a round.
type Outcome int

const (
	OutcomeWin Outcome = iota
	OutcomeLose
	OutcomePush
)

// Launcher starts blackjack rounds. One Launcher serves all rounds; each
// round is its own Game instance bound to a prompt message.
type Launcher struct {
	Ledger   game.Ledger
	Claims   game.Claims
	Sessions *session.Registry
	Renderer gateway.Renderer
	Dealer   cards.Dealer
	Timeout  time.Duration
}

// Game is one blackjack round. All hand mutation happens inside the session
// handler, which is re-entrancy guarded, so mu only covers reads from the
// render path.
type Game struct {
	id       string
	ownerID  string
	promptID string

	ledger   game.Ledger
	claims   game.Claims
	sessions *session.Registry
	renderer gateway.Renderer
	dealer   cards.Dealer

	mu          sync.Mutex
	bet         money.Amount
	playerCards []cards.Card
	dealerCards []cards.Card
	done        bool
	summary     string
	outcome     *Outcome

	processing atomic.Bool
	settled    atomic.Bool
}

// Start validates the bet, claims the player, deals the opening hands, and
// posts the prompt. A natural 21 on either side settles immediately;
// otherwise the round waits for reaction input until it resolves or times
// out.
func (l *Launcher) Start(ctx context.Context, channelID, userID string, bet money.Amount) error {
	if !bet.IsPositive() {
		return game.ErrBetNotPositive
	}

	balance, err := l.Ledger.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < bet {
		return game.ErrInsufficientFunds
	}

	g := &Game{
		id:       uuid.NewString(),
		ownerID:  userID,
		ledger:   l.Ledger,
		claims:   l.Claims,
		sessions: l.Sessions,
		renderer: l.Renderer,
		dealer:   l.Dealer,
		bet:      bet,
	}

	if !l.Claims.TryActivate(g.id, []string{userID}) {
		return game.ErrAlreadyPlaying
	}

	g.playerCards = []cards.Card{g.dealer.Deal(), g.dealer.Deal()}
	g.dealerCards = []cards.Card{g.dealer.Deal(), g.dealer.Deal()}

	promptID, err := l.Renderer.CreatePrompt(ctx, channelID, g.render(false))
	if err != nil {
		l.Claims.Clear(g.id)
		return fmt.Errorf("failed to post game prompt: %w", err)
	}
	g.promptID = promptID

	for _, token := range []string{TokenHit, TokenStand, TokenDouble} {
		if err := l.Renderer.AddControl(ctx, promptID, token); err != nil {
			l.Claims.Clear(g.id)
			return game.ErrControlSetup
		}
	}

	playerTotal, _ := cards.HandValue(g.playerCards)
	dealerTotal, _ := cards.HandValue(g.dealerCards)
	if playerTotal == 21 || dealerTotal == 21 {
		switch {
		case playerTotal == 21 && dealerTotal == 21:
			g.settle(ctx, OutcomePush)
		case playerTotal == 21:
			g.settle(ctx, OutcomeWin)
		default:
			g.settle(ctx, OutcomeLose)
		}
		g.finish(ctx)
		return nil
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	l.Sessions.Register(promptID, &session.Session{
		OwnerID: userID,
		Timeout: timeout,
		OnExpire: func() {
			// finish() clears the session after settling; only a round
			// that never resolved gets the timeout treatment.
			g.mu.Lock()
			if g.done {
				g.mu.Unlock()
				return
			}
			g.done = true
			g.summary = "Timed out. Nothing was settled."
			g.mu.Unlock()
			l.Claims.Clear(g.id)

			expireCtx := context.Background()
			if err := l.Renderer.EditPrompt(expireCtx, promptID, g.render(false)); err != nil {
				log.Debug().Err(err).Str("prompt_id", promptID).Msg("Failed to render timeout prompt")
			}
			if err := l.Renderer.ClearControls(expireCtx, promptID); err != nil {
				log.Debug().Err(err).Str("prompt_id", promptID).Msg("Failed to clear controls")
			}
		},
		Handle: g.handleReaction,
	})
	return nil
}

// handleReaction consumes one hit, stand, or double reaction. Reactions that
// arrive while a previous one is still settling are dropped, not queued.
func (g *Game) handleReaction(ctx context.Context, ev gateway.Event) error {
	if !g.processing.CompareAndSwap(false, true) {
		return nil
	}
	defer g.processing.Store(false)

	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done {
		return nil
	}

	if err := g.renderer.RemoveActorControl(ctx, g.promptID, ev.Token, ev.ActorID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to retract reaction")
	}

	switch ev.Token {
	case TokenHit:
		return g.hit(ctx)
	case TokenStand:
		return g.stand(ctx)
	case TokenDouble:
		return g.double(ctx)
	default:
		return nil
	}
}

func (g *Game) hit(ctx context.Context) error {
	g.mu.Lock()
	g.playerCards = append(g.playerCards, g.dealer.Deal())
	total, _ := cards.HandValue(g.playerCards)
	g.mu.Unlock()

	if total > 21 {
		g.settle(ctx, OutcomeLose)
		g.finish(ctx)
		return nil
	}
	if total == 21 {
		g.settle(ctx, g.resolveDealerTurn())
		g.finish(ctx)
		return nil
	}

	if err := g.renderer.EditPrompt(ctx, g.promptID, g.render(false)); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to update prompt")
	}
	return nil
}

func (g *Game) stand(ctx context.Context) error {
	g.settle(ctx, g.resolveDealerTurn())
	g.finish(ctx)
	return nil
}

// double doubles the bet, draws exactly one card, and resolves. Only allowed
// as the first move and only when the player can cover the doubled bet.
func (g *Game) double(ctx context.Context) error {
	g.mu.Lock()
	firstMove := len(g.playerCards) == 2
	doubled := g.bet * 2
	g.mu.Unlock()
	if !firstMove {
		return nil
	}

	balance, err := g.ledger.Balance(ctx, g.ownerID)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < doubled {
		return nil
	}

	g.mu.Lock()
	g.bet = doubled
	g.playerCards = append(g.playerCards, g.dealer.Deal())
	total, _ := cards.HandValue(g.playerCards)
	g.mu.Unlock()

	if total > 21 {
		g.settle(ctx, OutcomeLose)
	} else {
		g.settle(ctx, g.resolveDealerTurn())
	}
	g.finish(ctx)
	return nil
}

// resolveDealerTurn draws the dealer's hand to completion and compares
// totals.
func (g *Game) resolveDealerTurn() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		total, _ := cards.HandValue(g.dealerCards)
		if total >= dealerStand {
			break
		}
		g.dealerCards = append(g.dealerCards, g.dealer.Deal())
	}

	dealerTotal, _ := cards.HandValue(g.dealerCards)
	playerTotal, _ := cards.HandValue(g.playerCards)

	switch {
	case dealerTotal > 21:
		return OutcomeWin
	case playerTotal > dealerTotal:
		return OutcomeWin
	case playerTotal < dealerTotal:
		return OutcomeLose
	default:
		return OutcomePush
	}
}

// settle applies the round's single ledger mutation. The latch is set before
// the ledger call so a racing duplicate can never settle twice.
func (g *Game) settle(ctx context.Context, result Outcome) {
	if !g.settled.CompareAndSwap(false, true) {
		return
	}

	g.mu.Lock()
	bet := g.bet
	g.outcome = &result
	g.mu.Unlock()

	var summary string
	switch result {
	case OutcomeWin:
		balance, err := g.ledger.ApplyDelta(ctx, g.ownerID, bet, model.TxTypeBlackjackWin, "blackjack win")
		if err != nil {
			log.Error().Err(err).Str("user_id", g.ownerID).Msg("Failed to credit blackjack win")
			summary = "You won, but the payout failed. Contact an admin."
			break
		}
		summary = fmt.Sprintf("You won %s. New balance: %s.", bet.String(), balance.String())
	case OutcomeLose:
		balance, err := g.ledger.ApplyDelta(ctx, g.ownerID, bet.Neg(), model.TxTypeBlackjackLose, "blackjack loss")
		if err != nil {
			log.Error().Err(err).Str("user_id", g.ownerID).Msg("Failed to debit blackjack loss")
			summary = "You lost, but the debit failed. Contact an admin."
			break
		}
		summary = fmt.Sprintf("You lost %s. New balance: %s.", bet.String(), balance.String())
	default:
		balance, err := g.ledger.Balance(ctx, g.ownerID)
		if err != nil {
			summary = "Push. Your balance is unchanged."
			break
		}
		summary = fmt.Sprintf("Push. Your balance stays at %s.", balance.String())
	}

	g.mu.Lock()
	g.summary = summary
	g.mu.Unlock()
}

// finish marks the round done, reveals the dealer, and releases the session,
// controls, and claim.
func (g *Game) finish(ctx context.Context) {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()

	g.sessions.Clear(g.promptID)
	g.claims.Clear(g.id)

	if err := g.renderer.EditPrompt(ctx, g.promptID, g.render(true)); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to render final prompt")
	}
	if err := g.renderer.ClearControls(ctx, g.promptID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to clear controls")
	}
}

func (g *Game) render(revealDealer bool) gateway.Content {
	g.mu.Lock()
	defer g.mu.Unlock()

	playerTotal, playerAceLow := cards.HandValue(g.playerCards)
	dealerTotal, dealerAceLow := cards.HandValue(g.dealerCards)

	dealerValue := "?"
	dealerHand := faceDown
	if len(g.dealerCards) > 1 && !revealDealer {
		dealerHand += " " + cards.FormatHand(g.dealerCards[1:])
	}
	if revealDealer {
		dealerHand = cards.FormatHand(g.dealerCards)
		dealerValue = fmt.Sprintf("%d%s", dealerTotal, aceLowMark(dealerAceLow))
	}

	status := g.summary
	if !g.done && status == "" {
		status = fmt.Sprintf("React with %s to hit, %s to stand, or %s to double down.", TokenHit, TokenStand, TokenDouble)
	}

	color := gateway.ColorNeutral
	if g.outcome != nil {
		switch *g.outcome {
		case OutcomeWin:
			color = gateway.ColorWin
		case OutcomeLose:
			color = gateway.ColorLose
		default:
			color = gateway.ColorPending
		}
	}

	return gateway.Content{
		Title:       fmt.Sprintf("Blackjack (bet: %s)", g.bet.String()),
		Description: status,
		Color:       color,
		Fields: []gateway.Field{
			{Name: "Dealer", Value: fmt.Sprintf("%s\nTotal: %s", dealerHand, dealerValue), Inline: true},
			{Name: "You", Value: fmt.Sprintf("%s\nTotal: %d%s", cards.FormatHand(g.playerCards), playerTotal, aceLowMark(playerAceLow)), Inline: true},
		},
	}
}

func aceLowMark(aceLow bool) string {
	if aceLow {
		return " (ace low)"
	}
	return ""
}
