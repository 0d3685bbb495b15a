// Package crash implements the multiplayer escalating-multiplier game. An
// open join window collects players at a fixed base bet, then a tick loop
// grows the multiplier until a probabilistic crash; players cash out
// mid-run by reacting.
package crash

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"discord-wager-bot/internal/game"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/model"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/pkg/queue"
	"discord-wager-bot/internal/session"
)

// Reaction control tokens.
const (
	TokenJoin = "✅"
	TokenBail = "🖐️"
)

// Default game tuning. The crash curve constants are a heuristic carried
// over as-is; they are configurable, not load-bearing.
const (
	DefaultJoinWindow      = 15 * time.Second
	DefaultTickInterval    = 1600 * time.Millisecond
	DefaultStartMultiplier = 0.2
	DefaultGrowthFactor    = 1.33
	DefaultSessionTimeout  = 15 * time.Minute
)

// ErrChannelBusy rejects a second concurrent crash game in the same channel.
var ErrChannelBusy = errors.New("a crash game is already running in this channel")

// Config tunes a crash game.
type Config struct {
	JoinWindow      time.Duration
	TickInterval    time.Duration
	StartMultiplier float64
	GrowthFactor    float64
	SessionTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.JoinWindow <= 0 {
		c.JoinWindow = DefaultJoinWindow
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.StartMultiplier <= 0 {
		c.StartMultiplier = DefaultStartMultiplier
	}
	if c.GrowthFactor <= 1 {
		c.GrowthFactor = DefaultGrowthFactor
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	return c
}

// crashChance returns the crash probability (percent) at multiplier m given
// jitter noise in [0,1).
func crashChance(m, noise float64) float64 {
	return math.Min(4+20*math.Log2(m/2+1)+noise*1.5, 97)
}

type phase int

const (
	phaseJoin phase = iota
	phaseClosing
	phaseRunning
	phaseEnded
)

type resultStatus int

const (
	statusBailed resultStatus = iota
	statusCrashed
)

type result struct {
	userID     string
	status     resultStatus
	multiplier float64
	net        money.Amount
}

// Manager starts crash games and enforces one game per channel. Roll decides
// whether a tick at the given multiplier crashes; when nil the default
// curve with math/rand jitter is used.
type Manager struct {
	Ledger   game.Ledger
	Claims   game.Claims
	Sessions *session.Registry
	Renderer gateway.Renderer
	Config   Config
	Roll     func(multiplier float64) bool

	mu       sync.Mutex
	channels map[string]struct{}
}

// NewManager creates a crash game manager.
func NewManager(ledger game.Ledger, claims game.Claims, sessions *session.Registry, renderer gateway.Renderer, cfg Config) *Manager {
	return &Manager{
		Ledger:   ledger,
		Claims:   claims,
		Sessions: sessions,
		Renderer: renderer,
		Config:   cfg,
		channels: make(map[string]struct{}),
	}
}

// Game is one crash instance.
type Game struct {
	id        string
	channelID string
	hostID    string
	bet       money.Amount
	promptID  string
	cfg       Config

	ledger   game.Ledger
	claims   game.Claims
	sessions *session.Registry
	renderer gateway.Renderer
	roll     func(multiplier float64) bool
	release  func()
	queue    *queue.Queue

	mu           sync.Mutex
	phase        phase
	multiplier   float64
	crashedAt    *float64
	joinClosesAt time.Time
	participants []string
	active       map[string]struct{}
	results      map[string]*result

	processing atomic.Bool
	settled    atomic.Bool
}

// Start validates the host and bet, claims the channel and the host, posts
// the join prompt, and spawns the game loop. It returns as soon as the game
// is live; the loop runs until crash or until every player has bailed.
func (m *Manager) Start(ctx context.Context, channelID, hostID string, bet money.Amount) error {
	if !bet.IsPositive() {
		return game.ErrBetNotPositive
	}

	m.mu.Lock()
	if m.channels == nil {
		m.channels = make(map[string]struct{})
	}
	if _, busy := m.channels[channelID]; busy {
		m.mu.Unlock()
		return ErrChannelBusy
	}
	m.channels[channelID] = struct{}{}
	m.mu.Unlock()

	releaseChannel := func() {
		m.mu.Lock()
		delete(m.channels, channelID)
		m.mu.Unlock()
	}

	gameID := uuid.NewString()
	if !m.Claims.TryActivate(gameID, []string{hostID}) {
		releaseChannel()
		return game.ErrAlreadyPlaying
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.Claims.Clear(gameID)
			releaseChannel()
		})
	}

	balance, err := m.Ledger.Balance(ctx, hostID)
	if err != nil {
		release()
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < bet {
		release()
		return game.ErrInsufficientFunds
	}

	cfg := m.Config.withDefaults()
	roll := m.Roll
	if roll == nil {
		roll = func(multiplier float64) bool {
			return rand.Float64()*100 < crashChance(multiplier, rand.Float64())
		}
	}

	g := &Game{
		id:           gameID,
		channelID:    channelID,
		hostID:       hostID,
		bet:          bet,
		cfg:          cfg,
		ledger:       m.Ledger,
		claims:       m.Claims,
		sessions:     m.Sessions,
		renderer:     m.Renderer,
		roll:         roll,
		release:      release,
		queue:        queue.New(),
		phase:        phaseJoin,
		multiplier:   cfg.StartMultiplier,
		joinClosesAt: time.Now().Add(cfg.JoinWindow),
		participants: []string{hostID},
		active:       make(map[string]struct{}),
		results:      make(map[string]*result),
	}

	promptID, err := m.Renderer.CreatePrompt(ctx, channelID, g.render())
	if err != nil {
		release()
		return fmt.Errorf("failed to post game prompt: %w", err)
	}
	g.promptID = promptID

	m.Sessions.Register(promptID, &session.Session{
		Timeout:  cfg.SessionTimeout,
		OnExpire: release,
		Handle:   g.handleReaction,
	})

	for _, token := range []string{TokenJoin, TokenBail} {
		if err := m.Renderer.AddControl(ctx, promptID, token); err != nil {
			g.finalize(ctx)
			return game.ErrControlSetup
		}
	}

	go g.run(ctx)
	return nil
}

// run drives the join window and the tick loop.
func (g *Game) run(ctx context.Context) {
	select {
	case <-ctx.Done():
		g.finalize(ctx)
		return
	case <-time.After(time.Until(g.joinClosesAt)):
	}

	g.mu.Lock()
	stillJoining := g.phase == phaseJoin
	g.mu.Unlock()
	if !stillJoining {
		g.finalize(ctx)
		return
	}

	if !g.closeJoinWindow(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			g.finalize(ctx)
			return
		case <-time.After(g.cfg.TickInterval):
		}

		g.mu.Lock()
		if g.phase != phaseRunning {
			g.mu.Unlock()
			g.finalize(ctx)
			return
		}
		g.multiplier *= g.cfg.GrowthFactor
		next := g.multiplier
		g.mu.Unlock()

		if g.roll(next) {
			g.crash(ctx, next)
			return
		}

		g.queue.Do(func() error {
			return g.renderer.EditPrompt(ctx, g.promptID, g.render())
		})
	}
}

// closeJoinWindow re-validates every joiner's balance, drops the ineligible
// without penalty, and starts the run. Returns false if the game ended for
// lack of eligible players. The phase leaves phaseJoin in the same critical
// section that snapshots the roster, so a join landing during the balance
// reads takes the rollback path instead of being silently erased.
func (g *Game) closeJoinWindow(ctx context.Context) bool {
	g.mu.Lock()
	g.phase = phaseClosing
	participants := append([]string(nil), g.participants...)
	g.mu.Unlock()

	var eligible []string
	var dropped []string
	for _, userID := range participants {
		balance, err := g.ledger.Balance(ctx, userID)
		if err != nil || balance < g.bet {
			dropped = append(dropped, userID)
			continue
		}
		eligible = append(eligible, userID)
	}

	g.mu.Lock()
	g.participants = eligible
	for _, userID := range eligible {
		g.active[userID] = struct{}{}
	}
	g.mu.Unlock()

	// Dropped joiners are a race loss, not an error.
	for _, userID := range dropped {
		g.claims.Remove(g.id, []string{userID})
	}

	if len(eligible) == 0 {
		g.mu.Lock()
		g.phase = phaseEnded
		g.mu.Unlock()
		g.queue.Do(func() error {
			return g.renderer.EditPrompt(ctx, g.promptID, gateway.Content{
				Title:       "Crash",
				Color:       gateway.ColorLose,
				Description: "No eligible players remained at game start.",
			})
		})
		g.sessions.Clear(g.promptID)
		g.release()
		return false
	}

	g.mu.Lock()
	g.phase = phaseRunning
	g.mu.Unlock()
	g.queue.Do(func() error {
		return g.renderer.EditPrompt(ctx, g.promptID, g.render())
	})
	return true
}

// crash debits every still-active player their full bet. The debits are
// independent atomic per-account operations issued concurrently; crash
// payouts are not zero-sum, so no cross-account transaction is needed.
func (g *Game) crash(ctx context.Context, at float64) {
	if !g.settled.CompareAndSwap(false, true) {
		return
	}

	// Losers leave active and get their results inside the same critical
	// section, so a bail racing the debits finds nothing left to cash out.
	g.mu.Lock()
	g.crashedAt = &at
	g.phase = phaseEnded
	losers := make([]string, 0, len(g.active))
	for userID := range g.active {
		losers = append(losers, userID)
		delete(g.active, userID)
		g.results[userID] = &result{
			userID:     userID,
			status:     statusCrashed,
			multiplier: at,
			net:        g.bet.Neg(),
		}
	}
	g.mu.Unlock()

	var eg errgroup.Group
	for _, userID := range losers {
		eg.Go(func() error {
			_, err := g.ledger.ApplyDelta(ctx, userID, g.bet.Neg(), model.TxTypeCrashLose, "crash loss")
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to debit crash loss")
			}
			return nil
		})
	}
	_ = eg.Wait()

	g.finalize(ctx)
}

func (g *Game) handleReaction(ctx context.Context, ev gateway.Event) error {
	if !g.processing.CompareAndSwap(false, true) {
		return nil
	}
	defer g.processing.Store(false)

	g.mu.Lock()
	current := g.phase
	g.mu.Unlock()
	if current == phaseEnded {
		return nil
	}

	if err := g.renderer.RemoveActorControl(ctx, g.promptID, ev.Token, ev.ActorID); err != nil {
		log.Debug().Err(err).Str("prompt_id", g.promptID).Msg("Failed to retract reaction")
	}

	switch {
	case current == phaseJoin && ev.Token == TokenJoin:
		return g.join(ctx, ev.ActorID)
	case current == phaseRunning && ev.Token == TokenBail:
		return g.bail(ctx, ev.ActorID)
	default:
		return nil
	}
}

// join admits a player during the join window. The claim is taken before the
// balance check and rolled back on failure so the player can never end up
// claimed but not playing.
func (g *Game) join(ctx context.Context, userID string) error {
	g.mu.Lock()
	already := false
	for _, id := range g.participants {
		if id == userID {
			already = true
			break
		}
	}
	g.mu.Unlock()
	if already {
		return nil
	}

	if !g.claims.TryAdd(g.id, []string{userID}) {
		return nil
	}

	balance, err := g.ledger.Balance(ctx, userID)
	if err != nil || balance < g.bet {
		g.claims.Remove(g.id, []string{userID})
		return err
	}

	g.mu.Lock()
	if g.phase != phaseJoin {
		g.mu.Unlock()
		g.claims.Remove(g.id, []string{userID})
		return nil
	}
	g.participants = append(g.participants, userID)
	g.mu.Unlock()

	g.queue.Do(func() error {
		return g.renderer.EditPrompt(ctx, g.promptID, g.render())
	})
	return nil
}

// bail cashes a player out at the current multiplier for a net of
// bet × (multiplier − 1). A player can bail exactly once.
func (g *Game) bail(ctx context.Context, userID string) error {
	g.mu.Lock()
	if g.settled.Load() {
		g.mu.Unlock()
		return nil
	}
	if _, ok := g.active[userID]; !ok || g.results[userID] != nil {
		g.mu.Unlock()
		return nil
	}
	at := g.multiplier
	net := g.bet.MulMultiplier(at - 1)
	delete(g.active, userID)
	g.results[userID] = &result{
		userID:     userID,
		status:     statusBailed,
		multiplier: at,
		net:        net,
	}
	remaining := len(g.active)
	g.mu.Unlock()

	if _, err := g.ledger.ApplyDelta(ctx, userID, net, model.TxTypeCrashBail, fmt.Sprintf("crash bail at %.1fx", at)); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to credit crash bail")
	}

	if remaining == 0 {
		g.mu.Lock()
		g.phase = phaseEnded
		g.mu.Unlock()
		g.finalize(ctx)
		return nil
	}

	g.queue.Do(func() error {
		return g.renderer.EditPrompt(ctx, g.promptID, g.render())
	})
	return nil
}

// finalize ends the game, renders the result board, and releases the
// session, controls, channel, and claims. Idempotent.
func (g *Game) finalize(ctx context.Context) {
	g.mu.Lock()
	g.phase = phaseEnded
	g.mu.Unlock()

	g.sessions.Clear(g.promptID)

	g.queue.Do(func() error {
		return g.renderer.EditPrompt(ctx, g.promptID, g.render())
	})
	g.queue.Do(func() error {
		return g.renderer.ClearControls(ctx, g.promptID)
	})
	g.release()
}

func formatMultiplier(m float64) string {
	return fmt.Sprintf("%.1f×", m)
}

func (g *Game) render() gateway.Content {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.phase {
	case phaseJoin, phaseClosing:
		joiners := "None"
		if len(g.participants) > 0 {
			mentions := make([]string, len(g.participants))
			for i, id := range g.participants {
				mentions[i] = gateway.Mention(id)
			}
			joiners = strings.Join(mentions, ", ")
		}
		return gateway.Content{
			Title: "Crash",
			Color: gateway.ColorPending,
			Description: fmt.Sprintf(
				"Current multiplier: **%s**\n\nBase bet: **%s**\nJoin with %s. Closing <t:%d:R>.\nCash out during the run with %s.\n\nPlayers joined (%d): %s",
				formatMultiplier(g.multiplier), g.bet.String(), TokenJoin,
				g.joinClosesAt.Unix(), TokenBail, len(g.participants), joiners,
			),
		}
	case phaseRunning:
		bailed := g.sortedResults(statusBailed)
		block := "None yet."
		if len(bailed) > 0 {
			lines := make([]string, len(bailed))
			for i, r := range bailed {
				lines[i] = fmt.Sprintf("• %s — %s (%s)", gateway.Mention(r.userID), formatMultiplier(r.multiplier), r.net.Signed())
			}
			block = strings.Join(lines, "\n")
		}
		return gateway.Content{
			Title: "Crash",
			Color: gateway.ColorNeutral,
			Description: fmt.Sprintf(
				"Current multiplier: **%s**\n\nBailed:\n%s\n\nPlayers remaining: **%d**",
				formatMultiplier(g.multiplier), block, len(g.active),
			),
		}
	default:
		crashLine := fmt.Sprintf("All players bailed out by **%s**.", formatMultiplier(g.multiplier))
		if g.crashedAt != nil {
			crashLine = fmt.Sprintf("**💥 CRASHED at %s**", formatMultiplier(*g.crashedAt))
		}
		board := "None yet."
		all := g.sortedResults(statusBailed, statusCrashed)
		if len(all) > 0 {
			lines := make([]string, len(all))
			for i, r := range all {
				if r.status == statusBailed {
					lines[i] = fmt.Sprintf("%d. %s — bailed at **%s** (%s)", i+1, gateway.Mention(r.userID), formatMultiplier(r.multiplier), r.net.Signed())
				} else {
					lines[i] = fmt.Sprintf("%d. %s — crashed (didn't bail) (%s)", i+1, gateway.Mention(r.userID), r.net.Signed())
				}
			}
			board = strings.Join(lines, "\n")
		}
		return gateway.Content{
			Title:       "Crash",
			Color:       gateway.ColorLose,
			Description: fmt.Sprintf("%s\n\nResults:\n%s", crashLine, board),
		}
	}
}

// sortedResults returns results with any of the given statuses, best net
// first. Callers must hold g.mu.
func (g *Game) sortedResults(statuses ...resultStatus) []*result {
	var out []*result
	for _, r := range g.results {
		for _, s := range statuses {
			if r.status == s {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].net > out[j].net })
	return out
}
