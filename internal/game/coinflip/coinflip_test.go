package coinflip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"discord-wager-bot/internal/game"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/pkg/money"
	"discord-wager-bot/internal/registry"
	"discord-wager-bot/internal/repository"
	"discord-wager-bot/internal/session"
)

type fakeLedger struct {
	mu        sync.Mutex
	balances  map[string]money.Amount
	transfers int
}

func newFakeLedger(balances map[string]money.Amount) *fakeLedger {
	return &fakeLedger{balances: balances}
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (money.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeLedger) ApplyDelta(_ context.Context, userID string, delta money.Amount, _, _ string) (money.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += delta
	return f.balances[userID], nil
}

func (f *fakeLedger) Transfer(_ context.Context, loserID, winnerID string, amount, minWinnerBalance money.Amount, _, _, _ string) (money.Amount, money.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[loserID] < amount {
		return 0, 0, &repository.InsufficientFundsError{UserID: loserID}
	}
	if f.balances[winnerID] < minWinnerBalance {
		return 0, 0, &repository.InsufficientFundsError{UserID: winnerID}
	}
	f.balances[loserID] -= amount
	f.balances[winnerID] += amount
	f.transfers++
	return f.balances[loserID], f.balances[winnerID], nil
}

func (f *fakeLedger) set(userID string, balance money.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = balance
}

type fakeRenderer struct {
	mu      sync.Mutex
	prompts map[string]gateway.Content
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{prompts: make(map[string]gateway.Content)}
}

func (f *fakeRenderer) CreatePrompt(_ context.Context, channelID string, content gateway.Content) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := channelID + "/1"
	f.prompts[id] = content
	return id, nil
}

func (f *fakeRenderer) EditPrompt(_ context.Context, promptID string, content gateway.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts[promptID] = content
	return nil
}

func (f *fakeRenderer) AddControl(_ context.Context, _, _ string) error    { return nil }
func (f *fakeRenderer) ClearControls(_ context.Context, _ string) error    { return nil }
func (f *fakeRenderer) RemoveActorControl(_ context.Context, _, _, _ string) error {
	return nil
}

func (f *fakeRenderer) description(promptID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[promptID].Description
}

type fixture struct {
	launcher *Launcher
	ledger   *fakeLedger
	renderer *fakeRenderer
	claims   *registry.ActiveGames
	sessions *session.Registry
}

func newFixture(flip func() Side, balances map[string]money.Amount) *fixture {
	f := &fixture{
		ledger:   newFakeLedger(balances),
		renderer: newFakeRenderer(),
		claims:   registry.NewActiveGames(),
		sessions: session.NewRegistry(),
	}
	f.launcher = &Launcher{
		Ledger:   f.ledger,
		Claims:   f.claims,
		Sessions: f.sessions,
		Renderer: f.renderer,
		Flip:     flip,
	}
	return f
}

func (f *fixture) react(t *testing.T, actorID, token string) {
	t.Helper()
	err := f.sessions.Dispatch(context.Background(), gateway.Event{
		PromptID: "chan/1",
		ActorID:  actorID,
		Token:    token,
	})
	require.NoError(t, err)
}

func startDuel(t *testing.T, f *fixture, bet money.Amount) {
	t.Helper()
	err := f.launcher.Start(context.Background(), "chan", "challenger", "challengee", bet)
	require.NoError(t, err)
}

func evenBalances() map[string]money.Amount {
	return map[string]money.Amount{
		"challenger": money.MustParse("50.00"),
		"challengee": money.MustParse("50.00"),
	}
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(nil, evenBalances())

	err := f.launcher.Start(context.Background(), "chan", "challenger", "challengee", 0)
	assert.ErrorIs(t, err, game.ErrBetNotPositive)

	err = f.launcher.Start(context.Background(), "chan", "challenger", "challenger", money.MustParse("1.00"))
	assert.ErrorIs(t, err, ErrSelfChallenge)

	err = f.launcher.Start(context.Background(), "chan", "challenger", "challengee", money.MustParse("99.00"))
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)

	assert.False(t, f.claims.IsActive("challenger"))
	assert.False(t, f.claims.IsActive("challengee"))
}

func TestStart_RejectsPoorChallengee(t *testing.T) {
	f := newFixture(nil, map[string]money.Amount{
		"challenger": money.MustParse("50.00"),
		"challengee": money.MustParse("5.00"),
	})

	err := f.launcher.Start(context.Background(), "chan", "challenger", "challengee", money.MustParse("10.00"))
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)
	assert.Equal(t, 0, f.ledger.transfers)
}

func TestStart_RejectsActiveParty(t *testing.T) {
	f := newFixture(nil, evenBalances())
	f.claims.TryActivate("other", []string{"challengee"})

	err := f.launcher.Start(context.Background(), "chan", "challenger", "challengee", money.MustParse("1.00"))
	assert.ErrorIs(t, err, game.ErrAlreadyPlaying)
	assert.False(t, f.claims.IsActive("challenger"))
}

func TestDecline(t *testing.T) {
	f := newFixture(nil, evenBalances())
	startDuel(t, f, money.MustParse("5.00"))

	f.react(t, "challengee", TokenDecline)

	assert.Equal(t, 0, f.ledger.transfers)
	assert.Equal(t, 0, f.sessions.Len())
	assert.False(t, f.claims.IsActive("challenger"))
	assert.False(t, f.claims.IsActive("challengee"))
	assert.Contains(t, f.renderer.description("chan/1"), "declined")
}

func TestChallengeeWins(t *testing.T) {
	f := newFixture(func() Side { return Heads }, evenBalances())
	startDuel(t, f, money.MustParse("5.00"))

	f.react(t, "challengee", TokenAccept)
	f.react(t, "challengee", TokenHeads)

	challenger, _ := f.ledger.Balance(context.Background(), "challenger")
	challengee, _ := f.ledger.Balance(context.Background(), "challengee")
	assert.Equal(t, money.MustParse("45.00"), challenger)
	assert.Equal(t, money.MustParse("55.00"), challengee)
	assert.Equal(t, 0, f.sessions.Len())
	assert.False(t, f.claims.IsActive("challengee"))
}

func TestChallengerWins(t *testing.T) {
	f := newFixture(func() Side { return Heads }, evenBalances())
	startDuel(t, f, money.MustParse("5.00"))

	f.react(t, "challengee", TokenAccept)
	f.react(t, "challengee", TokenTails)

	challenger, _ := f.ledger.Balance(context.Background(), "challenger")
	challengee, _ := f.ledger.Balance(context.Background(), "challengee")
	assert.Equal(t, money.MustParse("55.00"), challenger)
	assert.Equal(t, money.MustParse("45.00"), challengee)
}

func TestOnlyChallengeeMayAct(t *testing.T) {
	f := newFixture(func() Side { return Heads }, evenBalances())
	startDuel(t, f, money.MustParse("5.00"))

	f.react(t, "challenger", TokenAccept)
	f.react(t, "stranger", TokenAccept)

	// Challenge phase is still open.
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, 0, f.ledger.transfers)
}

func TestCallPhaseIgnoresChallengeTokens(t *testing.T) {
	f := newFixture(func() Side { return Heads }, evenBalances())
	startDuel(t, f, money.MustParse("5.00"))

	f.react(t, "challengee", TokenAccept)
	f.react(t, "challengee", TokenAccept)
	f.react(t, "challengee", TokenDecline)

	assert.Equal(t, 0, f.ledger.transfers)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestRevalidationAtCallTime(t *testing.T) {
	f := newFixture(func() Side { return Tails }, evenBalances())
	startDuel(t, f, money.MustParse("10.00"))

	f.react(t, "challengee", TokenAccept)

	// Challengee loses their stake elsewhere between accept and call.
	f.ledger.set("challengee", money.MustParse("2.00"))

	f.react(t, "challengee", TokenHeads)

	assert.Equal(t, 0, f.ledger.transfers)
	challenger, _ := f.ledger.Balance(context.Background(), "challenger")
	assert.Equal(t, money.MustParse("50.00"), challenger)
	assert.Contains(t, f.renderer.description("chan/1"), "no longer has enough balance")
	assert.False(t, f.claims.IsActive("challenger"))
}

func TestResponseTimeout(t *testing.T) {
	f := newFixture(nil, evenBalances())
	f.launcher.ResponseWindow = 20 * time.Millisecond
	startDuel(t, f, money.MustParse("5.00"))

	assert.Eventually(t, func() bool {
		return f.sessions.Len() == 0 && !f.claims.IsActive("challenger")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.ledger.transfers)
	assert.Contains(t, f.renderer.description("chan/1"), "did not respond in time")
}

// TestZeroSumProperty checks that settlement moves exactly bet from one party
// to the other for any affordable starting balances and either call.
func TestZeroSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bet := money.Amount(rapid.Int64Range(1, 10_000).Draw(t, "bet"))
		challengerStart := bet + money.Amount(rapid.Int64Range(0, 10_000).Draw(t, "extraA"))
		challengeeStart := bet + money.Amount(rapid.Int64Range(0, 10_000).Draw(t, "extraB"))
		flip := Side(rapid.IntRange(0, 1).Draw(t, "flip"))
		call := TokenHeads
		if rapid.Bool().Draw(t, "callTails") {
			call = TokenTails
		}

		f := newFixture(func() Side { return flip }, map[string]money.Amount{
			"challenger": challengerStart,
			"challengee": challengeeStart,
		})
		err := f.launcher.Start(context.Background(), "chan", "challenger", "challengee", bet)
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		dispatch := func(token string) {
			err := f.sessions.Dispatch(context.Background(), gateway.Event{
				PromptID: "chan/1", ActorID: "challengee", Token: token,
			})
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
		}
		dispatch(TokenAccept)
		dispatch(call)

		challenger, _ := f.ledger.Balance(context.Background(), "challenger")
		challengee, _ := f.ledger.Balance(context.Background(), "challengee")

		if challenger+challengee != challengerStart+challengeeStart {
			t.Fatalf("sum changed: %d -> %d", challengerStart+challengeeStart, challenger+challengee)
		}
		diff := challenger - challengerStart
		if diff != bet && diff != -bet {
			t.Fatalf("challenger delta %d, want ±%d", diff, bet)
		}
		if f.ledger.transfers != 1 {
			t.Fatalf("expected exactly one transfer, got %d", f.ledger.transfers)
		}
	})
}

