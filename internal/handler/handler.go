// Package handler implements the bot's prefix commands. Each command parses
// its raw arguments into a typed struct up front, then calls into the game
// launchers or the ledger service; the transport adapter only routes.
package handler

import (
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/pkg/money"
)

// Context is one command invocation, already split from the raw message by
// the transport adapter. Mentions holds mentioned user IDs in argument
// order.
type Context struct {
	ChannelID string
	AuthorID  string
	Args      []string
	Mentions  []string
}

// Reply is a command's response: a plain line, an embed, or neither (the
// command already rendered everything it needed).
type Reply struct {
	Text    string
	Content *gateway.Content
}

func text(s string) Reply {
	return Reply{Text: s}
}

func embed(c gateway.Content) Reply {
	return Reply{Content: &c}
}

// betArgs is the parsed argument set for the single-bet game commands.
type betArgs struct {
	Bet money.Amount
}

func parseBetArgs(c Context) (betArgs, string) {
	if len(c.Args) < 1 {
		return betArgs{}, "Usage: provide a bet amount, e.g. `10.00`."
	}
	bet, err := money.Parse(c.Args[0])
	if err != nil {
		return betArgs{}, "Invalid bet amount."
	}
	if !bet.IsPositive() {
		return betArgs{}, "Bet must be a positive amount."
	}
	return betArgs{Bet: bet}, ""
}

// targetAmountArgs is the parsed argument set for commands that act on a
// mentioned user and an amount.
type targetAmountArgs struct {
	TargetID string
	Amount   money.Amount
}

func parseTargetAmountArgs(c Context) (targetAmountArgs, string) {
	if len(c.Mentions) < 1 {
		return targetAmountArgs{}, "You need to mention a valid user."
	}
	amountRaw := ""
	for _, arg := range c.Args {
		if !isMentionToken(arg) {
			amountRaw = arg
			break
		}
	}
	if amountRaw == "" {
		return targetAmountArgs{}, "Usage: mention a user and provide an amount."
	}
	amount, err := money.Parse(amountRaw)
	if err != nil {
		return targetAmountArgs{}, "Invalid amount."
	}
	return targetAmountArgs{TargetID: c.Mentions[0], Amount: amount}, ""
}

func isMentionToken(arg string) bool {
	return len(arg) > 3 && arg[0] == '<' && arg[1] == '@' && arg[len(arg)-1] == '>'
}
