// Package bot provides the Discord connection, command routing, and the
// reaction-to-session dispatch boundary.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/config"
	"discord-wager-bot/internal/gateway"
	"discord-wager-bot/internal/handler"
	"discord-wager-bot/internal/session"
)

// commandFunc is one routed prefix command.
type commandFunc func(ctx context.Context, c handler.Context) handler.Reply

// Bot wraps the Discord session with application dependencies.
type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	sessions *session.Registry
	commands map[string]commandFunc

	accountHandler *handler.AccountHandler
	gameHandler    *handler.GameHandler
}

// Dependencies holds everything the bot routes to.
type Dependencies struct {
	Config         *config.Config
	Sessions       *session.Registry
	AccountHandler *handler.AccountHandler
	GameHandler    *handler.GameHandler
}

// NewSession creates the Discord session the bot and its renderer share.
// The connection is not opened until Bot.Start.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	ds, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	ds.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions
	return ds, nil
}

// New creates the bot and registers its event handlers on the session.
func New(ds *discordgo.Session, deps *Dependencies) *Bot {
	b := &Bot{
		session:        ds,
		cfg:            deps.Config,
		sessions:       deps.Sessions,
		accountHandler: deps.AccountHandler,
		gameHandler:    deps.GameHandler,
	}
	b.registerCommands()

	ds.AddHandler(b.onReady)
	ds.AddHandler(b.onMessageCreate)
	ds.AddHandler(b.onMessageReactionAdd)

	return b
}

func (b *Bot) registerCommands() {
	b.commands = map[string]commandFunc{
		"balance":   b.accountHandler.HandleBalance,
		"pay":       b.accountHandler.HandlePay,
		"addmoney":  b.accountHandler.HandleAddMoney,
		"help":      b.accountHandler.HandleHelp,
		"blackjack": b.gameHandler.HandleBlackjack,
		"coinflip":  b.gameHandler.HandleCoinflip,
		"crash":     b.gameHandler.HandleCrash,
		"ping": func(ctx context.Context, c handler.Context) handler.Reply {
			return b.accountHandler.HandlePing(ctx, c, b.session.HeartbeatLatency())
		},
	}
}

// Start opens the Discord connection.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

// Stop closes the Discord connection. Sessions for in-flight games are left
// registered; their timers fire and release claims as usual.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	if err := b.session.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing discord session")
	}
}

func (b *Bot) onReady(_ *discordgo.Session, event *discordgo.Ready) {
	log.Info().
		Str("username", event.User.Username).
		Str("user_id", event.User.ID).
		Msg("Bot logged in")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	prefix := b.cfg.Bot.Prefix
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, u.ID)
	}

	log.Debug().
		Str("command", name).
		Str("user_id", m.Author.ID).
		Str("channel_id", m.ChannelID).
		Msg("Received command")

	reply := cmd(context.Background(), handler.Context{
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Args:      fields[1:],
		Mentions:  mentions,
	})
	b.sendReply(s, m.ChannelID, reply)
}

func (b *Bot) sendReply(s *discordgo.Session, channelID string, reply handler.Reply) {
	var err error
	switch {
	case reply.Content != nil:
		_, err = s.ChannelMessageSendEmbed(channelID, toEmbed(*reply.Content))
	case reply.Text != "":
		_, err = s.ChannelMessageSend(channelID, reply.Text)
	default:
		return
	}
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to send reply")
	}
}

func (b *Bot) onMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}

	ev := gateway.Event{
		PromptID: joinPromptID(r.ChannelID, r.MessageID),
		ActorID:  r.UserID,
		Token:    r.Emoji.Name,
	}
	if err := b.sessions.Dispatch(context.Background(), ev); err != nil {
		log.Error().
			Err(err).
			Str("prompt_id", ev.PromptID).
			Str("actor_id", ev.ActorID).
			Str("token", ev.Token).
			Msg("Reaction dispatch failed")
	}
}
