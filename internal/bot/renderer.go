package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-wager-bot/internal/gateway"
)

// Renderer implements gateway.Renderer on top of a Discord session. Prompt
// IDs are "channelID/messageID" so the games never see Discord's two-part
// addressing.
type Renderer struct {
	session *discordgo.Session
}

// NewRenderer wraps a Discord session as a render sink.
func NewRenderer(s *discordgo.Session) *Renderer {
	return &Renderer{session: s}
}

// CreatePrompt posts a new embed and returns its prompt ID.
func (r *Renderer) CreatePrompt(_ context.Context, channelID string, content gateway.Content) (string, error) {
	msg, err := r.session.ChannelMessageSendEmbed(channelID, toEmbed(content))
	if err != nil {
		return "", fmt.Errorf("failed to post prompt: %w", err)
	}
	return joinPromptID(channelID, msg.ID), nil
}

// EditPrompt replaces the prompt's embed.
func (r *Renderer) EditPrompt(_ context.Context, promptID string, content gateway.Content) error {
	channelID, messageID, err := splitPromptID(promptID)
	if err != nil {
		return err
	}
	if _, err := r.session.ChannelMessageEditEmbed(channelID, messageID, toEmbed(content)); err != nil {
		return fmt.Errorf("failed to edit prompt: %w", err)
	}
	return nil
}

// AddControl reacts to the prompt with the control token, seeding the
// button players tap.
func (r *Renderer) AddControl(_ context.Context, promptID, token string) error {
	channelID, messageID, err := splitPromptID(promptID)
	if err != nil {
		return err
	}
	if err := r.session.MessageReactionAdd(channelID, messageID, token); err != nil {
		return fmt.Errorf("failed to add control %q: %w", token, err)
	}
	return nil
}

// ClearControls strips every reaction from the prompt.
func (r *Renderer) ClearControls(_ context.Context, promptID string) error {
	channelID, messageID, err := splitPromptID(promptID)
	if err != nil {
		return err
	}
	if err := r.session.MessageReactionsRemoveAll(channelID, messageID); err != nil {
		return fmt.Errorf("failed to clear controls: %w", err)
	}
	return nil
}

// RemoveActorControl retracts one player's reaction so the control can be
// tapped again.
func (r *Renderer) RemoveActorControl(_ context.Context, promptID, token, actorID string) error {
	channelID, messageID, err := splitPromptID(promptID)
	if err != nil {
		return err
	}
	if err := r.session.MessageReactionRemove(channelID, messageID, token, actorID); err != nil {
		return fmt.Errorf("failed to remove actor control: %w", err)
	}
	return nil
}

func toEmbed(content gateway.Content) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       content.Title,
		Description: content.Description,
		Color:       content.Color,
	}
	for _, f := range content.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return embed
}

func joinPromptID(channelID, messageID string) string {
	return channelID + "/" + messageID
}

func splitPromptID(promptID string) (channelID, messageID string, err error) {
	channelID, messageID, ok := strings.Cut(promptID, "/")
	if !ok || channelID == "" || messageID == "" {
		return "", "", fmt.Errorf("malformed prompt id %q", promptID)
	}
	return channelID, messageID, nil
}
