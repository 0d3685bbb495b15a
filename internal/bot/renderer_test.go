package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-wager-bot/internal/gateway"
)

func TestPromptIDRoundTrip(t *testing.T) {
	id := joinPromptID("chan-1", "msg-9")
	assert.Equal(t, "chan-1/msg-9", id)

	channelID, messageID, err := splitPromptID(id)
	require.NoError(t, err)
	assert.Equal(t, "chan-1", channelID)
	assert.Equal(t, "msg-9", messageID)
}

func TestSplitPromptID_Malformed(t *testing.T) {
	for _, id := range []string{"", "chan-1", "chan-1/", "/msg-9"} {
		_, _, err := splitPromptID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestToEmbed(t *testing.T) {
	embed := toEmbed(gateway.Content{
		Title:       "Blackjack",
		Description: "Your move.",
		Color:       gateway.ColorNeutral,
		Fields: []gateway.Field{
			{Name: "Dealer", Value: "🂠", Inline: true},
			{Name: "You", Value: "A♠ K♦ (21)", Inline: true},
		},
	})

	assert.Equal(t, "Blackjack", embed.Title)
	assert.Equal(t, "Your move.", embed.Description)
	assert.Equal(t, gateway.ColorNeutral, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Dealer", embed.Fields[0].Name)
	assert.True(t, embed.Fields[1].Inline)
}
