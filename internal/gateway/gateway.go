// Package gateway defines the boundary between the game engine and the chat
// transport. The engine only ever sees reaction events and a render sink;
// everything Discord-specific lives in the adapter that implements these.
package gateway

import "context"

// Event is a single inbound reaction on a prompt message.
type Event struct {
	PromptID string
	ActorID  string
	Token    string
}

// Field is one titled column of a rendered prompt.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Content is a transport-agnostic prompt body.
type Content struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
}

// Mention renders a user mention for prompt text.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// Prompt colors shared by the games.
const (
	ColorNeutral = 0x5865F2
	ColorPending = 0xFEE75C
	ColorWin     = 0x57F287
	ColorLose    = 0xED4245
)

// Renderer is the outbound render sink. Implementations are expected to be
// safe for concurrent use. Callers treat every method as fire-and-forget:
// a render failure may abort a game during setup, but never after money has
// moved.
type Renderer interface {
	// CreatePrompt posts a new prompt and returns its ID.
	CreatePrompt(ctx context.Context, channelID string, content Content) (string, error)
	// EditPrompt replaces the prompt's content.
	EditPrompt(ctx context.Context, promptID string, content Content) error
	// AddControl attaches a reaction control token to the prompt.
	AddControl(ctx context.Context, promptID, token string) error
	// ClearControls removes every control from the prompt.
	ClearControls(ctx context.Context, promptID string) error
	// RemoveActorControl retracts one actor's reaction mark from the prompt.
	RemoveActorControl(ctx context.Context, promptID, token, actorID string) error
}
