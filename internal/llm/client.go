// Package llm wraps the external generative-language-model service behind
// the narrow capability set the companion core needs: start a session with
// prior history, send a turn, describe images, and one-shot generation.
// Any service offering this shape is substitutable.
package llm

import "context"

// Role identifies the author of a conversation turn as the model service
// understands it.
type Role string

const (
	// RoleUser marks turns authored by the human user.
	RoleUser Role = "user"
	// RoleModel marks turns authored by the model.
	RoleModel Role = "model"
)

// Turn is one prior exchange replayed into a session on creation.
type Turn struct {
	Role Role
	Text string
}

// InlineImage is an image payload for the vision-capable model,
// base64-encoded for transmission.
type InlineImage struct {
	MIMEType   string
	Base64Data string
}

// Chat is a live, stateful model session seeded with instruction and
// prior turns. Not safe for concurrent use; the owning session serializes
// access.
type Chat interface {
	// Send submits one user turn and returns the model's reply text.
	Send(ctx context.Context, text string) (string, error)
}

// Client is the connection to the generative-model service.
type Client interface {
	// StartChat opens a session seeded with the instruction block and
	// prior turns, reconstructing equivalent context without re-sending
	// the turns as new input.
	StartChat(ctx context.Context, instruction string, history []Turn) (Chat, error)

	// DescribeImages issues one stateless multi-image description request
	// to the vision-capable model.
	DescribeImages(ctx context.Context, prompt string, images []InlineImage) (string, error)

	// Generate issues one stateless structured-content-generation request.
	Generate(ctx context.Context, prompt string) (string, error)
}
