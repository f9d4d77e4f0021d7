// Package transport defines the chat-platform surface the core depends on.
// The core is agnostic to the concrete platform; Telegram lives in a subpackage.
package transport

import "context"

type ChatTarget struct {
	ChatID int64
}

// UserTarget addresses a direct message to one subscriber.
func UserTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	// Monospace renders the text as a code block.
	Monospace      bool
	DisablePreview bool
}

// Command is one inbound bot command.
type Command struct {
	ChatID       int64
	FromID       int64
	FromUsername string
	// Payload is the raw text after the command name.
	Payload string
}

// Adapter is the outbound/inbound chat-platform boundary.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// Handle registers a handler for /command messages.
	Handle(command string, fn func(ctx context.Context, cmd Command) error)
}
