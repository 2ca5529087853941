// Package transport holds the messaging types shared by the notifier, the
// command router and the concrete adapters.
package transport

import "context"

// Message is an incoming text message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a Sender that also receives messages.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
