package transport

import "context"

// SendOptions controls message presentation.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers notification text to a chat. Implementations are safe
// for concurrent use.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opt *SendOptions) error
}
