package ai

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
)

// ErrEmptyResponse is returned when a provider answers with no content and no tool calls.
var ErrEmptyResponse = errors.New("ai: empty completion")

// Request is one chat-completion call.
type Request struct {
	System  string
	History []chat.Message
	Tools   []chat.Tool
}

// Completer produces the next assistant message for an ordered history.
type Completer interface {
	Complete(ctx context.Context, req Request) (chat.Message, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (chat.Message, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (chat.Message, error) {
	return f(ctx, req)
}
