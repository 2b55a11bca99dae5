package ops

import (
	"context"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/tracker"
)

// SendChatInput contains parameters for the SendChat operation.
type SendChatInput struct {
	Message string
}

// SendChatOutput contains both messages appended by SendChat.
type SendChatOutput struct {
	User     tracker.ChatMessage `json:"user"`
	Reply    tracker.ChatMessage `json:"reply"`
	Fallback bool                `json:"fallback"`
}

// SendChat relays one user message and returns the stored exchange.
func SendChat(ctx context.Context, relay *chat.Relay, input SendChatInput) (*SendChatOutput, error) {
	user, reply, err := relay.Send(ctx, input.Message)
	if err != nil {
		return nil, err
	}
	return &SendChatOutput{
		User:     user,
		Reply:    reply,
		Fallback: reply.Text == chat.FallbackMessage,
	}, nil
}
