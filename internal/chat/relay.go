package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	namierrors "github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/metrics"
	"github.com/hpungsan/nami/internal/tracker"
)

// ErrNoGenerator is returned when no generation service is configured.
var ErrNoGenerator = errors.New("no generator configured")

// History is the chat log the relay reads and appends to.
type History interface {
	ChatHistory() []tracker.ChatMessage
	AddChatMessage(ctx context.Context, m tracker.ChatMessage) tracker.ChatMessage
}

// Relay sends user utterances with the prior conversation to a Generator
// and appends both sides to the history. At most one Send runs at a time.
type Relay struct {
	history History
	gen     Generator
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
	busy    atomic.Bool
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets the logger.
func WithRelayLogger(log *zap.Logger) RelayOption {
	return func(r *Relay) { r.log = log }
}

// WithRelayMetrics sets the metrics collector.
func WithRelayMetrics(m *metrics.Collector) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

// WithRelayClock overrides time.Now.
func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

// NewRelay creates a relay. A nil gen makes every Send answer with the
// fallback message.
func NewRelay(history History, gen Generator, opts ...RelayOption) *Relay {
	r := &Relay{
		history: history,
		gen:     gen,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Busy reports whether a Send is in flight.
func (r *Relay) Busy() bool {
	return r.busy.Load()
}

// Send appends the trimmed text as a user message, asks the generator for a reply and
// appends it as an assistant message. Any generation failure appends
// FallbackMessage instead, so an accepted call always adds exactly two
// messages.
//
// Blank text is rejected with INVALID_REQUEST and a call made while another
// is in flight is rejected with BUSY; neither appends anything. Once
// accepted, the call is not cancelled by ctx.
func (r *Relay) Send(ctx context.Context, text string) (user, reply tracker.ChatMessage, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return user, reply, namierrors.NewInvalidRequest("message must not be empty")
	}
	if !r.busy.CompareAndSwap(false, true) {
		r.metrics.ChatReply(metrics.ResultRejected, 0)
		return user, reply, namierrors.NewBusy("chat request")
	}
	defer r.busy.Store(false)

	ctx = context.WithoutCancel(ctx)

	prior := r.history.ChatHistory()
	user = r.history.AddChatMessage(ctx, tracker.ChatMessage{
		Role:      tracker.RoleUser,
		Text:      text,
		Timestamp: r.now(),
	})

	start := time.Now()
	answer, genErr := r.generate(ctx, Transcript(prior, text))
	elapsed := time.Since(start)
	if genErr != nil {
		r.log.Warn("assistant reply failed, using fallback", zap.Error(genErr), zap.Duration("elapsed", elapsed))
		r.metrics.ChatReply(metrics.ResultFallback, elapsed)
		answer = FallbackMessage
	} else {
		r.metrics.ChatReply(metrics.ResultOK, elapsed)
	}

	reply = r.history.AddChatMessage(ctx, tracker.ChatMessage{
		Role:      tracker.RoleAssistant,
		Text:      answer,
		Timestamp: r.now(),
	})
	return user, reply, nil
}

// Ask sends a single utterance without history and returns the reply.
// It backs the stateless HTTP proxy.
func (r *Relay) Ask(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", namierrors.NewInvalidRequest("userInput is required")
	}
	return r.generate(ctx, []Turn{{Role: RoleUser, Text: text}})
}

func (r *Relay) generate(ctx context.Context, turns []Turn) (string, error) {
	if r.gen == nil {
		return "", ErrNoGenerator
	}
	return r.gen.Generate(ctx, GenerateRequest{
		System:      SystemPrompt,
		Turns:       turns,
		Temperature: Temperature,
		TopP:        TopP,
	})
}

// Transcript maps prior messages to service roles and appends the new
// utterance as the last user turn.
func Transcript(prior []tracker.ChatMessage, text string) []Turn {
	turns := make([]Turn, 0, len(prior)+1)
	for _, m := range prior {
		turns = append(turns, Turn{Role: wireRole(m.Role), Text: m.Text})
	}
	return append(turns, Turn{Role: RoleUser, Text: text})
}

func wireRole(r tracker.Role) string {
	if r == tracker.RoleAssistant {
		return RoleModel
	}
	return RoleUser
}
