// Package gateway turns inbound chat messages into replies: authorization,
// reserved commands, backend liveness and generation, in that order.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/zhouzirui/zap-gateway/internal/model/chat"
	"github.com/zhouzirui/zap-gateway/internal/model/transport"
	"github.com/zhouzirui/zap-gateway/internal/service/ai"
	"github.com/zhouzirui/zap-gateway/internal/service/command"
)

const (
	// UnreachableReply is sent when the backend fails its liveness probe.
	UnreachableReply = "Desculpe, o servidor de IA não está acessível no momento."
	// ErrorReply is sent when generation fails after a successful probe.
	ErrorReply = "Desculpe, ocorreu um erro ao processar sua mensagem."

	// DefaultTemperature is the sampling temperature of every completion.
	DefaultTemperature = 0.7
)

// Authorizer decides whether a sender may use the bot.
type Authorizer interface {
	IsAuthorized(senderID string) bool
}

// CommandRouter answers reserved commands.
type CommandRouter interface {
	Route(ctx context.Context, key, text string) (command.Result, bool)
}

// Store holds conversation history.
type Store interface {
	Get(ctx context.Context, key string) chat.Conversation
	AppendExchange(ctx context.Context, key, userText, assistantText string)
}

// Backend is the text-generation backend.
type Backend interface {
	Probe(ctx context.Context) bool
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
}

// Sender delivers replies to a chat.
type Sender interface {
	Send(ctx context.Context, to, text, quotedID string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, text, quotedID string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, to, text, quotedID string) error {
	return f(ctx, to, text, quotedID)
}

// Outcome is how the handling of one message ended.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeCommand      Outcome = "command"
	OutcomeUnreachable  Outcome = "backend_unreachable"
	OutcomeFailed       Outcome = "backend_error"
	OutcomeReplied      Outcome = "replied"
	OutcomePanicked     Outcome = "panicked"
)

// Deps are the collaborators of a Gateway.
type Deps struct {
	Auth     Authorizer
	Commands CommandRouter
	Store    Store
	Backend  Backend
	Sender   Sender
}

// Gateway processes inbound messages. Messages of different conversations
// run concurrently; messages of the same conversation run one at a time in
// arrival order.
type Gateway struct {
	deps        Deps
	temperature float64
	logger      *slog.Logger
	serial      *serializer
	newTraceID  func() string
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(g *Gateway) {
		g.temperature = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Gateway.
func New(deps Deps, opts ...Option) *Gateway {
	g := &Gateway{
		deps:        deps,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
		serial:      newSerializer(),
		newTraceID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dispatch queues msg behind earlier messages of the same conversation and
// returns immediately.
func (g *Gateway) Dispatch(ctx context.Context, msg transport.InboundMessage) {
	if _, ok := relevant(msg); !ok {
		return
	}
	g.serial.Submit(msg.SenderID(), func() {
		g.Handle(ctx, msg)
	})
}

// Wait blocks until every dispatched message was handled or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.serial.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one message synchronously. Callers must not run two
// messages of the same conversation concurrently; Dispatch guarantees that.
func (g *Gateway) Handle(ctx context.Context, msg transport.InboundMessage) (outcome Outcome) {
	text, ok := relevant(msg)
	if !ok {
		return OutcomeIgnored
	}

	key := msg.SenderID()
	logger := g.logger.With(
		"trace_id", g.newTraceID(),
		"conversation", key,
		"message_id", msg.ID,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("message handler panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = OutcomePanicked
		}
	}()

	if !g.deps.Auth.IsAuthorized(key) {
		logger.Info("message dropped", "stage", "authorize", "outcome", OutcomeUnauthorized)
		return OutcomeUnauthorized
	}

	if result, ok := g.deps.Commands.Route(ctx, key, text); ok {
		logger.Info("command handled", "stage", "command", "command", result.Command)
		g.reply(ctx, logger, msg, result.Reply)
		return OutcomeCommand
	}

	if !g.deps.Backend.Probe(ctx) {
		logger.Warn("backend unreachable", "stage", "probe", "outcome", OutcomeUnreachable)
		g.reply(ctx, logger, msg, UnreachableReply)
		return OutcomeUnreachable
	}

	conv := g.deps.Store.Get(ctx, key)
	answer, err := g.deps.Backend.Complete(ctx, ai.CompletionRequest{
		ConversationKey: key,
		History:         conv.History,
		Language:        conv.PreferredLanguage,
		Query:           text,
		Temperature:     g.temperature,
	})
	if err != nil {
		logger.Error("completion failed", "stage", "complete", "outcome", OutcomeFailed, "error", err)
		g.reply(ctx, logger, msg, ErrorReply)
		return OutcomeFailed
	}

	g.deps.Store.AppendExchange(ctx, key, text, answer)
	logger.Info("completion stored", "stage", "complete", "previous_turns", len(conv.History))
	g.reply(ctx, logger, msg, answer)
	return OutcomeReplied
}

func (g *Gateway) reply(ctx context.Context, logger *slog.Logger, msg transport.InboundMessage, text string) {
	if err := g.deps.Sender.Send(ctx, msg.ChatID, text, msg.ID); err != nil {
		logger.Error("failed to send reply", "stage", "send", "error", fmt.Errorf("send to %s: %w", msg.ChatID, err))
		return
	}
	logger.Debug("reply sent", "stage", "send", "length", len(text))
}

// relevant filters out self-sent messages and messages without text.
func relevant(msg transport.InboundMessage) (string, bool) {
	if msg.FromMe {
		return "", false
	}
	return msg.Text()
}
