package chat

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/zap-gateway/internal/model/chat"
)

const (
	// DefaultHistoryLimit is the number of turns kept per conversation.
	DefaultHistoryLimit = 20
	// DefaultLanguage is the response language used until a conversation overrides it.
	DefaultLanguage = "português brasileiro"
)

// Service keeps per-conversation history and preferences in memory.
// Conversations live for the lifetime of the process.
type Service struct {
	mu              sync.RWMutex
	conversations   map[string]*chat.Conversation
	historyLimit    int
	defaultLanguage string
	now             func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithHistoryLimit caps the stored history. Non-positive values keep the default.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithDefaultLanguage sets the language reported for conversations that never chose one.
func WithDefaultLanguage(language string) Option {
	return func(s *Service) {
		if language != "" {
			s.defaultLanguage = language
		}
	}
}

// NewService bootstraps the in-memory conversation store.
func NewService(opts ...Option) *Service {
	s := &Service{
		conversations:   make(map[string]*chat.Conversation),
		historyLimit:    DefaultHistoryLimit,
		defaultLanguage: DefaultLanguage,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the conversation, or a fresh one when the key is unknown.
// It never registers the key.
func (s *Service) Get(_ context.Context, key string) chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok {
		return chat.Conversation{Key: key, PreferredLanguage: s.defaultLanguage}
	}
	return conv.Clone()
}

// AppendExchange stores one user turn and one assistant turn, then keeps only
// the most recent historyLimit turns.
func (s *Service) AppendExchange(_ context.Context, key, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.lookupLocked(key)
	history := append(conv.History, chat.UserTurn(userText), chat.AssistantTurn(assistantText))
	if overflow := len(history) - s.historyLimit; overflow > 0 {
		history = append([]chat.Turn(nil), history[overflow:]...)
	}
	conv.History = history
	conv.UpdatedAt = s.now()
}

// SetLanguage overrides the response language of a conversation.
func (s *Service) SetLanguage(_ context.Context, key, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.lookupLocked(key)
	conv.PreferredLanguage = language
	conv.UpdatedAt = s.now()
}

// Count returns the number of known conversations.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Service) lookupLocked(key string) *chat.Conversation {
	conv, ok := s.conversations[key]
	if !ok {
		conv = &chat.Conversation{
			Key:               key,
			History:           make([]chat.Turn, 0, s.historyLimit),
			PreferredLanguage: s.defaultLanguage,
		}
		s.conversations[key] = conv
	}
	return conv
}
