package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/zap-gateway/internal/config"
	"github.com/zhouzirui/zap-gateway/internal/model/chat"
)

// CompletionRequest is one generation call for a conversation.
type CompletionRequest struct {
	ConversationKey string
	History         []chat.Turn
	Language        string
	Query           string
	Temperature     float64
}

// Service wraps the text-generation backend: a liveness probe and a chat
// completion, each bounded by its own timeout.
type Service struct {
	httpClient        *http.Client
	modelsURL         string
	apiKey            string
	chain             compose.Runnable[map[string]any, *schema.Message]
	knowledge         string
	probeTimeout      time.Duration
	completionTimeout time.Duration
	logger            *slog.Logger

	probeTTL  time.Duration
	probeMu   sync.Mutex
	probedAt  time.Time
	probeLast bool
	now       func() time.Time
}

// NewService creates the backend client. knowledge is injected verbatim into
// every system prompt when not empty.
func NewService(ctx context.Context, cfg config.BackendConfig, knowledge string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = apiBaseURL(cfg.BaseURL)
	clientCfg.HTTPClient = httpClient
	client := openai.NewClientWithConfig(clientCfg)

	// history first, then the synthesized system turn, then the new user turn
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", true),
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(newOpenAIChatModel(client, cfg.Model))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		httpClient:        httpClient,
		modelsURL:         clientCfg.BaseURL + "/models",
		apiKey:            cfg.APIKey,
		chain:             runnable,
		knowledge:         knowledge,
		probeTimeout:      cfg.ProbeTimeout,
		completionTimeout: cfg.CompletionTimeout,
		probeTTL:          cfg.ProbeCacheTTL,
		logger:            logger,
		now:               time.Now,
	}, nil
}

// Probe checks that GET /v1/models answers with any 2xx status within the
// probe timeout. The body is not inspected. Any failure yields false.
func (s *Service) Probe(ctx context.Context) bool {
	if reachable, ok := s.cachedProbe(); ok {
		return reachable
	}

	err := s.probe(ctx)
	if err != nil {
		s.logger.Warn("backend probe failed", "error", err)
	}

	reachable := err == nil
	s.storeProbe(reachable)
	return reachable
}

func (s *Service) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.modelsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: building probe request: %w", ErrBackendUnavailable, err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s returned %s", ErrBackendUnavailable, s.modelsURL, resp.Status)
	}
	return nil
}

// cachedProbe returns the last result while it is younger than the TTL. The
// lock is never held across the network call.
func (s *Service) cachedProbe() (bool, bool) {
	if s.probeTTL <= 0 {
		return false, false
	}
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if s.probedAt.IsZero() || s.now().Sub(s.probedAt) >= s.probeTTL {
		return false, false
	}
	return s.probeLast, true
}

func (s *Service) storeProbe(reachable bool) {
	if s.probeTTL <= 0 {
		return
	}
	s.probeMu.Lock()
	s.probedAt = s.now()
	s.probeLast = reachable
	s.probeMu.Unlock()
}

// Complete runs the prompt chain and returns the first generated message.
// Failures wrap ErrBackendUnavailable or ErrBackendError.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.completionTimeout)
	defer cancel()

	input := map[string]any{
		"history": buildHistoryMessages(req.History),
		"system":  BuildSystemPrompt(req.Language, s.knowledge),
		"query":   req.Query,
	}

	response, err := s.chain.Invoke(ctx, input,
		compose.WithChatModelOption(model.WithTemperature(float32(req.Temperature))),
	)
	if err != nil {
		return "", fmt.Errorf("failed to run backend chain: %w", err)
	}

	s.logger.Debug("backend completion", "conversation", req.ConversationKey, "length", len(response.Content))
	return response.Content, nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

// apiBaseURL turns the configured backend root into the /v1 API base.
func apiBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
