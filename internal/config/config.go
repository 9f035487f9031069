package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. ZAP_BACKEND__BASE_URL.
const EnvPrefix = "ZAP_"

// legacyAllowListEnv holds a JSON array of permitted senders.
const legacyAllowListEnv = "TELEFONES_PERMITIDOS"

// Config aggregates every setting of the gateway.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Backend      BackendConfig      `koanf:"backend"`
	Access       AccessConfig       `koanf:"access"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	Conversation ConversationConfig `koanf:"conversation"`
	Transport    TransportConfig    `koanf:"transport"`
	Session      SessionConfig      `koanf:"session"`
	Log          LogConfig          `koanf:"log"`
}

// ServerConfig describes the health/status HTTP listener.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// BackendConfig describes the OpenAI-compatible text-generation backend.
type BackendConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	APIKey            string        `koanf:"api_key"`
	Temperature       float64       `koanf:"temperature"`
	ProbeTimeout      time.Duration `koanf:"probe_timeout"`
	CompletionTimeout time.Duration `koanf:"completion_timeout"`
	// ProbeCacheTTL keeps the last probe result for this long. Zero disables caching.
	ProbeCacheTTL time.Duration `koanf:"probe_cache_ttl"`
}

// AccessConfig lists the sender identifiers allowed to talk to the bot.
type AccessConfig struct {
	AllowedSenders []string `koanf:"allowed_senders"`
}

// KnowledgeConfig locates the static reference documents.
type KnowledgeConfig struct {
	Dir      string   `koanf:"dir"`
	Patterns []string `koanf:"patterns"`
}

// ConversationConfig bounds the per-conversation state.
type ConversationConfig struct {
	HistoryLimit    int    `koanf:"history_limit"`
	DefaultLanguage string `koanf:"default_language"`
}

// TransportConfig describes the websocket bridge to the chat network.
type TransportConfig struct {
	BridgeURL        string        `koanf:"bridge_url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
}

// SessionConfig tunes the reconnection backoff.
type SessionConfig struct {
	ReconnectBaseDelay time.Duration `koanf:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `koanf:"reconnect_max_delay"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Backend: BackendConfig{
			BaseURL:           "http://localhost:11434",
			Model:             "gemma3:4b",
			Temperature:       0.7,
			ProbeTimeout:      5 * time.Second,
			CompletionTimeout: 60 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Dir:      "knowledge",
			Patterns: []string{"*.txt", "*.json"},
		},
		Conversation: ConversationConfig{
			HistoryLimit:    20,
			DefaultLanguage: "português brasileiro",
		},
		Transport: TransportConfig{
			BridgeURL:        "ws://localhost:3000/ws",
			HandshakeTimeout: 30 * time.Second,
			PingInterval:     30 * time.Second,
			WriteTimeout:     10 * time.Second,
		},
		Session: SessionConfig{
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the optional YAML file at path, overlays ZAP_* environment
// variables and the legacy allow-list variable, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// ZAP_BACKEND__BASE_URL -> backend.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	legacy, err := parseStringListEnv(legacyAllowListEnv)
	if err != nil {
		return nil, err
	}
	cfg.Access.AllowedSenders = mergeUnique(cfg.Access.AllowedSenders, legacy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can drive a gateway.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if strings.TrimSpace(c.Backend.Model) == "" {
		errs = append(errs, errors.New("backend.model is required"))
	}
	if c.Backend.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("backend.probe_timeout must be positive"))
	}
	if c.Backend.CompletionTimeout <= 0 {
		errs = append(errs, errors.New("backend.completion_timeout must be positive"))
	}
	if c.Backend.ProbeCacheTTL < 0 {
		errs = append(errs, errors.New("backend.probe_cache_ttl must be non-negative"))
	}
	if c.Conversation.HistoryLimit <= 0 || c.Conversation.HistoryLimit%2 != 0 {
		errs = append(errs, fmt.Errorf("conversation.history_limit must be a positive even number, got %d", c.Conversation.HistoryLimit))
	}
	if strings.TrimSpace(c.Transport.BridgeURL) == "" {
		errs = append(errs, errors.New("transport.bridge_url is required"))
	}
	if c.Session.ReconnectBaseDelay < 0 || c.Session.ReconnectMaxDelay < 0 {
		errs = append(errs, errors.New("session reconnect delays must be non-negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func parseStringListEnv(key string) ([]string, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}

	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return values, nil
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, v := range append(append([]string(nil), base...), extra...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged
}
