package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config selects and configures one provider backend.
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// HTTPClient is optional; a default client is used when nil.
	HTTPClient *http.Client
}

type backend struct {
	baseURL      string
	defaultModel string
	needsKey     bool
}

var backends = map[string]backend{
	"openai":     {defaultModel: "gpt-4o-mini", needsKey: true},
	"openrouter": {baseURL: "https://openrouter.ai/api/v1", defaultModel: "openai/gpt-4o-mini", needsKey: true},
	"groq":       {baseURL: "https://api.groq.com/openai/v1", defaultModel: "llama-3.3-70b-versatile", needsKey: true},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai/", defaultModel: "gemini-2.0-flash", needsKey: true},
	"local":      {},
}

// DefaultProvider is used when no provider id is configured.
const DefaultProvider = "openai"

// New builds a Provider for the given configuration. It holds no global
// state; callers rebuild the provider to switch backends.
func New(cfg Config) (Provider, error) {
	id := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if id == "" {
		id = DefaultProvider
	}
	b, ok := backends[id]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if b.needsKey && strings.TrimSpace(cfg.APIKey) == "" && strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("llm provider %q requires an API key", id)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = b.baseURL
	}
	if id == "local" && baseURL == "" {
		return nil, fmt.Errorf("llm provider %q requires a base URL", id)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = b.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("llm provider %q requires a model name", id)
	}
	transportCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		transportCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		transportCfg.HTTPClient = cfg.HTTPClient
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIAdapter{
		Client:    openai.NewClientWithConfig(transportCfg),
		Provider:  id,
		Model:     model,
		MaxTokens: maxTokens,
		Timeout:   timeout,
	}, nil
}

// Providers lists the supported provider ids.
func Providers() []string {
	return []string{"gemini", "groq", "local", "openai", "openrouter"}
}
