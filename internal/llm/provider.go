package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/budget"
)

// Client is the minimal chat-completions surface the adapter needs. It
// mirrors *openai.Client so any OpenAI-compatible backend can be plugged in.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability used for credential checks.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// CompletionOptions are the sampling settings sent with one completion.
type CompletionOptions struct {
	Temperature     float64
	MaxOutputTokens int
	TopP            float64
	// System, when set, is sent as the system message ahead of the prompt.
	System string
}

// ModelInfo describes the active model.
type ModelInfo struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	MaxTokens     int    `json:"maxTokens"`
	ContextWindow int    `json:"contextWindow"`
}

// Provider is the capability interface the orchestrator generates through.
type Provider interface {
	GenerateCompletion(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	ValidateCredentials(ctx context.Context) bool
	ModelInfo() ModelInfo
}

// OpenAIAdapter implements Provider over an OpenAI-compatible Client.
type OpenAIAdapter struct {
	Client    Client
	Provider  string
	Model     string
	MaxTokens int
	// Timeout bounds each call; the request context is cancelled when it
	// elapses so the remote call is aborted too.
	Timeout time.Duration
}

// GenerateCompletion sends prompt as a single user message and returns the
// first choice's text. Failures are classified into apperr provider kinds.
func (a *OpenAIAdapter) GenerateCompletion(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if a.Client == nil || strings.TrimSpace(a.Model) == "" {
		return "", apperr.E(apperr.ProviderOther, "provider not configured")
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = a.MaxTokens
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(opts.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	req := openai.ChatCompletionRequest{
		Model:       a.Model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   maxTokens,
		N:           1,
	}
	log.Debug().Str("stage", "provider").Str("provider", a.Provider).Str("model", a.Model).Int("prompt_len", len(prompt)).Msg("completion request")
	resp, err := a.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.E(apperr.ProviderEmptyResponse, "no choices returned")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", apperr.E(apperr.ProviderEmptyResponse, "empty completion")
	}
	return out, nil
}

// ValidateCredentials lists models when the backend supports it. Backends
// without a model listing are assumed valid.
func (a *OpenAIAdapter) ValidateCredentials(ctx context.Context) bool {
	lister, ok := a.Client.(ModelLister)
	if !ok {
		return a.Client != nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := lister.ListModels(ctx); err != nil {
		log.Warn().Err(err).Str("provider", a.Provider).Msg("credential check failed")
		return false
	}
	return true
}

func (a *OpenAIAdapter) ModelInfo() ModelInfo {
	return ModelInfo{
		Name:          a.Model,
		Provider:      a.Provider,
		MaxTokens:     a.MaxTokens,
		ContextWindow: budget.ModelContextTokens(a.Model),
	}
}

// Classify maps a transport error onto the provider error kinds.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.ProviderAuthError, err, "provider rejected credentials")
	case http.StatusTooManyRequests:
		return apperr.Wrap(apperr.ProviderRateLimited, err, "provider rate limited")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.ProviderOther, err, "provider call timed out")
	}
	return apperr.Wrap(apperr.ProviderOther, err, fmt.Sprintf("provider call failed (status %d)", status))
}
