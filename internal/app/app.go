package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/extract"
	"github.com/hyperifyio/postforge/internal/fetch"
	"github.com/hyperifyio/postforge/internal/generate"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/httpapi"
	"github.com/hyperifyio/postforge/internal/llm"
	"github.com/hyperifyio/postforge/internal/metrics"
	"github.com/hyperifyio/postforge/internal/pipeline"
	"github.com/hyperifyio/postforge/internal/quota"
	"github.com/hyperifyio/postforge/internal/robots"
	"github.com/hyperifyio/postforge/internal/store"
)

// App owns the wired components for one process.
type App struct {
	cfg      Config
	store    store.Store
	provider llm.Provider

	Registry *generator.Registry
	Metrics  *metrics.Ring
	Service  *pipeline.Service
}

// New builds every component from cfg. A provider that fails the credential
// preflight is logged but not fatal; generation then degrades to fallback
// posts.
func New(ctx context.Context, cfg Config) (*App, error) {
	ApplyDefaults(&cfg)

	provider, err := llm.New(llm.Config{
		Provider:   cfg.LLMProvider,
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		MaxTokens:  cfg.MaxOutputTokens,
		Timeout:    cfg.LLMTimeout,
		HTTPClient: newHighThroughputHTTPClient(cfg.LLMTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	return NewWithProvider(ctx, cfg, provider)
}

// NewWithProvider is New with an already constructed provider.
func NewWithProvider(ctx context.Context, cfg Config, provider llm.Provider) (*App, error) {
	ApplyDefaults(&cfg)

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	info := provider.ModelInfo()
	if provider.ValidateCredentials(pctx) {
		log.Info().Str("provider", info.Provider).Str("model", info.Name).Msg("LLM provider reachable")
	} else {
		log.Warn().Str("provider", info.Provider).Str("model", info.Name).Msg("LLM credential check failed; continuing")
	}

	ring := metrics.NewRing(0)
	reg := generator.DefaultRegistry()
	fetcher := &fetch.Client{
		HTTPClient:    newHighThroughputHTTPClient(cfg.ExtractTimeout),
		UserAgent:     UserAgent(),
		Timeout:       cfg.ExtractTimeout,
		MaxConcurrent: 8,
	}

	a := &App{
		cfg:      cfg,
		store:    st,
		provider: provider,
		Registry: reg,
		Metrics:  ring,
	}
	a.Service = &pipeline.Service{
		Quota: quota.NewEngine(st),
		Extractor: &extract.Extractor{
			Fetcher: fetcher,
			Policy: &robots.Manager{
				HTTPClient:        newHighThroughputHTTPClient(10 * time.Second),
				UserAgent:         UserAgent(),
				AllowPrivateHosts: cfg.AllowPrivateHosts,
			},
		},
		Orchestrator: &generate.Orchestrator{
			Provider:        provider,
			Registry:        reg,
			Metrics:         ring,
			MaxContentChars: cfg.MaxContentChars,
			MaxInputTokens:  cfg.MaxInputTokens,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Concurrency:     cfg.Concurrency,
		},
		Log: st,
	}
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Handler returns the HTTP and WebSocket API.
func (a *App) Handler() http.Handler {
	srv := &httpapi.Server{
		Service:     a.Service,
		Registry:    a.Registry,
		Metrics:     a.Metrics,
		CORSOrigins: a.cfg.CORSOrigins,
	}
	if len(a.cfg.AuthTokens) > 0 {
		srv.Auth = httpapi.TokenAuthenticator{Tokens: a.cfg.AuthTokens}
	}
	return srv.Handler()
}

// Run performs one generation from cfg and writes the Markdown rendering to
// cfg.OutputPath, or to stdout when the path is empty or "-". A PDF copy is
// written when OutputPDFPath is set.
func (a *App) Run(ctx context.Context, stdout io.Writer) error {
	resp, err := a.Service.Generate(ctx, a.cfg.UserID, pipeline.Input{
		Content:   a.cfg.Content,
		URL:       a.cfg.URL,
		Platforms: a.cfg.Platforms,
		Options:   a.cfg.Options,
	})
	if err != nil {
		return err
	}
	md := RenderMarkdown(resp)
	if out := strings.TrimSpace(a.cfg.OutputPath); out == "" || out == "-" {
		if _, err := io.WriteString(stdout, md); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else {
		if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		log.Info().Str("path", out).Msg("wrote posts")
	}
	if pdfPath := strings.TrimSpace(a.cfg.OutputPDFPath); pdfPath != "" {
		if err := writeSimplePDF(md, pdfPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("path", pdfPath).Msg("wrote pdf")
	}
	return nil
}
