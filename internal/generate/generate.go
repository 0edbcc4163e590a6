// Package generate orchestrates one generation request: it validates the
// input, checks the token budget, asks the provider for every platform in
// parallel and assembles the results, falling back to deterministic posts
// when no platform produced anything usable.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/budget"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/llm"
	"github.com/hyperifyio/postforge/internal/metrics"
	"github.com/hyperifyio/postforge/internal/platform"
)

const (
	DefaultMaxContentChars = 50_000
	DefaultMaxInputTokens  = 16_000
	DefaultMaxOutputTokens = 2_000
	DefaultConcurrency     = 4

	// FallbackModel marks synthesized results.
	FallbackModel = "fallback"
)

// Request is one generation request.
type Request struct {
	Content   string
	Platforms []platform.ID
	Options   generator.Options
}

// Outcome tells callers how a result was produced.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
)

// Metadata describes how a result was produced.
type Metadata struct {
	TokensUsed       int       `json:"tokensUsed"`
	GenerationTimeMs int64     `json:"generationTimeMs"`
	Model            string    `json:"model"`
	Timestamp        time.Time `json:"timestamp"`
}

// Result is the assembled output of one request.
type Result struct {
	Posts    map[platform.ID][]generator.Post `json:"posts"`
	Metadata Metadata                         `json:"metadata"`
	Outcome  Outcome                          `json:"outcome"`
	// Failures holds the reason each omitted platform failed.
	Failures map[platform.ID]string `json:"failures,omitempty"`
}

// Fallback reports whether the posts were synthesized.
func (r Result) Fallback() bool { return r.Outcome == OutcomeFallback }

// Orchestrator runs the generation state machine. Provider and Registry are
// required; zero limits use the package defaults.
type Orchestrator struct {
	Provider        llm.Provider
	Registry        *generator.Registry
	Metrics         metrics.Recorder
	MaxContentChars int
	MaxInputTokens  int
	MaxOutputTokens int
	Concurrency     int
	Now             func() time.Time
}

type job struct {
	id     platform.ID
	gen    generator.Generator
	prompt string
	tokens int
}

// Generate validates req and produces posts for every recognized platform.
// Provider and parse failures never surface as errors; when all platforms
// fail the result is synthesized from the content instead. Validation and
// budget failures, and cancellation of ctx, are returned as errors.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	start := o.now()
	entry := metrics.Entry{
		RequestedAt:   start,
		InputChars:    generator.Length(req.Content),
		PlatformCount: len(req.Platforms),
	}
	res, err := o.run(ctx, req, start)
	entry.RespondedAt = o.now()
	entry.TokensUsed = res.Metadata.TokensUsed
	entry.Model = res.Metadata.Model
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Success = true
		entry.Fallback = res.Fallback()
	}
	if o.Metrics != nil {
		o.Metrics.Record(entry)
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, req Request, start time.Time) (Result, error) {
	ids, err := o.validate(req)
	if err != nil {
		return Result{}, err
	}
	jobs, tokens, err := o.estimate(req, ids)
	if err != nil {
		return Result{Metadata: Metadata{TokensUsed: tokens}}, err
	}

	posts, failures, used, err := o.generateAll(ctx, req, jobs)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Posts:    posts,
		Failures: failures,
		Metadata: Metadata{
			TokensUsed: used,
			Model:      o.Provider.ModelInfo().Name,
			Timestamp:  start,
		},
		Outcome: OutcomeSuccess,
	}
	if len(posts) == 0 {
		log.Warn().Int("platforms", len(ids)).Msg("all platforms failed; using fallback content")
		res.Posts = o.fallback(req, jobs)
		res.Outcome = OutcomeFallback
		res.Metadata.Model = FallbackModel
	}
	res.Metadata.GenerationTimeMs = o.now().Sub(start).Milliseconds()
	return res, nil
}

func (o *Orchestrator) validate(req Request) ([]platform.ID, error) {
	if o.Provider == nil || o.Registry == nil {
		return nil, apperr.E(apperr.Internal, "orchestrator not configured")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.E(apperr.InvalidRequest, "content must not be empty")
	}
	n := generator.Length(req.Content)
	if max := o.maxContentChars(); n > max {
		return nil, apperr.E(apperr.ContentTooLong, "content is %d characters; the limit is %d", n, max)
	}
	seen := map[platform.ID]bool{}
	var ids []platform.ID
	for _, p := range req.Platforms {
		id, ok := o.Registry.Resolve(string(p))
		if !ok {
			log.Warn().Str("platform", string(p)).Msg("ignoring unknown platform")
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.E(apperr.InvalidRequest, "at least one supported platform is required")
	}
	return ids, nil
}

// estimate builds every prompt and rejects the request when the largest one
// does not fit the input budget or the model's context.
func (o *Orchestrator) estimate(req Request, ids []platform.ID) ([]job, int, error) {
	jobs := make([]job, 0, len(ids))
	largest := 0
	for _, id := range ids {
		gen, _ := o.Registry.Get(id)
		prompt := gen.GeneratePrompt(req.Content, req.Options)
		t := budget.EstimatePromptTokens(generator.SystemMessage, prompt)
		if t > largest {
			largest = t
		}
		jobs = append(jobs, job{id: id, gen: gen, prompt: prompt, tokens: t})
	}
	if limit := o.maxInputTokens(); largest > limit {
		return nil, largest, apperr.E(apperr.TokenLimitExceeded, "estimated prompt is %d tokens; the limit is %d", largest, limit)
	}
	if model := o.Provider.ModelInfo().Name; model != "" && !budget.FitsInContext(model, o.maxOutputTokens(), largest) {
		return nil, largest, apperr.E(apperr.TokenLimitExceeded, "estimated prompt of %d tokens does not fit the context of %s", largest, model)
	}
	return jobs, largest, nil
}

func (o *Orchestrator) generateAll(ctx context.Context, req Request, jobs []job) (map[platform.ID][]generator.Post, map[platform.ID]string, int, error) {
	var (
		mu       sync.Mutex
		posts    = map[platform.ID][]generator.Post{}
		failures = map[platform.ID]string{}
		used     int
	)
	opts := llm.CompletionOptions{
		Temperature:     generator.Temperature(req.Options),
		MaxOutputTokens: o.maxOutputTokens(),
		TopP:            1,
		System:          generator.SystemMessage,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			got, tokens, err := o.generateOne(gctx, j, opts, req.Options)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if o.Metrics != nil {
				o.Metrics.RecordPlatform(string(j.id), err == nil)
			}
			mu.Lock()
			defer mu.Unlock()
			used += tokens
			if err != nil {
				failures[j.id] = err.Error()
				return nil
			}
			posts[j.id] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, fmt.Errorf("generate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("generate: %w", err)
	}
	return posts, failures, used, nil
}

// generateOne runs a single platform. An error means the platform is
// omitted from the result.
func (o *Orchestrator) generateOne(ctx context.Context, j job, opts llm.CompletionOptions, reqOpts generator.Options) ([]generator.Post, int, error) {
	logger := log.With().Str("platform", string(j.id)).Logger()
	raw, err := o.Provider.GenerateCompletion(ctx, j.prompt, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		logger.Warn().Str("kind", string(apperr.KindOf(err))).Err(err).Msg("provider call failed")
		return nil, j.tokens, err
	}
	tokens := j.tokens + budget.EstimateTokens(raw)
	posts, err := j.gen.ProcessResponse(raw)
	if err != nil {
		logger.Warn().Str("kind", string(apperr.KindOf(err))).Int("response_len", len(raw)).Err(err).Msg("could not parse model output")
		return nil, tokens, err
	}
	out := make([]generator.Post, 0, len(posts))
	for _, p := range posts {
		if !reqOpts.Hashtags() {
			p.Hashtags = []string{}
		}
		if j.gen.ValidatePost(p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		err := apperr.E(apperr.ResponseParseError, "%s: no valid posts", j.id)
		logger.Warn().Err(err).Msg("platform produced no valid posts")
		return nil, tokens, err
	}
	logger.Debug().Int("posts", len(out)).Msg("platform generated")
	return out, tokens, nil
}

func (o *Orchestrator) fallback(req Request, jobs []job) map[platform.ID][]generator.Post {
	out := make(map[platform.ID][]generator.Post, len(jobs))
	for _, j := range jobs {
		out[j.id] = FallbackPosts(req.Content, j.id, j.gen.Constraint(), req.Options.Hashtags())
	}
	return out
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) maxContentChars() int {
	if o.MaxContentChars > 0 {
		return o.MaxContentChars
	}
	return DefaultMaxContentChars
}

func (o *Orchestrator) maxInputTokens() int {
	if o.MaxInputTokens > 0 {
		return o.MaxInputTokens
	}
	return DefaultMaxInputTokens
}

func (o *Orchestrator) maxOutputTokens() int {
	if o.MaxOutputTokens > 0 {
		return o.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}
