// Package pipeline is the caller-facing generate operation. It loads and
// enforces quota, resolves URL input to text, runs the orchestrator,
// persists the result and only then charges the user.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/extract"
	"github.com/hyperifyio/postforge/internal/generate"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/platform"
	"github.com/hyperifyio/postforge/internal/quota"
	"github.com/hyperifyio/postforge/internal/store"
)

// Input is one generation request from an authenticated caller. Exactly one
// of Content and URL is expected; Content wins when both are set.
type Input struct {
	Content   string            `json:"content,omitempty" validate:"required_without=URL,max=50000"`
	URL       string            `json:"url,omitempty" validate:"required_without=Content,omitempty,url"`
	Platforms []string          `json:"platforms" validate:"required,min=1,max=7,dive,required"`
	Options   generator.Options `json:"options"`
}

// Response is returned for a successful generation.
type Response struct {
	Posts        map[platform.ID][]generator.Post `json:"posts"`
	Usage        quota.Usage                      `json:"usage"`
	GenerationID string                           `json:"generationId"`
	Model        string                           `json:"model"`
	Fallback     bool                             `json:"fallback"`
	Metadata     generate.Metadata                `json:"metadata"`
	Source       *extract.Result                  `json:"source,omitempty"`
}

// Extractor resolves URLs to text. *extract.Extractor implements it.
type Extractor interface {
	CanHandle(rawURL string) bool
	Extract(ctx context.Context, rawURL string) (extract.Result, error)
}

// Service wires the pipeline stages together.
type Service struct {
	Quota        *quota.Engine
	Extractor    Extractor
	Orchestrator *generate.Orchestrator
	Log          store.GenerationLog
}

// Generate runs the full pipeline for userID.
func (s *Service) Generate(ctx context.Context, userID string, in Input) (Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Response{}, apperr.E(apperr.Unauthorized, "missing caller identity")
	}
	logger := log.With().Str("user_id", userID).Logger()

	profile, err := s.Quota.Load(ctx, userID)
	if err != nil {
		return Response{}, err
	}
	if err := s.Quota.Enforce(profile, quota.EstimateWords(s.distinctPlatforms(in.Platforms))); err != nil {
		logger.Info().Str("kind", string(apperr.KindOf(err))).Msg("quota check failed")
		return Response{}, err
	}

	content := in.Content
	var source *extract.Result
	if strings.TrimSpace(content) == "" && strings.TrimSpace(in.URL) != "" {
		if s.Extractor == nil || !s.Extractor.CanHandle(in.URL) {
			return Response{}, apperr.E(apperr.ExtractionFailed, "cannot extract content from %q", in.URL)
		}
		res, err := s.Extractor.Extract(ctx, in.URL)
		if err != nil {
			logger.Warn().Str("stage", "extract").Err(err).Msg("extraction failed")
			return Response{}, err
		}
		content = res.Content
		source = &res
	}

	ids := make([]platform.ID, 0, len(in.Platforms))
	for _, p := range in.Platforms {
		ids = append(ids, platform.ID(p))
	}
	result, err := s.Orchestrator.Generate(ctx, generate.Request{Content: content, Platforms: ids, Options: in.Options})
	if err != nil {
		return Response{}, err
	}

	words := quota.CountWords(result.Posts)
	if err := s.Quota.CheckMonthly(profile, words); err != nil {
		logger.Info().Int("words", words).Msg("generation exceeds monthly word limit")
		return Response{}, err
	}

	rec := store.GenerationRecord{
		UserID:         userID,
		InputContent:   content,
		Platforms:      SortedPlatforms(result.Posts),
		Posts:          result.Posts,
		TokensUsed:     result.Metadata.TokensUsed,
		WordsGenerated: words,
		Model:          result.Metadata.Model,
		Fallback:       result.Fallback(),
		Status:         store.StatusCompleted,
		CreatedAt:      result.Metadata.Timestamp,
	}
	if source != nil {
		rec.SourceURL = source.URL
	}
	id, err := s.Log.InsertGeneration(ctx, rec)
	if err != nil {
		logger.Error().Str("stage", "persist").Err(err).Msg("could not persist generation; usage not charged")
		return Response{}, apperr.Wrap(apperr.PersistenceError, err, "save generation")
	}

	profile, err = s.Quota.Commit(ctx, profile, words)
	if err != nil {
		// The generation is saved; report usage from the pre-commit profile.
		logger.Error().Str("stage", "commit").Err(err).Msg("could not record usage")
	}
	logger.Info().Str("generation_id", id).Str("model", result.Metadata.Model).Int("words", words).Bool("fallback", result.Fallback()).Msg("generation complete")

	return Response{
		Posts:        result.Posts,
		Usage:        s.Quota.Summary(profile, words),
		GenerationID: id,
		Model:        result.Metadata.Model,
		Fallback:     result.Fallback(),
		Metadata:     result.Metadata,
		Source:       source,
	}, nil
}

// distinctPlatforms counts the registered platforms named in names, so
// aliases and duplicates are estimated once.
func (s *Service) distinctPlatforms(names []string) int {
	seen := map[platform.ID]bool{}
	for _, n := range names {
		if id, ok := s.Orchestrator.Registry.Resolve(n); ok {
			seen[id] = true
		}
	}
	return len(seen)
}

// Usage returns the caller's current quota summary.
func (s *Service) Usage(ctx context.Context, userID string) (quota.Usage, error) {
	if strings.TrimSpace(userID) == "" {
		return quota.Usage{}, apperr.E(apperr.Unauthorized, "missing caller identity")
	}
	p, err := s.Quota.Load(ctx, userID)
	if err != nil {
		return quota.Usage{}, err
	}
	return s.Quota.Summary(p, 0), nil
}

// History lists the caller's generations, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]store.GenerationRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.E(apperr.Unauthorized, "missing caller identity")
	}
	recs, err := s.Log.ListGenerations(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceError, err, "list generations")
	}
	return recs, nil
}

// SetStatus moves one of the caller's generations along its lifecycle.
func (s *Service) SetStatus(ctx context.Context, userID, id string, status store.Status) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.E(apperr.Unauthorized, "missing caller identity")
	}
	err := s.Log.SetGenerationStatus(ctx, userID, id, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrGenerationNotFound):
		return apperr.Wrap(apperr.NotFound, err, "generation "+id)
	case errors.Is(err, store.ErrInvalidTransition):
		return apperr.Wrap(apperr.Conflict, err, "generation "+id)
	}
	return apperr.Wrap(apperr.PersistenceError, err, "update generation status")
}

// SortedPlatforms lists the keys of m with built-in platforms first, in
// their canonical order, then custom ids alphabetically.
func SortedPlatforms(m map[platform.ID][]generator.Post) []platform.ID {
	out := make([]platform.ID, 0, len(m))
	for _, id := range platform.All() {
		if _, ok := m[id]; ok {
			out = append(out, id)
		}
	}
	var custom []platform.ID
	for id := range m {
		if !platform.Known(id) {
			custom = append(custom, id)
		}
	}
	slices.Sort(custom)
	return append(out, custom...)
}
