// Package quota enforces per-user generation limits. Counters reset on local
// calendar-day and calendar-month boundaries; the monthly word counter is
// recomputed from the generation log when a new month starts.
package quota

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/platform"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierPlus Tier = "plus"
)

// Unlimited marks a limit that never applies.
const Unlimited = -1

// WordsPerPlatformEstimate is the pre-generation word estimate per platform.
const WordsPerPlatformEstimate = 50

// TierLimit caps usage for one tier.
type TierLimit struct {
	DailyGenerations int `json:"dailyGenerations" yaml:"dailyGenerations"`
	MonthlyWords     int `json:"monthlyWords" yaml:"monthlyWords"`
}

// DefaultLimits returns the built-in tier table.
func DefaultLimits() map[Tier]TierLimit {
	return map[Tier]TierLimit{
		TierFree: {DailyGenerations: 5, MonthlyWords: 2000},
		TierPro:  {DailyGenerations: 50, MonthlyWords: 50000},
		TierPlus: {DailyGenerations: Unlimited, MonthlyWords: Unlimited},
	}
}

// ParseTier maps a stored tier name onto a Tier. "enterprise" is an alias
// for plus and unknown names fall back to free.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pro":
		return TierPro
	case "plus", "enterprise":
		return TierPlus
	default:
		return TierFree
	}
}

// Profile is a user's usage state.
type Profile struct {
	UserID           string    `json:"userId"`
	Tier             Tier      `json:"tier"`
	DailyUsageCount  int       `json:"dailyUsageCount"`
	DailyResetDate   time.Time `json:"dailyResetDate"`
	MonthlyWordsUsed int       `json:"monthlyWordsUsed"`
	MonthlyResetDate time.Time `json:"monthlyResetDate"`
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
type ProfileUpdate struct {
	Tier             *Tier
	DailyUsageCount  *int
	DailyResetDate   *time.Time
	MonthlyWordsUsed *int
	MonthlyResetDate *time.Time
}

// Empty reports whether u changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Tier == nil && u.DailyUsageCount == nil && u.DailyResetDate == nil &&
		u.MonthlyWordsUsed == nil && u.MonthlyResetDate == nil
}

// Apply returns p with u applied.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.Tier != nil {
		p.Tier = *u.Tier
	}
	if u.DailyUsageCount != nil {
		p.DailyUsageCount = *u.DailyUsageCount
	}
	if u.DailyResetDate != nil {
		p.DailyResetDate = *u.DailyResetDate
	}
	if u.MonthlyWordsUsed != nil {
		p.MonthlyWordsUsed = *u.MonthlyWordsUsed
	}
	if u.MonthlyResetDate != nil {
		p.MonthlyResetDate = *u.MonthlyResetDate
	}
	return p
}

// ErrNotFound is returned by a Store when a profile does not exist.
var ErrNotFound = errors.New("profile not found")

// Store persists profiles and answers the monthly backfill query.
type Store interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpsertProfile(ctx context.Context, userID string, defaults Profile) (Profile, error)
	UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (Profile, error)
	// IncrementUsage atomically adds to the daily and monthly counters.
	IncrementUsage(ctx context.Context, userID string, generations, words int) (Profile, error)
	SumWordsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Usage is the caller-facing quota summary. Remaining values are -1 for
// unlimited tiers.
type Usage struct {
	Tier                  Tier `json:"tier"`
	DailyRemaining        int  `json:"dailyRemaining"`
	MonthlyWordsRemaining int  `json:"monthlyWordsRemaining"`
	WordsGenerated        int  `json:"wordsGenerated"`
	DailyUsed             int  `json:"dailyUsed"`
	DailyLimit            int  `json:"dailyLimit"`
	MonthlyWordsUsed      int  `json:"monthlyWordsUsed"`
	MonthlyWordsLimit     int  `json:"monthlyWordsLimit"`
}

// Engine applies tier limits to profiles held in Store.
type Engine struct {
	Store  Store
	Limits map[Tier]TierLimit
	// Location defines calendar boundaries. Nil means time.Local.
	Location *time.Location
	Now      func() time.Time
}

// NewEngine returns an engine with the default tier table.
func NewEngine(s Store) *Engine {
	return &Engine{Store: s, Limits: DefaultLimits()}
}

// Limit returns the limits for t, falling back to the free tier.
func (e *Engine) Limit(t Tier) TierLimit {
	limits := e.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	if l, ok := limits[t]; ok {
		return l
	}
	return limits[TierFree]
}

// Load returns the profile for userID, creating a free-tier profile on first
// use, with any pending resets applied.
func (e *Engine) Load(ctx context.Context, userID string) (Profile, error) {
	p, err := e.Store.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		now := e.now()
		p, err = e.Store.UpsertProfile(ctx, userID, Profile{
			UserID:           userID,
			Tier:             TierFree,
			DailyResetDate:   now,
			MonthlyResetDate: e.monthStart(now),
		})
		if err == nil {
			log.Info().Str("user_id", userID).Msg("created usage profile")
		}
	}
	if err != nil {
		return Profile{}, apperr.Wrap(apperr.PersistenceError, err, "load usage profile")
	}
	return e.CheckAndReset(ctx, p)
}

// CheckAndReset applies daily and monthly boundary resets to p and persists
// any changed fields. On a monthly crossing the word counter is backfilled
// from the generation log rather than zeroed.
func (e *Engine) CheckAndReset(ctx context.Context, p Profile) (Profile, error) {
	now := e.now()
	var u ProfileUpdate
	if e.dayStart(p.DailyResetDate).Before(e.dayStart(now)) {
		zero := 0
		u.DailyUsageCount = &zero
		u.DailyResetDate = &now
	}
	monthStart := e.monthStart(now)
	if p.MonthlyResetDate.Before(monthStart) {
		words, err := e.Store.SumWordsSince(ctx, p.UserID, monthStart)
		if err != nil {
			return p, apperr.Wrap(apperr.PersistenceError, err, "backfill monthly words")
		}
		u.MonthlyWordsUsed = &words
		u.MonthlyResetDate = &monthStart
	}
	if u.Empty() {
		return p, nil
	}
	updated, err := e.Store.UpdateProfile(ctx, p.UserID, u)
	if err != nil {
		return p, apperr.Wrap(apperr.PersistenceError, err, "reset usage counters")
	}
	log.Debug().Str("user_id", p.UserID).Bool("daily", u.DailyUsageCount != nil).Bool("monthly", u.MonthlyWordsUsed != nil).Msg("usage counters reset")
	return updated, nil
}

// Enforce fails when p cannot start another generation of about
// estimatedWords words.
func (e *Engine) Enforce(p Profile, estimatedWords int) error {
	l := e.Limit(p.Tier)
	if l.DailyGenerations != Unlimited && p.DailyUsageCount >= l.DailyGenerations {
		return apperr.E(apperr.DailyLimitExceeded, "daily limit of %d generations reached", l.DailyGenerations)
	}
	return e.CheckMonthly(p, estimatedWords)
}

// CheckMonthly fails when adding words would pass the monthly word limit.
func (e *Engine) CheckMonthly(p Profile, words int) error {
	l := e.Limit(p.Tier)
	if l.MonthlyWords != Unlimited && p.MonthlyWordsUsed+words > l.MonthlyWords {
		return apperr.E(apperr.MonthlyLimitExceeded, "monthly limit of %d words would be exceeded (%d used, %d requested)", l.MonthlyWords, p.MonthlyWordsUsed, words)
	}
	return nil
}

// Commit records one successful generation of words words.
func (e *Engine) Commit(ctx context.Context, p Profile, words int) (Profile, error) {
	if e.Limit(p.Tier).MonthlyWords == Unlimited {
		words = 0
	}
	updated, err := e.Store.IncrementUsage(ctx, p.UserID, 1, words)
	if err != nil {
		return p, apperr.Wrap(apperr.PersistenceError, err, "record usage")
	}
	return updated, nil
}

// Summary reports p against its tier limits.
func (e *Engine) Summary(p Profile, wordsGenerated int) Usage {
	l := e.Limit(p.Tier)
	return Usage{
		Tier:                  p.Tier,
		DailyRemaining:        remaining(l.DailyGenerations, p.DailyUsageCount),
		MonthlyWordsRemaining: remaining(l.MonthlyWords, p.MonthlyWordsUsed),
		WordsGenerated:        wordsGenerated,
		DailyUsed:             p.DailyUsageCount,
		DailyLimit:            l.DailyGenerations,
		MonthlyWordsUsed:      p.MonthlyWordsUsed,
		MonthlyWordsLimit:     l.MonthlyWords,
	}
}

func remaining(limit, used int) int {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// CountWords counts whitespace-delimited words across all posts. A
// generation always counts as at least one word.
func CountWords(posts map[platform.ID][]generator.Post) int {
	n := 0
	for _, list := range posts {
		for _, p := range list {
			n += len(strings.Fields(p.Content))
		}
	}
	if n < 1 {
		return 1
	}
	return n
}

// EstimateWords is the pre-generation estimate for the monthly check.
func EstimateWords(platforms int) int {
	return WordsPerPlatformEstimate * platforms
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

func (e *Engine) dayStart(t time.Time) time.Time {
	t = t.In(e.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc())
}

func (e *Engine) monthStart(t time.Time) time.Time {
	t = t.In(e.loc())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, e.loc())
}
