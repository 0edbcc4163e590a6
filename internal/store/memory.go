package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/postforge/internal/quota"
)

// Memory is an in-process Store. The zero value is ready to use.
type Memory struct {
	mu          sync.Mutex
	profiles    map[string]quota.Profile
	generations []GenerationRecord
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) GetProfile(ctx context.Context, userID string) (quota.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return quota.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, userID string, defaults quota.Profile) (quota.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	if m.profiles == nil {
		m.profiles = map[string]quota.Profile{}
	}
	defaults.UserID = userID
	if defaults.Tier == "" {
		defaults.Tier = quota.TierFree
	}
	m.profiles[userID] = defaults
	return defaults, nil
}

func (m *Memory) UpdateProfile(ctx context.Context, userID string, u quota.ProfileUpdate) (quota.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return quota.Profile{}, ErrNotFound
	}
	p = u.Apply(p)
	m.profiles[userID] = p
	return p, nil
}

func (m *Memory) IncrementUsage(ctx context.Context, userID string, generations, words int) (quota.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return quota.Profile{}, ErrNotFound
	}
	p.DailyUsageCount += generations
	p.MonthlyWordsUsed += words
	m.profiles[userID] = p
	return p, nil
}

// SumWordsSince counts every record including soft-deleted ones.
func (m *Memory) SumWordsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, g := range m.generations {
		if g.UserID == userID && !g.CreatedAt.Before(since) {
			total += g.WordsGenerated
		}
	}
	return total, nil
}

func (m *Memory) InsertGeneration(ctx context.Context, rec GenerationRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusCompleted
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.generations = append(m.generations, rec)
	return rec.ID, nil
}

func (m *Memory) ListGenerations(ctx context.Context, userID string, limit int) ([]GenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []GenerationRecord
	for _, g := range m.generations {
		if g.UserID == userID && g.Status != StatusDeleted {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) SetGenerationStatus(ctx context.Context, userID, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.generations {
		if g.ID != id || g.UserID != userID {
			continue
		}
		if !CanTransition(g.Status, status) {
			return transitionError(g.Status, status)
		}
		m.generations[i].Status = status
		return nil
	}
	return ErrGenerationNotFound
}

func (m *Memory) Close() error { return nil }
