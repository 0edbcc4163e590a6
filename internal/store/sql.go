package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hyperifyio/postforge/internal/quota"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_profiles (
		user_id            TEXT PRIMARY KEY,
		tier               TEXT NOT NULL DEFAULT 'free',
		daily_usage_count  INTEGER NOT NULL DEFAULT 0,
		daily_reset_at     BIGINT NOT NULL,
		monthly_words_used INTEGER NOT NULL DEFAULT 0,
		monthly_reset_at   BIGINT NOT NULL,
		updated_at         BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS generations (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		input_content   TEXT NOT NULL,
		source_url      TEXT NOT NULL DEFAULT '',
		platforms       TEXT NOT NULL,
		posts           TEXT NOT NULL,
		tokens_used     INTEGER NOT NULL DEFAULT 0,
		words_generated INTEGER NOT NULL DEFAULT 0,
		model           TEXT NOT NULL,
		fallback        INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'completed',
		created_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS generations_user_created ON generations (user_id, created_at)`,
}

// SQL implements Store over database/sql. Timestamps are stored as unix
// milliseconds so both dialects share one schema.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects using driver "sqlite" (modernc) or "pgx"/"postgres", verifies
// the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	var (
		name    string
		dialect Dialect
	)
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		name, dialect = "sqlite", DialectSQLite
		if dsn == "" {
			dsn = ":memory:"
		}
	case "pgx", "postgres", "postgresql":
		name, dialect = "pgx", DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without migrating.
func New(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates missing tables and indexes.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const profileColumns = `user_id, tier, daily_usage_count, daily_reset_at, monthly_words_used, monthly_reset_at`

func scanProfile(row interface{ Scan(...any) error }) (quota.Profile, error) {
	var (
		p                  quota.Profile
		tier               string
		dailyAt, monthlyAt int64
	)
	if err := row.Scan(&p.UserID, &tier, &p.DailyUsageCount, &dailyAt, &p.MonthlyWordsUsed, &monthlyAt); err != nil {
		return quota.Profile{}, err
	}
	p.Tier = quota.ParseTier(tier)
	p.DailyResetDate = fromMillis(dailyAt)
	p.MonthlyResetDate = fromMillis(monthlyAt)
	return p, nil
}

func (s *SQL) GetProfile(ctx context.Context, userID string) (quota.Profile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+profileColumns+` FROM usage_profiles WHERE user_id = ?`), userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Profile{}, ErrNotFound
	}
	if err != nil {
		return quota.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile inserts defaults unless a profile already exists and
// returns the stored profile.
func (s *SQL) UpsertProfile(ctx context.Context, userID string, defaults quota.Profile) (quota.Profile, error) {
	tier := defaults.Tier
	if tier == "" {
		tier = quota.TierFree
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO usage_profiles (user_id, tier, daily_usage_count, daily_reset_at, monthly_words_used, monthly_reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		userID, string(tier), defaults.DailyUsageCount, toMillis(defaults.DailyResetDate),
		defaults.MonthlyWordsUsed, toMillis(defaults.MonthlyResetDate), toMillis(s.now()),
	)
	if err != nil {
		return quota.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *SQL) UpdateProfile(ctx context.Context, userID string, u quota.ProfileUpdate) (quota.Profile, error) {
	var (
		sets []string
		args []any
	)
	if u.Tier != nil {
		sets, args = append(sets, "tier = ?"), append(args, string(*u.Tier))
	}
	if u.DailyUsageCount != nil {
		sets, args = append(sets, "daily_usage_count = ?"), append(args, *u.DailyUsageCount)
	}
	if u.DailyResetDate != nil {
		sets, args = append(sets, "daily_reset_at = ?"), append(args, toMillis(*u.DailyResetDate))
	}
	if u.MonthlyWordsUsed != nil {
		sets, args = append(sets, "monthly_words_used = ?"), append(args, *u.MonthlyWordsUsed)
	}
	if u.MonthlyResetDate != nil {
		sets, args = append(sets, "monthly_reset_at = ?"), append(args, toMillis(*u.MonthlyResetDate))
	}
	if len(sets) == 0 {
		return s.GetProfile(ctx, userID)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, toMillis(s.now()))
	args = append(args, userID)
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE usage_profiles SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`), args...)
	if err != nil {
		return quota.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quota.Profile{}, ErrNotFound
	}
	return s.GetProfile(ctx, userID)
}

// IncrementUsage adds to both counters in a single statement so concurrent
// commits never lose increments.
func (s *SQL) IncrementUsage(ctx context.Context, userID string, generations, words int) (quota.Profile, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE usage_profiles
		SET daily_usage_count = daily_usage_count + ?,
		    monthly_words_used = monthly_words_used + ?,
		    updated_at = ?
		WHERE user_id = ?`),
		generations, words, toMillis(s.now()), userID,
	)
	if err != nil {
		return quota.Profile{}, fmt.Errorf("increment usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quota.Profile{}, ErrNotFound
	}
	return s.GetProfile(ctx, userID)
}

// SumWordsSince counts every record including soft-deleted ones.
func (s *SQL) SumWordsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(SUM(words_generated), 0)
		FROM generations
		WHERE user_id = ? AND created_at >= ?`),
		userID, toMillis(since),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum words: %w", err)
	}
	return int(total), nil
}

func (s *SQL) InsertGeneration(ctx context.Context, rec GenerationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusCompleted
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	platforms, err := json.Marshal(rec.Platforms)
	if err != nil {
		return "", fmt.Errorf("encode platforms: %w", err)
	}
	posts, err := json.Marshal(rec.Posts)
	if err != nil {
		return "", fmt.Errorf("encode posts: %w", err)
	}
	fallback := 0
	if rec.Fallback {
		fallback = 1
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO generations (id, user_id, input_content, source_url, platforms, posts, tokens_used, words_generated, model, fallback, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.UserID, rec.InputContent, rec.SourceURL, string(platforms), string(posts),
		rec.TokensUsed, rec.WordsGenerated, rec.Model, fallback, string(rec.Status), toMillis(rec.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert generation: %w", err)
	}
	return rec.ID, nil
}

func (s *SQL) ListGenerations(ctx context.Context, userID string, limit int) ([]GenerationRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, input_content, source_url, platforms, posts, tokens_used, words_generated, model, fallback, status, created_at
		FROM generations
		WHERE user_id = ? AND status <> ?
		ORDER BY created_at DESC
		LIMIT ?`),
		userID, string(StatusDeleted), listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []GenerationRecord
	for rows.Next() {
		var (
			rec              GenerationRecord
			platforms, posts string
			status           string
			fallback         int
			createdAt        int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.InputContent, &rec.SourceURL, &platforms, &posts,
			&rec.TokensUsed, &rec.WordsGenerated, &rec.Model, &fallback, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if err := json.Unmarshal([]byte(platforms), &rec.Platforms); err != nil {
			return nil, fmt.Errorf("decode platforms: %w", err)
		}
		if err := json.Unmarshal([]byte(posts), &rec.Posts); err != nil {
			return nil, fmt.Errorf("decode posts: %w", err)
		}
		rec.Fallback = fallback != 0
		rec.Status = Status(status)
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQL) SetGenerationStatus(ctx context.Context, userID, id string, status Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM generations WHERE id = ? AND user_id = ?`), id, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrGenerationNotFound
	}
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	if !CanTransition(Status(current), status) {
		return transitionError(Status(current), status)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations SET status = ? WHERE id = ? AND user_id = ?`), string(status), id, userID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return tx.Commit()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
