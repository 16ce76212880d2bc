// Package cache wraps a sentry.Fetcher with an on-disk snapshot cache.
// It lives entirely at the fetch boundary; the report computations stay
// stateless. Intended for CLI use where repeated invocations would
// otherwise hammer the upstream API.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/errmon/sentry-mcp/internal/logger"
	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/sentry"
	"github.com/errmon/sentry-mcp/internal/timerange"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store caches issue snapshots in SQLite (modernc.org/sqlite, pure Go).
// Snapshots are keyed by (project, time-range token) and expire after TTL.
type Store struct {
	db      *sql.DB
	ttl     time.Duration
	fetcher sentry.Fetcher
}

// NewStore opens (or creates) the cache database at dbPath, wrapping
// fetcher. Entries older than ttl are refetched.
func NewStore(dbPath string, ttl time.Duration, fetcher sentry.Fetcher) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Store{db: db, ttl: ttl, fetcher: fetcher}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchIssues returns a cached snapshot when a fresh one exists, otherwise
// fetches upstream and stores the result. Relative windows are keyed by
// their token since the absolute instants shift with every request.
func (s *Store) FetchIssues(ctx context.Context, project string, rng timerange.TimeRange) ([]*models.Issue, error) {
	var (
		payload   string
		fetchedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, fetched_at FROM issue_snapshots WHERE project = ? AND time_range = ?",
		project, rng.Token).Scan(&payload, &fetchedAt)

	if err == nil && time.Since(fetchedAt) < s.ttl {
		var issues []*models.Issue
		if jerr := json.Unmarshal([]byte(payload), &issues); jerr == nil {
			logger.Named("cache").Debug().
				Str("project", project).
				Str("time_range", rng.Token).
				Msg("cache hit")
			return issues, nil
		}
		// Corrupt payload falls through to a refetch.
	}
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	issues, err := s.fetcher.FetchIssues(ctx, project, rng)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issue_snapshots (id, project, time_range, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project, time_range)
		DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		newULID(), project, rng.Token, string(data), time.Now().UTC())
	if err != nil {
		// A write failure degrades to uncached operation.
		logger.Named("cache").Warn().Err(err).Msg("failed to store snapshot")
	}
	return issues, nil
}

// GetIssue always passes through; single-issue detail is not cached.
func (s *Store) GetIssue(ctx context.Context, issueID string) (*sentry.IssueDetail, error) {
	return s.fetcher.GetIssue(ctx, issueID)
}

// Purge removes all snapshots older than their TTL.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM issue_snapshots WHERE fetched_at < ?", time.Now().UTC().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
