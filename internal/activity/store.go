// Package activity persists the journaling activity that personalizes
// wisdom generation: a single local profile plus journal entries. It is
// backed by SQLite and publishes a change feed consumed by the home
// snapshot aggregator.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Profile is the single local user profile. There is exactly one row;
// the store creates it on first open.
type Profile struct {
	DisplayName string    `json:"display_name"`
	StreakDays  int       `json:"streak_days"`
	LastEntryAt time.Time `json:"last_entry_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry is one journal entry.
type Entry struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Mood      string    `json:"mood,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the aggregate view the snapshot aggregator and the prompt
// builder consume: profile plus recent-activity counters.
type Summary struct {
	Profile      Profile `json:"profile"`
	WeekEntries  int     `json:"week_entries"`
	TodayEntries int     `json:"today_entries"`
	LatestMood   string  `json:"latest_mood,omitempty"`
}

// Store is a SQLite-backed activity store. All methods are safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	watchMu  sync.Mutex
	watchers []chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source. Used by tests to cross day
// boundaries deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (creating if necessary) the activity database at dbPath and
// ensures the schema and the singleton profile row exist.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			display_name TEXT NOT NULL DEFAULT '',
			streak_days INTEGER NOT NULL DEFAULT 0,
			last_entry_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			mood TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_created_at ON journal_entries(created_at)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	// The profile is a singleton; seed it so reads never miss.
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO profile (id, updated_at) VALUES (1, ?)`,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to seed profile: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Profile returns the local profile.
func (s *Store) Profile(ctx context.Context) (Profile, error) {
	var (
		p           Profile
		lastEntryAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, streak_days, last_entry_at, updated_at FROM profile WHERE id = 1`,
	).Scan(&p.DisplayName, &p.StreakDays, &lastEntryAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	if lastEntryAt.Valid {
		p.LastEntryAt = lastEntryAt.Time
	}
	return p, nil
}

// UpsertProfile updates the profile's display name. Streak bookkeeping
// belongs to RecordEntry and is not touched here.
func (s *Store) UpsertProfile(ctx context.Context, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile (id, display_name, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		strings.TrimSpace(displayName), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	s.notify()
	return nil
}

// RecordEntry persists a journal entry and advances the streak: a first
// entry on a new day extends a streak begun the previous day, restarts
// it after a gap, and leaves it alone for repeat entries on the same
// day. Missing ID and CreatedAt fields are filled in.
func (s *Store) RecordEntry(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry must not be nil")
	}
	if strings.TrimSpace(entry.Body) == "" {
		return fmt.Errorf("entry body must not be empty")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO journal_entries (id, body, mood, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Body, entry.Mood, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	var (
		streak      int
		lastEntryAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT streak_days, last_entry_at FROM profile WHERE id = 1`,
	).Scan(&streak, &lastEntryAt)
	if err != nil {
		return fmt.Errorf("failed to read streak: %w", err)
	}

	streak = nextStreak(streak, lastEntryAt, entry.CreatedAt)

	_, err = tx.ExecContext(ctx,
		`UPDATE profile SET streak_days = ?, last_entry_at = ?, updated_at = ? WHERE id = 1`,
		streak, entry.CreatedAt, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}

	s.logger.Debug("journal entry recorded",
		"entry_id", entry.ID,
		"streak_days", streak,
	)
	s.notify()
	return nil
}

// nextStreak applies the day-over-day streak transition. Days are UTC
// calendar days.
func nextStreak(current int, last sql.NullTime, entryAt time.Time) int {
	if !last.Valid {
		return 1
	}
	entryDay := dayOf(entryAt)
	lastDay := dayOf(last.Time)
	switch {
	case entryDay.Equal(lastDay):
		if current < 1 {
			return 1
		}
		return current
	case entryDay.Equal(lastDay.AddDate(0, 0, 1)):
		return current + 1
	default:
		return 1
	}
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Entries returns the most recent entries, newest first.
func (s *Store) Entries(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, mood, created_at FROM journal_entries ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Body, &e.Mood, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// TodayEntryCount counts entries created on the current UTC day.
func (s *Store) TodayEntryCount(ctx context.Context) (int, error) {
	start := dayOf(s.now())
	return s.countSince(ctx, start, start.AddDate(0, 0, 1))
}

// WeekEntryCount counts entries created in the last seven rolling days.
func (s *Store) WeekEntryCount(ctx context.Context) (int, error) {
	now := s.now().UTC()
	return s.countSince(ctx, now.AddDate(0, 0, -7), now.Add(time.Second))
}

func (s *Store) countSince(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_entries WHERE created_at >= ? AND created_at < ?`,
		from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// LatestMood returns the mood of the most recent entry that recorded
// one, or "" when no entry has.
func (s *Store) LatestMood(ctx context.Context) (string, error) {
	var mood string
	err := s.db.QueryRowContext(ctx,
		`SELECT mood FROM journal_entries WHERE mood != '' ORDER BY created_at DESC LIMIT 1`,
	).Scan(&mood)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest mood: %w", err)
	}
	return mood, nil
}

// Summary assembles the profile and recent-activity counters in one
// read for the aggregator and the prompt builder.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return Summary{}, err
	}
	today, err := s.TodayEntryCount(ctx)
	if err != nil {
		return Summary{}, err
	}
	week, err := s.WeekEntryCount(ctx)
	if err != nil {
		return Summary{}, err
	}
	mood, err := s.LatestMood(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Profile:      profile,
		WeekEntries:  week,
		TodayEntries: today,
		LatestMood:   mood,
	}, nil
}

// Watch returns a channel that receives a signal after every successful
// write. Notifications are conflated: a slow reader sees at least one
// signal for any burst of writes. Callers release the channel with
// Unwatch.
func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers = append(s.watchers, ch)
	s.watchMu.Unlock()
	return ch
}

// Unwatch removes a channel obtained from Watch.
func (s *Store) Unwatch(ch <-chan struct{}) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
