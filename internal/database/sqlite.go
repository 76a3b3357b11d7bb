package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leca/bandwidth-proxy/internal/model"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// For in-memory use pass "file::memory:?cache=shared".
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	} else if !strings.Contains(dsn, "_journal_mode") {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// RecordOutcome inserts one ledger row. Missing ID and timestamp are filled in.
func (s *SQLiteDB) RecordOutcome(o *model.Outcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO outcomes (id, host, kind, origin_size, sent_size, bytes_saved, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Host, string(o.Kind), o.OriginSize, o.SentSize, o.BytesSaved,
		o.Duration.Milliseconds(), o.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns the most recent ledger rows, newest first.
func (s *SQLiteDB) ListOutcomes(limit int) ([]*model.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, host, kind, origin_size, sent_size, bytes_saved, duration_ms, created_at
		FROM outcomes
		ORDER BY created_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*model.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Totals aggregates the whole ledger. Saved bytes only come from compressed
// rows; rows with an unknown origin size add nothing to the byte sums.
func (s *SQLiteDB) Totals() (*model.Totals, error) {
	rows, err := s.db.Query(`
		SELECT kind, COUNT(*),
		       COALESCE(SUM(CASE WHEN origin_size > 0 THEN origin_size ELSE 0 END), 0),
		       COALESCE(SUM(bytes_saved), 0)
		FROM outcomes
		GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("sum outcomes: %w", err)
	}
	defer rows.Close()

	totals := &model.Totals{ByKind: map[model.OutcomeKind]int{}}
	for rows.Next() {
		var kind string
		var count int
		var original, saved int64
		if err := rows.Scan(&kind, &count, &original, &saved); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		k := model.OutcomeKind(kind)
		totals.ByKind[k] = count
		totals.Requests += count
		switch k {
		case model.OutcomeCompressed:
			totals.OriginalBytes += original
			totals.BytesSaved += saved
		case model.OutcomeBypassed:
			totals.OriginalBytes += original
		}
	}
	return totals, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(row scannable) (*model.Outcome, error) {
	o := &model.Outcome{}
	var kind, createdStr string
	var durationMs int64

	err := row.Scan(&o.ID, &o.Host, &kind, &o.OriginSize, &o.SentSize, &o.BytesSaved, &durationMs, &createdStr)
	if err != nil {
		return nil, fmt.Errorf("scan outcome: %w", err)
	}

	o.Kind = model.OutcomeKind(kind)
	o.Duration = time.Duration(durationMs) * time.Millisecond
	o.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return o, nil
}
