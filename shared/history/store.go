// Package history persists analysis results in SQLite for the activity feed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/synapse-ai/synapse/shared/refactor"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history: not found")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id              TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	snippet         TEXT NOT NULL,
	smell           TEXT,
	original_code   TEXT NOT NULL,
	refactored_code TEXT NOT NULL,
	explanation     TEXT NOT NULL,
	metrics         TEXT NOT NULL DEFAULT '{}',
	source          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);
`

// tsLayout is fixed width so lexical order in SQLite equals time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one persisted analysis.
type Record struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	Snippet        string           `json:"snippet"`
	Smell          string           `json:"smell"`
	OriginalCode   string           `json:"original_code"`
	RefactoredCode string           `json:"refactored_code"`
	Explanation    string           `json:"explanation"`
	Metrics        refactor.Metrics `json:"metrics"`
	Source         refactor.Source  `json:"source"`
}

// NewRecord fills a Record from an analysis of code.
func NewRecord(id string, ts time.Time, code string, a refactor.Analysis) Record {
	return Record{
		ID:             id,
		Timestamp:      ts.UTC(),
		Snippet:        Snippet(code),
		Smell:          a.SmellDetected,
		OriginalCode:   code,
		RefactoredCode: a.RefactoredCode,
		Explanation:    a.Explanation,
		Metrics:        a.Metrics,
		Source:         a.Source,
	}
}

// Snippet is the first 50 characters of code followed by "...".
func Snippet(code string) string {
	r := []rune(code)
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r) + "..."
}

type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed.
// path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create history dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save inserts r, replacing any row with the same id.
func (s *Store) Save(ctx context.Context, r Record) error {
	m, err := json.Marshal(r.Metrics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history
			(id, timestamp, snippet, smell, original_code, refactored_code, explanation, metrics, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format(tsLayout), r.Snippet, r.Smell,
		r.OriginalCode, r.RefactoredCode, r.Explanation, string(m), string(r.Source),
	)
	if err != nil {
		return fmt.Errorf("save history %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, snippet, smell, original_code, refactored_code, explanation, metrics, source
		FROM history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, snippet, smell, original_code, refactored_code, explanation, metrics, source
		FROM history WHERE id = ?`, id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Record, error) {
	var (
		r           Record
		ts, metrics string
		smell       sql.NullString
		source      string
	)
	if err := sc.Scan(&r.ID, &ts, &r.Snippet, &smell, &r.OriginalCode, &r.RefactoredCode, &r.Explanation, &metrics, &source); err != nil {
		return Record{}, err
	}
	t, err := time.Parse(tsLayout, ts)
	if err != nil {
		return Record{}, fmt.Errorf("history %s: bad timestamp %q: %w", r.ID, ts, err)
	}
	r.Timestamp = t
	r.Smell = smell.String
	r.Source = refactor.Source(source)
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return Record{}, fmt.Errorf("history %s: bad metrics: %w", r.ID, err)
	}
	return r, nil
}
