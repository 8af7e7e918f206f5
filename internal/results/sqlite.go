package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/hh-interviewer/internal/interview"

	_ "modernc.org/sqlite"
)

// fixed width so text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS interviews (
  session_id TEXT PRIMARY KEY,
  job_title TEXT NOT NULL,
  reason TEXT NOT NULL,
  started_at TEXT NOT NULL,
  ended_at TEXT NOT NULL,
  score REAL NOT NULL,
  band TEXT,
  source TEXT,
  questions_completed INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS interviews_ended_at ON interviews (ended_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create interviews table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Persist(ctx context.Context, outcome *interview.Outcome) error {
	if err := validate(outcome); err != nil {
		return err
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	sum := summarize(outcome)
	const stmt = `
INSERT INTO interviews (session_id, job_title, reason, started_at, ended_at, score, band, source, questions_completed, total_questions, outcome)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
  job_title=excluded.job_title,
  reason=excluded.reason,
  started_at=excluded.started_at,
  ended_at=excluded.ended_at,
  score=excluded.score,
  band=excluded.band,
  source=excluded.source,
  questions_completed=excluded.questions_completed,
  total_questions=excluded.total_questions,
  outcome=excluded.outcome;
`
	_, err = s.db.ExecContext(ctx, stmt,
		sum.SessionID,
		sum.JobTitle,
		string(sum.Reason),
		sum.StartedAt.Format(timeLayout),
		sum.EndedAt.Format(timeLayout),
		sum.Score,
		sum.Band,
		sum.Source,
		sum.QuestionsCompleted,
		sum.TotalQuestions,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("upsert interview: %w", err)
	}
	return nil
}

// List returns the most recent interviews first. A non-positive limit returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, job_title, reason, started_at, ended_at, score, band, source, questions_completed, total_questions
FROM interviews
ORDER BY ended_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum            Summary
			reason         string
			started, ended string
			band, source   sql.NullString
		)
		if err := rows.Scan(&sum.SessionID, &sum.JobTitle, &reason, &started, &ended,
			&sum.Score, &band, &source, &sum.QuestionsCompleted, &sum.TotalQuestions); err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		sum.Reason = interview.Reason(reason)
		sum.Band, sum.Source = band.String, source.String
		if sum.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if sum.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*interview.Outcome, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT outcome FROM interviews WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}

	var outcome interview.Outcome
	if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
		return nil, fmt.Errorf("decode interview: %w", err)
	}
	return &outcome, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
