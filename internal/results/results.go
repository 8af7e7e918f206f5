// Package results stores finished interviews.
package results

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/hh-interviewer/internal/interview"
)

var ErrNotFound = errors.New("result not found")

// Summary is one line of the results list.
type Summary struct {
	SessionID          string           `json:"session_id"`
	JobTitle           string           `json:"job_title"`
	Reason             interview.Reason `json:"reason"`
	StartedAt          time.Time        `json:"started_at"`
	EndedAt            time.Time        `json:"ended_at"`
	Score              float64          `json:"score"`
	Band               string           `json:"band,omitempty"`
	Source             string           `json:"source,omitempty"`
	QuestionsCompleted int              `json:"questions_completed"`
	TotalQuestions     int              `json:"total_questions"`
}

// Store persists outcomes and reads them back. Every Store is an interview.ResultSink.
type Store interface {
	Persist(ctx context.Context, outcome *interview.Outcome) error
	List(ctx context.Context, limit int) ([]Summary, error)
	Get(ctx context.Context, sessionID string) (*interview.Outcome, error)
	Close() error
}

func summarize(o *interview.Outcome) Summary {
	s := Summary{
		SessionID:          o.SessionID,
		JobTitle:           o.Job.Title,
		Reason:             o.Reason,
		StartedAt:          o.StartedAt.UTC(),
		EndedAt:            o.EndedAt.UTC(),
		QuestionsCompleted: o.Stats.QuestionsCompleted,
		TotalQuestions:     o.Stats.TotalQuestions,
	}
	if o.Feedback != nil {
		s.Score = o.Feedback.Score
		s.Band = o.Feedback.Band
		s.Source = o.Feedback.Source
	}
	return s
}

func validate(o *interview.Outcome) error {
	if o == nil {
		return errors.New("outcome is nil")
	}
	if o.SessionID == "" {
		return errors.New("outcome has no session id")
	}
	return nil
}

// Open returns the store for the configured driver: "sqlite" or "file".
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "file":
		return NewFileStore(path)
	default:
		return nil, errors.New("unknown results driver: " + driver)
	}
}
