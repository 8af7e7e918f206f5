package ai

import (
	"context"
	"time"
)

// Role tags a transcript message for the scorer.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleCandidate Role = "candidate"
	RoleSystem    Role = "system"
)

// Message is one entry of a serialized transcript.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// JobContext describes the position the candidate is interviewed for.
type JobContext struct {
	ID          string   `json:"id,omitempty" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Company     string   `json:"company,omitempty" yaml:"company"`
	Level       string   `json:"level,omitempty" yaml:"level"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Skills      []string `json:"skills,omitempty" yaml:"skills"`
}

// Metrics are the derived statistics of a finished interview.
type Metrics struct {
	QuestionsCompleted int           `json:"questions_completed"`
	QuestionsAnswered  int           `json:"questions_answered"`
	TotalQuestions     int           `json:"total_questions"`
	CompletionRate     float64       `json:"completion_rate"`
	AverageLatency     time.Duration `json:"average_latency"`
	Duration           time.Duration `json:"duration"`
	HelpRequests       int           `json:"help_requests"`
}

// ScoreRequest is everything a scorer sees.
type ScoreRequest struct {
	SessionID string
	Messages  []Message
	Job       JobContext
	Metrics   Metrics
}

const (
	SourceModel     = "model"
	SourceRuleBased = "rule_based"
)

// Feedback is the structured result of scoring an interview.
type Feedback struct {
	Score          float64  `json:"score"`
	Band           string   `json:"band,omitempty"`
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Source         string   `json:"source"`
	Raw            string   `json:"-"`
}

// Scorer turns a finished transcript into feedback.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*Feedback, error)
}
