package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

//go:embed scoring.md
var scoringTemplate string

const defaultMaxLogLength = 200

// Scorer asks Gemini to assess an interview transcript.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (s *Scorer) Score(ctx context.Context, req ai.ScoreRequest) (*ai.Feedback, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("transcript is empty")
	}

	jobJSON, err := json.MarshalIndent(req.Job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal job context: %w", err)
	}

	metricsJSON, err := json.MarshalIndent(metricsPayload(req.Metrics), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}

	system := buildScoringPrompt(string(jobJSON), string(metricsJSON))
	message := formatTranscript(req.Messages)

	s.logger.Debug("gemini scoring request",
		zap.String("session_id", req.SessionID),
		zap.Int("messages", len(req.Messages)),
		zap.Int("prompt_length", utf8.RuneCountInString(system)+utf8.RuneCountInString(message)),
		zap.String("transcript_preview", utils.TruncateForLog(message, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini scoring response",
		zap.String("session_id", req.SessionID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	feedback, err := parseFeedback(raw)
	if err != nil {
		return nil, err
	}

	feedback.Raw = raw
	return feedback, nil
}

func metricsPayload(m ai.Metrics) map[string]any {
	return map[string]any{
		"questions_completed":     m.QuestionsCompleted,
		"questions_answered":      m.QuestionsAnswered,
		"total_questions":         m.TotalQuestions,
		"completion_rate":         math.Round(m.CompletionRate*100) / 100,
		"average_latency_seconds": math.Round(m.AverageLatency.Seconds()*10) / 10,
		"duration_seconds":        math.Round(m.Duration.Seconds()),
		"help_requests":           m.HelpRequests,
	}
}

func buildScoringPrompt(jobJSON, metricsJSON string) string {
	template := scoringTemplate
	if strings.TrimSpace(template) == "" {
		template = "Position:\n{{JOB_JSON}}\n\nStatistics:\n{{METRICS_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{JOB_JSON}}", jobJSON)
	prompt = strings.ReplaceAll(prompt, "{{METRICS_JSON}}", metricsJSON)
	return prompt
}

func formatTranscript(messages []ai.Message) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			text = "(no answer)"
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, text)
	}
	return strings.TrimSpace(b.String())
}

func parseFeedback(raw string) (*ai.Feedback, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, errors.New("gemini response has no numeric score")
	}
	score = math.Max(0, math.Min(100, score))

	return &ai.Feedback{
		Score:          score,
		Summary:        coerceString(data["summary"]),
		Strengths:      coerceStrings(data["strengths"]),
		Improvements:   coerceStrings(data["improvements"]),
		Recommendation: strings.ToLower(coerceString(data["recommendation"])),
		Source:         ai.SourceModel,
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// models sometimes wrap the object in prose
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return nil
}
