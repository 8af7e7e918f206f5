package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Band maps a number of answered questions to a score range.
// MaxAnswered below MinAnswered means the band has no upper bound.
type Band struct {
	MinAnswered int     `mapstructure:"min-answered" json:"min_answered"`
	MaxAnswered int     `mapstructure:"max-answered" json:"max_answered"`
	Label       string  `mapstructure:"label" json:"label"`
	MinScore    float64 `mapstructure:"min-score" json:"min_score"`
	MaxScore    float64 `mapstructure:"max-score" json:"max_score"`
	Summary     string  `mapstructure:"summary" json:"summary"`
}

func (b Band) contains(answered int) bool {
	if answered < b.MinAnswered {
		return false
	}
	return b.MaxAnswered < b.MinAnswered || answered <= b.MaxAnswered
}

// FallbackPolicy is the rule set used when the scoring service is unavailable.
type FallbackPolicy struct {
	Bands []Band `mapstructure:"bands" json:"bands"`
}

// DefaultFallbackPolicy returns the stock bands.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{Bands: []Band{
		{
			MinAnswered: 0, MaxAnswered: 0, Label: "lowest", MinScore: 0, MaxScore: 10,
			Summary: "No questions were answered, so there is not enough material for an assessment.",
		},
		{
			MinAnswered: 1, MaxAnswered: 2, Label: "poor", MinScore: 10, MaxScore: 30,
			Summary: "Only a few questions were answered. The interview gives a limited picture of your experience.",
		},
		{
			MinAnswered: 3, MaxAnswered: 4, Label: "below_average", MinScore: 30, MaxScore: 50,
			Summary: "Several questions were answered, but the interview was not completed in full.",
		},
		{
			MinAnswered: 5, MaxAnswered: -1, Label: "acceptable_to_good", MinScore: 50, MaxScore: 75,
			Summary: "Most questions were answered. A detailed review was not available, so this score reflects completion only.",
		},
	}}
}

// DecodeFallbackPolicy builds a policy from loosely typed configuration such as a viper sub-tree.
// Nil input yields the default policy.
func DecodeFallbackPolicy(raw any) (FallbackPolicy, error) {
	if raw == nil {
		return DefaultFallbackPolicy(), nil
	}

	var policy FallbackPolicy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &policy,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return FallbackPolicy{}, fmt.Errorf("create fallback policy decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return FallbackPolicy{}, fmt.Errorf("decode fallback policy: %w", err)
	}

	if len(policy.Bands) == 0 {
		return DefaultFallbackPolicy(), nil
	}

	if err := policy.Validate(); err != nil {
		return FallbackPolicy{}, err
	}

	return policy, nil
}

// Validate checks score ranges.
func (p FallbackPolicy) Validate() error {
	if len(p.Bands) == 0 {
		return errors.New("fallback policy has no bands")
	}
	for i, b := range p.Bands {
		if b.MinScore < 0 || b.MaxScore > 100 || b.MinScore > b.MaxScore {
			return fmt.Errorf("fallback band %d (%s): invalid score range %.1f-%.1f", i, b.Label, b.MinScore, b.MaxScore)
		}
		if b.MinAnswered < 0 {
			return fmt.Errorf("fallback band %d (%s): negative min answered", i, b.Label)
		}
	}
	return nil
}

func (p FallbackPolicy) band(answered int) Band {
	for _, b := range p.Bands {
		if b.contains(answered) {
			return b
		}
	}
	// above the last bounded band
	return p.Bands[len(p.Bands)-1]
}

// RuleBased derives feedback from completion alone.
type RuleBased struct {
	Policy FallbackPolicy
}

// NewRuleBased returns a scorer using policy, or the default policy when it has no bands.
func NewRuleBased(policy FallbackPolicy) *RuleBased {
	if len(policy.Bands) == 0 {
		policy = DefaultFallbackPolicy()
	}
	return &RuleBased{Policy: policy}
}

func (r *RuleBased) Score(_ context.Context, req ScoreRequest) (*Feedback, error) {
	m := req.Metrics
	b := r.Policy.band(m.QuestionsAnswered)

	rate := math.Max(0, math.Min(1, m.CompletionRate))
	score := b.MinScore + (b.MaxScore-b.MinScore)*rate
	score = math.Round(score*10) / 10

	feedback := &Feedback{
		Score:   score,
		Band:    b.Label,
		Summary: b.Summary,
		Source:  SourceRuleBased,
	}

	if m.QuestionsAnswered > 0 {
		feedback.Strengths = append(feedback.Strengths,
			fmt.Sprintf("Answered %d of %d questions.", m.QuestionsAnswered, m.TotalQuestions))
	}
	if m.QuestionsAnswered > 0 && m.AverageLatency > 0 && m.AverageLatency <= 5*time.Second {
		feedback.Strengths = append(feedback.Strengths, "Started answering promptly.")
	}
	if m.QuestionsAnswered < m.TotalQuestions {
		feedback.Improvements = append(feedback.Improvements, "Try to answer every question within the time budget.")
	}
	if m.HelpRequests > 0 {
		feedback.Improvements = append(feedback.Improvements, "Prepare concrete examples in advance to rely less on hints.")
	}

	return feedback, nil
}
