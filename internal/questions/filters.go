package questions

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/interview"
)

// Filter is one step of question selection.
type Filter interface {
	Name() string
	IsEnabled() bool
	Apply(qs []interview.Question) ([]interview.Question, Step, error)
}

// Step describes the result of executing a selection step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// SelectConfig is the question selection part of the configuration.
type SelectConfig struct {
	Types []string `mapstructure:"types"`
	Limit int      `mapstructure:"limit"`
}

// Filters builds the selection pipeline for cfg.
func Filters(cfg SelectConfig) []Filter {
	return []Filter{
		&dedupeFilter{},
		&typeFilter{types: cfg.Types},
		&limitFilter{limit: cfg.Limit},
	}
}

// Run applies the enabled steps in order. The interview needs at least one question, so a
// pipeline that drops everything is an error.
func Run(steps []Filter, qs []interview.Question, logger *zap.Logger) ([]interview.Question, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	qs = append([]interview.Question(nil), qs...)
	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(qs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		if len(next) == 0 {
			return nil, fmt.Errorf("%s: no questions left", step.Name())
		}
		qs = next
	}

	return qs, nil
}

type dedupeFilter struct{}

func (f *dedupeFilter) Name() string { return "dedupe" }

func (f *dedupeFilter) IsEnabled() bool { return true }

func (f *dedupeFilter) Apply(qs []interview.Question) ([]interview.Question, Step, error) {
	seen := make(map[string]bool, len(qs))
	out := make([]interview.Question, 0, len(qs))
	for _, q := range qs {
		key := strings.ToLower(q.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out, Step{Initial: len(qs), Dropped: len(qs) - len(out), Left: len(out)}, nil
}

type typeFilter struct {
	types []string
}

func (f *typeFilter) Name() string { return "types" }

func (f *typeFilter) IsEnabled() bool { return len(f.types) > 0 }

func (f *typeFilter) Apply(qs []interview.Question) ([]interview.Question, Step, error) {
	allowed := make(map[string]bool, len(f.types))
	for _, t := range f.types {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}

	out := make([]interview.Question, 0, len(qs))
	for _, q := range qs {
		if allowed[strings.ToLower(q.Type)] {
			out = append(out, q)
		}
	}
	return out, Step{Initial: len(qs), Dropped: len(qs) - len(out), Left: len(out)}, nil
}

type limitFilter struct {
	limit int
}

func (f *limitFilter) Name() string { return "limit" }

func (f *limitFilter) IsEnabled() bool { return f.limit > 0 }

func (f *limitFilter) Apply(qs []interview.Question) ([]interview.Question, Step, error) {
	if len(qs) <= f.limit {
		return qs, Step{Initial: len(qs), Left: len(qs)}, nil
	}
	return qs[:f.limit], Step{Initial: len(qs), Dropped: len(qs) - f.limit, Left: f.limit}, nil
}
