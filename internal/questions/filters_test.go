package questions

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/hh-interviewer/internal/interview"
)

func sampleQuestions() []interview.Question {
	return []interview.Question{
		{Text: "Tell me about yourself.", Type: "intro"},
		{Text: "Design a rate limiter.", Type: "system_design"},
		{Text: "tell me about yourself.", Type: "intro"},
		{Text: "Describe a conflict.", Type: "Behavioral"},
		{Text: "Design a cache.", Type: "system_design"},
	}
}

func TestRunFilters(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	got, err := Run(Filters(SelectConfig{Types: []string{"behavioral", " system_design"}, Limit: 2}), sampleQuestions(), zap.New(core))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 || got[0].Text != "Design a rate limiter." || got[1].Text != "Describe a conflict." {
		t.Fatalf("unexpected selection: %+v", got)
	}

	steps := logs.FilterMessage("filter step").All()
	if len(steps) != 3 {
		t.Fatalf("expected 3 logged steps, got %d", len(steps))
	}
	if steps[0].ContextMap()["dropped"] != int64(1) {
		t.Fatalf("expected dedupe to drop one question, got %v", steps[0].ContextMap())
	}
}

func TestRunFiltersDisabledSteps(t *testing.T) {
	in := sampleQuestions()
	got, err := Run(Filters(SelectConfig{}), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected only duplicates removed, got %d", len(got))
	}
	if in[2].Text != "tell me about yourself." {
		t.Fatalf("input must not be modified")
	}
}

func TestRunFiltersNothingLeft(t *testing.T) {
	_, err := Run(Filters(SelectConfig{Types: []string{"coding"}}), sampleQuestions(), nil)
	if err == nil || !strings.Contains(err.Error(), "types: no questions left") {
		t.Fatalf("expected empty selection error, got %v", err)
	}
}
