package turn

import (
	"context"
	"strings"
)

const defaultGuidance = "No problem. Take a moment to think it over. " +
	"Try to answer with a concrete example from your own experience: the situation, what you did, and the result. " +
	"Whenever you are ready, go ahead."

// Coach produces the spoken guidance for a help request. Guidance is not scored.
type Coach interface {
	Guidance(ctx context.Context, question, utterance string) (string, error)
}

// StaticCoach always returns the same guidance.
type StaticCoach struct {
	Text string
}

func (c StaticCoach) Guidance(context.Context, string, string) (string, error) {
	if text := strings.TrimSpace(c.Text); text != "" {
		return text, nil
	}
	return defaultGuidance, nil
}
