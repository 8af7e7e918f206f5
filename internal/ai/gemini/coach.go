package gemini

import (
	"context"
	"errors"
	"strings"

	_ "embed"

	"go.uber.org/zap"
)

//go:embed coaching.md
var coachingTemplate string

// Coach generates spoken hints for candidates who ask for help.
type Coach struct {
	generator contentGenerator
	jobTitle  string
	logger    *zap.Logger
}

func NewCoach(generator contentGenerator, jobTitle string, logger *zap.Logger) *Coach {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{generator: generator, jobTitle: strings.TrimSpace(jobTitle), logger: logger}
}

func (c *Coach) Guidance(ctx context.Context, question, utterance string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is required")
	}

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		utterance = "(asked for help without saying anything else)"
	}
	title := c.jobTitle
	if title == "" {
		title = "not specified"
	}

	r := strings.NewReplacer("{{JOB_TITLE}}", title, "{{QUESTION}}", question, "{{UTTERANCE}}", utterance)
	hint, err := c.generator.GenerateContent(ctx, r.Replace(coachingTemplate), "Give the hint now.")
	if err != nil {
		c.logger.Warn("failed to generate hint", zap.Error(err))
		return "", err
	}

	return strings.TrimSpace(hint), nil
}
