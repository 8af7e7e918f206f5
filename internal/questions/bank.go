package questions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/interview"
)

//go:embed default.yaml
var defaultBank []byte

// Bank is a question list with the position it was written for.
type Bank struct {
	Job        ai.JobContext
	TimeBudget time.Duration
	Questions  []interview.Question
}

type bankFile struct {
	Job        ai.JobContext `yaml:"job"`
	TimeBudget time.Duration `yaml:"time-budget"`
	Questions  []entry       `yaml:"questions"`
}

// entry accepts either a plain string or a mapping with text and type.
type entry interview.Question

func (e *entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Text = node.Value
		return nil
	}

	var q struct {
		Text string `yaml:"text"`
		Type string `yaml:"type"`
	}
	if err := node.Decode(&q); err != nil {
		return err
	}
	e.Text, e.Type = q.Text, q.Type
	return nil
}

// Default returns the built-in general interview.
func Default() (*Bank, error) {
	return Parse(defaultBank)
}

// Load reads a bank from a YAML file.
func Load(path string) (*Bank, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported question bank extension %q", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	bank, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bank, nil
}

// Parse decodes and validates a bank.
func Parse(data []byte) (*Bank, error) {
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	bank := &Bank{Job: file.Job, TimeBudget: file.TimeBudget}
	for i, e := range file.Questions {
		text := strings.Join(strings.Fields(e.Text), " ")
		if text == "" {
			return nil, fmt.Errorf("question %d has no text", i+1)
		}
		bank.Questions = append(bank.Questions, interview.Question{Text: text, Type: strings.TrimSpace(e.Type)})
	}

	if len(bank.Questions) == 0 {
		return nil, errors.New("question bank has no questions")
	}
	if bank.TimeBudget < 0 {
		return nil, errors.New("time budget must not be negative")
	}

	return bank, nil
}

// WithJob overrides the bank's job context with a non-empty one, e.g. a fetched vacancy.
func (b *Bank) WithJob(job ai.JobContext) {
	if strings.TrimSpace(job.Title) == "" {
		return
	}
	b.Job = job
}
