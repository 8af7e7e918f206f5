package headhunter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/speech"
)

type Vacancy struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Employer struct {
		ID   string `mapstructure:"id"`
		Name string `mapstructure:"name"`
	} `mapstructure:"employer"`
	Experience struct {
		ID   string `mapstructure:"id"`
		Name string `mapstructure:"name"`
	} `mapstructure:"experience"`
	Description string `mapstructure:"description"`
	KeySkills   []struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"key_skills"`
	AlternateURL string `mapstructure:"alternate_url"`
	Archived     bool   `mapstructure:"archived"`
}

// plain text only, no acronym expansion
var descriptionNormalizer = speech.NewNormalizer(map[string]string{})

func (c *Client) getVacancy(id string) (*Vacancy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("vacancy id is empty")
	}

	var raw map[string]interface{}
	if err := c.getJSON(c.APIURL+"/vacancies/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}

	vacancy, err := decodeVacancy(raw)
	if err != nil {
		return nil, fmt.Errorf("decode vacancy %s: %w", id, err)
	}

	c.logger.Debug("got vacancy",
		zap.String("id", vacancy.ID),
		zap.String("name", vacancy.Name),
		zap.Int("skills", len(vacancy.KeySkills)),
	)

	return vacancy, nil
}

// decodeVacancy tolerates numeric ids and unknown fields.
func decodeVacancy(raw map[string]interface{}) (*Vacancy, error) {
	var vacancy Vacancy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &vacancy,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	if vacancy.Name == "" {
		return nil, errors.New("vacancy has no name")
	}

	return &vacancy, nil
}

// JobContext converts the vacancy into the context the interview is run for.
func (va *Vacancy) JobContext() ai.JobContext {
	job := ai.JobContext{
		ID:          va.ID,
		Title:       strings.TrimSpace(va.Name),
		Company:     strings.TrimSpace(va.Employer.Name),
		Level:       va.Experience.Name,
		Description: descriptionNormalizer.Normalize(va.Description),
	}
	for _, skill := range va.KeySkills {
		if name := strings.TrimSpace(skill.Name); name != "" {
			job.Skills = append(job.Skills, name)
		}
	}

	return job
}
