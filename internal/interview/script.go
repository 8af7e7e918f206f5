package interview

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Script holds the system messages spoken around the questions.
// Empty fields fall back to the built-in wording.
type Script struct {
	Welcome string            `mapstructure:"welcome"`
	TimeUp  string            `mapstructure:"time-up"`
	Goodbye map[Reason]string `mapstructure:"goodbye"`
}

var defaultGoodbyes = map[Reason]string{
	ReasonCompleted: "That was the last question. Thank you for your time. Your feedback is being prepared.",
	ReasonUserEnded: "Thank you, we will end the interview here. Your feedback is being prepared.",
	ReasonTimeUp:    "Thank you for your answers. Your feedback is being prepared.",
	ReasonFault:     "We are having technical difficulties with the audio, so we will stop here. Your answers so far have been saved.",
}

const defaultTimeUp = "We have run out of time, so let's stop here."

func (s Script) welcome(job string, questions int, budget time.Duration) string {
	if text := strings.TrimSpace(s.Welcome); text != "" {
		return text
	}

	position := "this position"
	if job = strings.TrimSpace(job); job != "" {
		position = "the " + job + " position"
	}
	minutes := int(math.Ceil(budget.Minutes()))

	return fmt.Sprintf("Hello and welcome to your interview for %s. I will ask you %d %s and we have about %d %s. "+
		"Answer in your own words, and if you need a hint, just say help.",
		position, questions, plural(questions, "question"), minutes, plural(minutes, "minute"))
}

func (s Script) timeUp() string {
	if text := strings.TrimSpace(s.TimeUp); text != "" {
		return text
	}
	return defaultTimeUp
}

func (s Script) goodbye(reason Reason) string {
	if text := strings.TrimSpace(s.Goodbye[reason]); text != "" {
		return text
	}
	return defaultGoodbyes[reason]
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
