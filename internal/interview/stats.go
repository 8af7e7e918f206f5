package interview

import (
	"math"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/turn"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const (
	minimalGreeting        = "Hello, thank you for joining this interview."
	minimalAcknowledgement = "Thank you, I am ready to begin."
)

// computeStats derives session metrics from the recorded turns.
func computeStats(turns []Turn, total int, duration time.Duration) ai.Metrics {
	m := ai.Metrics{
		QuestionsCompleted: len(turns),
		TotalQuestions:     total,
		Duration:           duration,
	}

	var latencySum time.Duration
	var latencyCount int
	for _, t := range turns {
		m.HelpRequests += t.Analytics.HelpRequests
		if !t.Answered() {
			continue
		}
		m.QuestionsAnswered++
		if t.Method == turn.MethodVoice && t.Latency > 0 {
			latencySum += t.Latency
			latencyCount++
		}
	}

	if total > 0 {
		m.CompletionRate = float64(m.QuestionsCompleted) / float64(total)
	}
	if latencyCount > 0 {
		m.AverageLatency = latencySum / time.Duration(latencyCount)
	}

	return m
}

// estimateConfidence uses the recognizer's confidence when it reported one.
// Otherwise longer answers are trusted more, since short fragments are the
// typical product of misrecognized noise.
func estimateConfidence(r turn.Result) float64 {
	switch {
	case r.Text == "":
		return 0
	case r.Method == turn.MethodText:
		return 1
	case r.Confidence > 0:
		return math.Min(1, r.Confidence)
	}

	words := utils.WordCount(r.Text)
	return math.Min(0.95, 0.5+float64(words)/40)
}

// scoringMessages returns the messages sent to the scorer. A transcript with
// fewer than two exchanges is padded with a greeting exchange.
func scoringMessages(s Snapshot) []ai.Message {
	messages := s.Messages()
	if len(s.Turns()) >= 2 {
		return messages
	}

	padded := make([]ai.Message, 0, len(messages)+2)
	padded = append(padded,
		ai.Message{Role: ai.RoleAssistant, Text: minimalGreeting},
		ai.Message{Role: ai.RoleCandidate, Text: minimalAcknowledgement},
	)
	return append(padded, messages...)
}
