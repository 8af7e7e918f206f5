package console

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/turn"
	"github.com/spigell/hh-interviewer/internal/utils"
)

var reminders = []time.Duration{5 * time.Minute, 2 * time.Minute, time.Minute, 30 * time.Second, 10 * time.Second}

// Printer shows session events in the terminal.
type Printer struct {
	term   *Terminal
	logger *zap.Logger

	mu       sync.Mutex
	reminded map[time.Duration]bool
}

func NewPrinter(term *Terminal, logger *zap.Logger) *Printer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Printer{term: term, logger: logger, reminded: make(map[time.Duration]bool)}
}

func (p *Printer) StateChanged(from, to interview.State) {
	p.logger.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	if to == interview.Listening {
		p.term.Printf("(listening, type your answer)\n")
	}
}

func (p *Printer) Partial(text string) {
	p.logger.Debug("partial transcript", zap.String("text", utils.TruncateForLog(text, 80)))
}

func (p *Printer) Interrupted(reason turn.InterruptReason) {
	p.term.Printf("(interviewer interrupted: %s)\n", reason)
}

func (p *Printer) Help(string, string) {
	p.term.Printf("(hint requested)\n")
}

func (p *Printer) TextFallback(text string) {
	p.term.Printf("Interviewer [text only]: %s\n", text)
}

func (p *Printer) Fault(err error, fatal bool) {
	if fatal {
		p.term.Printf("! speech device failed, the interview cannot continue: %v\n", err)
		return
	}
	p.term.Printf("! speech problem: %v\n", err)
}

func (p *Printer) Tick(remaining time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, mark := range reminders {
		if remaining <= mark && remaining > mark-time.Second && !p.reminded[mark] {
			p.reminded[mark] = true
			p.term.Printf("(%s left)\n", mark)
		}
	}
}

func (p *Printer) TurnRecorded(t interview.Turn) {
	if !t.Answered() {
		p.term.Printf("(no answer recorded for question %d)\n", t.Index+1)
		return
	}
	p.term.Printf("(answer to question %d recorded: %d words, %s)\n", t.Index+1, t.Analytics.WordCount, t.Method)
}

func (p *Printer) Completed(o *interview.Outcome) {
	var b strings.Builder
	b.WriteString("\n=== Interview finished (" + string(o.Reason) + ") ===\n")
	b.WriteString("Session: " + o.SessionID + "\n")

	s := o.Stats
	p.term.Printf("%sAnswered %d of %d questions in %s\n", b.String(),
		s.QuestionsAnswered, s.TotalQuestions, s.Duration.Round(time.Second))

	if o.Feedback == nil {
		p.term.Printf("No feedback available: %s\n", o.ScoringError)
		return
	}

	f := o.Feedback
	p.term.Printf("Score: %.1f/100", f.Score)
	if f.Band != "" {
		p.term.Printf(" (%s)", f.Band)
	}
	p.term.Printf("\n%s\n", f.Summary)
	printList(p.term, "Strengths", f.Strengths)
	printList(p.term, "To improve", f.Improvements)
	if f.Recommendation != "" {
		p.term.Printf("Recommendation: %s\n", f.Recommendation)
	}
}

func printList(term *Terminal, title string, items []string) {
	if len(items) == 0 {
		return
	}
	term.Printf("%s:\n", title)
	for _, item := range items {
		term.Printf("  - %s\n", item)
	}
}
