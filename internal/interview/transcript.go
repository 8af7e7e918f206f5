package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/turn"
)

var (
	ErrTranscriptFrozen = errors.New("transcript is frozen")
	ErrOutOfOrder       = errors.New("turn is out of question order")
)

// Question is one prompt of the interview.
type Question struct {
	Text string `json:"text" yaml:"text"`
	Type string `json:"type,omitempty" yaml:"type"`
}

// Analytics are derived from one response.
type Analytics struct {
	Confidence   float64 `json:"confidence"`
	WordCount    int     `json:"word_count"`
	HelpRequests int     `json:"help_requests,omitempty"`
	Reprompts    int     `json:"reprompts,omitempty"`
	Interrupted  bool    `json:"interrupted,omitempty"`
}

// Turn is one finalized question and answer exchange.
type Turn struct {
	Index     int              `json:"index"`
	Question  string           `json:"question"`
	Type      string           `json:"type,omitempty"`
	Response  string           `json:"response"`
	Timestamp time.Time        `json:"timestamp"`
	Method    turn.InputMethod `json:"method"`
	Latency   time.Duration    `json:"latency"`
	Duration  time.Duration    `json:"duration"`
	Analytics Analytics        `json:"analytics"`
	Fault     string           `json:"fault,omitempty"`
}

// Answered reports whether the candidate said anything.
func (t Turn) Answered() bool {
	return t.Response != ""
}

type EntryKind string

const (
	EntrySystem EntryKind = "system"
	EntryTurn   EntryKind = "turn"
)

// Entry is a transcript line: either a system message or a turn.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
	Turn *Turn     `json:"turn,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Turn != nil {
		t := *e.Turn
		e.Turn = &t
	}
	return e
}

// Transcript is the ordered record of a session. It is safe for concurrent use.
type Transcript struct {
	mu        sync.Mutex
	entries   []Entry
	lastIndex int
	frozen    *Snapshot
}

func NewTranscript() *Transcript {
	return &Transcript{lastIndex: -1}
}

// AddSystem records a system message such as the welcome or goodbye.
func (t *Transcript) AddSystem(text string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen != nil {
		return ErrTranscriptFrozen
	}
	t.entries = append(t.entries, Entry{Kind: EntrySystem, Text: text, At: at})
	return nil
}

// Append records a turn. Question indexes must strictly increase.
func (t *Transcript) Append(turn Turn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen != nil {
		return ErrTranscriptFrozen
	}
	if turn.Index <= t.lastIndex {
		return fmt.Errorf("%w: index %d after %d", ErrOutOfOrder, turn.Index, t.lastIndex)
	}

	t.lastIndex = turn.Index
	t.entries = append(t.entries, Entry{Kind: EntryTurn, At: turn.Timestamp, Turn: &turn})
	return nil
}

// Turns returns a copy of the recorded turns.
func (t *Transcript) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return turnsOf(t.entries)
}

// Freeze ends recording and returns the immutable snapshot. Repeated calls return the same snapshot.
func (t *Transcript) Freeze() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen == nil {
		entries := make([]Entry, len(t.entries))
		for i, e := range t.entries {
			entries[i] = e.clone()
		}
		t.frozen = &Snapshot{entries: entries}
	}
	return *t.frozen
}

// Snapshot is a frozen transcript. Accessors return copies.
type Snapshot struct {
	entries []Entry
}

func (s Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

func (s Snapshot) Turns() []Turn {
	return turnsOf(s.entries)
}

// Messages serializes the transcript for a scorer: every turn becomes the
// interviewer question followed by the candidate response.
func (s Snapshot) Messages() []ai.Message {
	out := make([]ai.Message, 0, len(s.entries)*2)
	for _, e := range s.entries {
		switch e.Kind {
		case EntrySystem:
			out = append(out, ai.Message{Role: ai.RoleSystem, Text: e.Text})
		case EntryTurn:
			out = append(out,
				ai.Message{Role: ai.RoleAssistant, Text: e.Turn.Question},
				ai.Message{Role: ai.RoleCandidate, Text: e.Turn.Response},
			)
		}
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

func turnsOf(entries []Entry) []Turn {
	var out []Turn
	for _, e := range entries {
		if e.Kind == EntryTurn && e.Turn != nil {
			out = append(out, *e.Turn)
		}
	}
	return out
}
