package console

import (
	"context"
	"sync"

	"github.com/spigell/hh-interviewer/internal/speech"
)

// typedConfidence is what a typed line is reported with when delivered as speech.
const typedConfidence = 0.9

// STT turns lines typed into the terminal into recognition results.
type STT struct {
	mu        sync.Mutex
	active    *recognition
	pending   []string
	startErr  error
	nextEvent *speech.Event
}

func NewSTT() *STT {
	return &STT{}
}

func (s *STT) Start(ctx context.Context) (speech.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startErr; err != nil {
		s.startErr = nil
		return nil, err
	}

	rec := &recognition{owner: s, events: make(chan speech.Event, 64)}
	for _, line := range s.pending {
		rec.send(speech.Event{Kind: speech.EventFinal, Text: line, Confidence: typedConfidence})
	}
	s.pending = nil
	if s.nextEvent != nil {
		rec.send(*s.nextEvent)
		s.nextEvent = nil
	}
	s.active = rec

	return rec, nil
}

// Deliver hands a typed line to the running recognition. Without one the line
// is kept for the next capture and false is returned.
func (s *STT) Deliver(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.send(speech.Event{Kind: speech.EventPartial, Text: line}) {
		s.active.send(speech.Event{Kind: speech.EventFinal, Text: line, Confidence: typedConfidence})
		return true
	}
	s.pending = append(s.pending, line)
	return false
}

// Fail injects a recognizer error. Fatal categories fail the next Start when
// nothing is listening; other errors wait for the next capture.
func (s *STT) Fail(category speech.Category) {
	err := speech.NewError(category, "console", nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.send(speech.Event{Kind: speech.EventError, Err: err}) {
		return
	}
	if category.Fatal() {
		s.startErr = err
		return
	}
	s.nextEvent = &speech.Event{Kind: speech.EventError, Err: err}
}

// Listening reports whether a capture is running.
func (s *STT) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *STT) release(rec *recognition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == rec {
		s.active = nil
	}
}

type recognition struct {
	owner  *STT
	mu     sync.Mutex
	events chan speech.Event
	closed bool
}

func (r *recognition) Events() <-chan speech.Event { return r.events }

func (r *recognition) send(ev speech.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.events <- ev:
		return true
	default:
		return false
	}
}

func (r *recognition) Stop() error {
	r.owner.release(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	return nil
}
