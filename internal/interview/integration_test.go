package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/hh-interviewer/internal/speech"
	"github.com/spigell/hh-interviewer/internal/turn"
)

type quietSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *quietSpeaker) Speak(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *quietSpeaker) Interrupt() bool { return false }
func (s *quietSpeaker) Close()          {}

type scriptedListener struct {
	mu      sync.Mutex
	answers []string
}

func (l *scriptedListener) Listen(_ context.Context, onPartial func(string)) (speech.Capture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.answers) == 0 {
		return speech.Capture{}, nil
	}
	text := l.answers[0]
	l.answers = l.answers[1:]
	if onPartial != nil {
		onPartial(text)
	}
	return speech.Capture{Text: text, Confidence: 0.8, FirstTokenAfter: 300 * time.Millisecond}, nil
}

func (l *scriptedListener) Close() {}

func TestSessionWithTurnControllerHandlesHelp(t *testing.T) {
	speaker := &quietSpeaker{}
	listener := &scriptedListener{answers: []string{
		"I need help understanding this",
		"I would start with the database schema",
		"We used feature flags for rollouts",
	}}
	observer := &recordingObserver{}
	log := zaptest.NewLogger(t)

	session, err := New(Config{Questions: questions(2), TimeBudget: time.Minute}, Deps{
		Turns: func(events turn.Events) TurnRunner {
			return turn.New(speaker, listener, nil, turn.StaticCoach{Text: "Think about the data first."}, turn.Options{}, events, log)
		},
		Scorer:   &fakeScorer{},
		Observer: observer,
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	turns := outcome.Transcript.Turns()
	if len(turns) != 2 {
		t.Fatalf("help exchange must not create a turn, got %d turns", len(turns))
	}
	if turns[0].Index != 0 || turns[0].Response != "I would start with the database schema" || turns[0].Analytics.HelpRequests != 1 {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Index != 1 || turns[1].Response != "We used feature flags for rollouts" {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
	if outcome.Reason != ReasonCompleted || outcome.Stats.HelpRequests != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(session.ID()) != 36 {
		t.Fatalf("expected a uuid session id, got %q", session.ID())
	}

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	// welcome, question 1, guidance, question 2, goodbye
	if len(speaker.spoken) != 5 || speaker.spoken[2] != "Think about the data first." {
		t.Fatalf("unexpected speech: %v", speaker.spoken)
	}
	assertValidTransitions(t, observer.stateChanges())
}

type pacedTTS struct{}

func (pacedTTS) Voices(context.Context) ([]speech.Voice, error) {
	return []speech.Voice{{ID: "test", Default: true}}, nil
}

func (pacedTTS) Speak(ctx context.Context, _ speech.Utterance) error {
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
	return nil
}

type answerSTT struct {
	mu      sync.Mutex
	answers []string
}

type answerRecognition struct {
	events chan speech.Event
	once   sync.Once
	stop   chan struct{}
}

func (r *answerRecognition) Events() <-chan speech.Event { return r.events }

func (r *answerRecognition) Stop() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

func (s *answerSTT) Start(context.Context) (speech.Recognition, error) {
	s.mu.Lock()
	text := ""
	if len(s.answers) > 0 {
		text = s.answers[0]
		s.answers = s.answers[1:]
	}
	s.mu.Unlock()

	rec := &answerRecognition{events: make(chan speech.Event, 1), stop: make(chan struct{})}
	go func() {
		defer close(rec.events)
		select {
		case <-rec.stop:
		case <-time.After(5 * time.Millisecond):
			rec.events <- speech.Event{Kind: speech.EventFinal, Text: text, Confidence: 0.9}
		}
	}()
	return rec, nil
}

func TestSpeakingAndListeningNeverOverlap(t *testing.T) {
	log := zaptest.NewLogger(t)
	out := speech.NewOutput(pacedTTS{}, speech.OutputOptions{}, speech.OutputEvents{}, log)
	in := speech.NewInput(&answerSTT{answers: []string{
		"help",
		"I would start with the database schema",
		"We used feature flags for rollouts",
	}}, speech.InputOptions{SilenceTimeout: 20 * time.Millisecond, NoSpeechTimeout: time.Second}, log)

	session, err := New(Config{Questions: questions(2), TimeBudget: time.Minute}, Deps{
		Turns: func(events turn.Events) TurnRunner {
			return turn.New(out, in, nil, turn.StaticCoach{Text: "Think about the data first."}, turn.Options{}, events, log)
		},
		Scorer: &fakeScorer{},
		Logger: log,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	var speaking, listening, both int
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		for {
			select {
			case <-done:
				return
			default:
			}
			s, l := out.Speaking(), in.Listening()
			switch {
			case s && l:
				both++
			case s:
				speaking++
			case l:
				listening++
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	outcome, err := session.Run(context.Background())
	close(done)
	<-sampled
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if both != 0 {
		t.Fatalf("speaking and listening overlapped in %d samples", both)
	}
	if speaking == 0 || listening == 0 {
		t.Fatalf("expected both devices to be sampled active, got speaking=%d listening=%d", speaking, listening)
	}
	if outcome.Stats.HelpRequests != 1 || len(outcome.Transcript.Turns()) != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}
