package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/turn"
)

// step scripts one RunTurn call. A blocking step waits for Finalize or
// cancellation and then returns res as the in-flight turn.
type step struct {
	res     turn.Result
	err     error
	block   bool
	onStart func()
}

type fakeRunner struct {
	events turn.Events

	mu          sync.Mutex
	steps       []step
	prompts     []string
	said        []string
	interrupts  []turn.InterruptReason
	helps       int
	typed       []string
	finalized   bool
	finalizeCh  chan struct{}
	closed      bool
	closedCount int
	started     chan int
}

func newFakeRunner(steps ...step) *fakeRunner {
	return &fakeRunner{
		steps:      steps,
		finalizeCh: make(chan struct{}),
		started:    make(chan int, 32),
	}
}

func (f *fakeRunner) factory(events turn.Events) TurnRunner {
	f.events = events
	return f
}

func (f *fakeRunner) emit(from, to turn.State) {
	if f.events.OnStateChange != nil {
		f.events.OnStateChange(from, to)
	}
}

func (f *fakeRunner) RunTurn(ctx context.Context, prompt string) (turn.Result, error) {
	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return turn.Result{}, turn.ErrFinalized
	}
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts) - 1
	s := step{res: turn.Result{Text: "answer", Method: turn.MethodVoice}}
	if len(f.steps) > 0 {
		s = f.steps[0]
		f.steps = f.steps[1:]
	}
	f.mu.Unlock()

	f.emit(turn.Idle, turn.Speaking)
	f.emit(turn.Speaking, turn.Listening)
	if f.events.OnPartial != nil && s.res.Text != "" {
		f.events.OnPartial(s.res.Text)
	}
	if s.onStart != nil {
		s.onStart()
	}
	f.started <- n

	if s.block {
		select {
		case <-f.finalizeCh:
			s.res.Finalized = true
		case <-ctx.Done():
			f.emit(turn.Listening, turn.Idle)
			return s.res, ctx.Err()
		}
	}

	f.emit(turn.Listening, turn.Idle)
	return s.res, s.err
}

func (f *fakeRunner) Say(ctx context.Context, text string, _ bool) error {
	f.emit(turn.Idle, turn.Speaking)
	f.mu.Lock()
	f.said = append(f.said, text)
	f.mu.Unlock()
	f.emit(turn.Speaking, turn.Idle)
	return ctx.Err()
}

func (f *fakeRunner) Interrupt(reason turn.InterruptReason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts = append(f.interrupts, reason)
	return true
}

func (f *fakeRunner) RequestHelp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.helps++
	return true
}

func (f *fakeRunner) SubmitText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return true
}

func (f *fakeRunner) Finalize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finalized {
		f.finalized = true
		close(f.finalizeCh)
	}
}

func (f *fakeRunner) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closedCount++
}

func (f *fakeRunner) askedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeRunner) saidTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

type fakeScorer struct {
	mu       sync.Mutex
	calls    int
	requests []ai.ScoreRequest
	feedback *ai.Feedback
	err      error
	block    bool
}

func (f *fakeScorer) Score(ctx context.Context, req ai.ScoreRequest) (*ai.Feedback, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.feedback != nil {
		return f.feedback, nil
	}
	return &ai.Feedback{Score: 80, Summary: "solid", Source: ai.SourceModel}, nil
}

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu       sync.Mutex
	outcomes []*Outcome
	err      error
}

func (f *fakeSink) Persist(_ context.Context, o *Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	return f.err
}

// recordingObserver keeps state changes and recorded turns.
type recordingObserver struct {
	NopObserver

	mu         sync.Mutex
	changes    [][2]State
	recorded   []Turn
	partials   int
	ticks      int
	completed  int
	onRecorded func(Turn)
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, [2]State{from, to})
}

func (o *recordingObserver) Partial(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.partials++
}

func (o *recordingObserver) Tick(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *recordingObserver) TurnRecorded(t Turn) {
	o.mu.Lock()
	o.recorded = append(o.recorded, t)
	hook := o.onRecorded
	o.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

func (o *recordingObserver) Completed(*Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
}

func (o *recordingObserver) stateChanges() [][2]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][2]State(nil), o.changes...)
}

var errBoom = errors.New("boom")
