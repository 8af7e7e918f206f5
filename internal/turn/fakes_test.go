package turn

import (
	"context"
	"errors"
	"sync"

	"github.com/spigell/hh-interviewer/internal/speech"
)

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	errs    []error
	block   bool
	started chan string
	current context.CancelFunc
	curInt  bool
	closed  bool
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{started: make(chan string, 16)}
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string, interruptible bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	block := f.block
	f.current = cancel
	f.curInt = interruptible
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.current = nil
		f.mu.Unlock()
	}()

	f.started <- text

	if err != nil {
		return err
	}
	if block {
		<-ctx.Done()
	}
	return nil
}

func (f *fakeSpeaker) Interrupt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || !f.curInt {
		return false
	}
	f.current()
	f.current = nil
	return true
}

func (f *fakeSpeaker) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSpeaker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

// listenStep scripts one Listen call. A blocking step waits for cancellation
// and then returns its capture, like a recognizer that heard Capture.Text so far.
type listenStep struct {
	capture speech.Capture
	err     error
	block   bool
}

type fakeListener struct {
	mu      sync.Mutex
	steps   []listenStep
	calls   int
	started chan struct{}
	closed  bool
}

func newFakeListener(steps ...listenStep) *fakeListener {
	return &fakeListener{steps: steps, started: make(chan struct{}, 16)}
}

func (f *fakeListener) Listen(ctx context.Context, onPartial func(string)) (speech.Capture, error) {
	f.mu.Lock()
	f.calls++
	step := listenStep{}
	if len(f.steps) > 0 {
		step = f.steps[0]
		f.steps = f.steps[1:]
	}
	f.mu.Unlock()

	if onPartial != nil && step.capture.Text != "" {
		onPartial(step.capture.Text)
	}
	f.started <- struct{}{}

	if step.block {
		<-ctx.Done()
		return step.capture, ctx.Err()
	}
	return step.capture, step.err
}

func (f *fakeListener) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeListener) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingCoach struct{}

func (failingCoach) Guidance(context.Context, string, string) (string, error) {
	return "", errors.New("model unavailable")
}

func heard(text string) listenStep {
	return listenStep{capture: speech.Capture{Text: text, Confidence: 0.9}}
}
