package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/hh-interviewer/internal/speech"
)

func TestRunTurnSpeaksThenListens(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener(listenStep{capture: speech.Capture{
		Text:            "I built a billing service",
		Confidence:      0.8,
		FirstTokenAfter: 400 * time.Millisecond,
		Duration:        3 * time.Second,
	}})

	var mu sync.Mutex
	var changes []State
	c := New(speaker, listener, nil, nil, Options{}, Events{
		OnStateChange: func(_, to State) { mu.Lock(); changes = append(changes, to); mu.Unlock() },
	}, zaptest.NewLogger(t))

	res, err := c.RunTurn(context.Background(), "Tell me about a project")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "I built a billing service" || res.Method != MethodVoice {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Latency != 400*time.Millisecond {
		t.Fatalf("expected latency from first token, got %v", res.Latency)
	}
	if res.Confidence != 0.8 {
		t.Fatalf("unexpected confidence %v", res.Confidence)
	}

	want := []State{Speaking, Listening, Idle}
	if len(changes) != len(want) {
		t.Fatalf("unexpected state changes %v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("unexpected state changes %v", changes)
		}
	}
	if c.State() != Idle {
		t.Fatalf("controller must be idle after a turn")
	}
}

func TestRunTurnLatencyWhenNothingHeard(t *testing.T) {
	listener := newFakeListener(listenStep{capture: speech.Capture{Duration: 2 * time.Second}})
	c := New(newFakeSpeaker(), listener, nil, nil, Options{}, Events{}, nil)

	res, err := c.RunTurn(context.Background(), "Question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "" || res.Latency != 2*time.Second {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestInterruptFiresOnceAndStartsListening(t *testing.T) {
	speaker := newFakeSpeaker()
	speaker.block = true
	listener := newFakeListener(heard("Sure, my answer"))

	var mu sync.Mutex
	var reasons []InterruptReason
	c := New(speaker, listener, nil, nil, Options{}, Events{
		OnInterrupt: func(r InterruptReason) { mu.Lock(); reasons = append(reasons, r); mu.Unlock() },
	}, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RunTurn(context.Background(), "A very long question")
		done <- res
	}()

	<-speaker.started
	if !c.Interrupt(InterruptUserSpeech) {
		t.Fatalf("expected interrupt to succeed")
	}
	c.Interrupt(InterruptUserSpeech)

	select {
	case res := <-done:
		if !res.Interrupted || res.Text != "Sure, my answer" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish after interrupt")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != InterruptUserSpeech {
		t.Fatalf("expected exactly one interrupt event, got %v", reasons)
	}
}

func TestInterruptIgnoredWhenNotSpeaking(t *testing.T) {
	c := New(newFakeSpeaker(), newFakeListener(), nil, nil, Options{}, Events{}, nil)
	if c.Interrupt(InterruptUserSpeech) {
		t.Fatalf("interrupt must be a no-op while idle")
	}
}

func TestHelpRequestSpeaksGuidanceAndListensAgain(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener(heard("I need help understanding this"), heard("I would use a queue"))

	var helped []string
	c := New(speaker, listener, nil, StaticCoach{Text: "Think about throughput."}, Options{}, Events{
		OnHelp: func(utterance, _ string) { helped = append(helped, utterance) },
	}, nil)

	res, err := c.RunTurn(context.Background(), "How would you scale it?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "I would use a queue" || res.HelpRequests != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	spoken := speaker.texts()
	if len(spoken) != 2 || spoken[1] != "Think about throughput." {
		t.Fatalf("expected prompt then guidance, got %v", spoken)
	}
	if len(helped) != 1 {
		t.Fatalf("expected one help event, got %v", helped)
	}
}

func TestHelpBudgetKeepsUtteranceAsAnswer(t *testing.T) {
	listener := newFakeListener(heard("help"), heard("hint please"))
	c := New(newFakeSpeaker(), listener, nil, nil, Options{MaxHelpRequests: 1}, Events{}, nil)

	res, err := c.RunTurn(context.Background(), "Question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hint please" || res.HelpRequests != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if listener.callCount() != 2 {
		t.Fatalf("expected two listens, got %d", listener.callCount())
	}
}

func TestCoachFailureFallsBackToStaticGuidance(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener(heard("help"), heard("answer"))
	c := New(speaker, listener, nil, failingCoach{}, Options{}, Events{}, nil)

	if _, err := c.RunTurn(context.Background(), "Question"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spoken := speaker.texts()
	if len(spoken) != 2 || spoken[1] != defaultGuidance {
		t.Fatalf("expected static guidance, got %v", spoken)
	}
}

func TestSynthesisFailureFallsBackToText(t *testing.T) {
	synthErr := speech.NewError(speech.CategorySynthesisFailure, "speak", errors.New("engine crashed"))
	speaker := newFakeSpeaker()
	speaker.errs = []error{synthErr, synthErr}
	listener := newFakeListener(heard("my answer"))

	var fallback []string
	c := New(speaker, listener, nil, nil, Options{}, Events{
		OnTextFallback: func(text string) { fallback = append(fallback, text) },
	}, nil)

	res, err := c.RunTurn(context.Background(), "Question one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(speaker.texts()) != 2 {
		t.Fatalf("expected one retry, got %d attempts", len(speaker.texts()))
	}
	if len(fallback) != 1 || fallback[0] != "Question one" {
		t.Fatalf("expected text fallback, got %v", fallback)
	}
	if res.Text != "my answer" {
		t.Fatalf("listening must proceed after fallback, got %+v", res)
	}
}

func TestRecoverableListenErrorRepromptsOnce(t *testing.T) {
	netErr := speech.NewError(speech.CategoryNetworkUnstable, "listen", errors.New("reset"))
	speaker := newFakeSpeaker()
	listener := newFakeListener(listenStep{err: netErr}, listenStep{err: netErr})

	var faults []bool
	c := New(speaker, listener, nil, nil, Options{}, Events{
		OnFault: func(_ error, fatal bool) { faults = append(faults, fatal) },
	}, nil)

	res, err := c.RunTurn(context.Background(), "Question")
	if err != nil {
		t.Fatalf("recoverable faults must not be returned, got %v", err)
	}
	if res.Reprompts != 1 || !errors.Is(res.Fault, speech.ErrTransientNetwork) || res.Text != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(speaker.texts()) != 2 {
		t.Fatalf("expected the question to be asked twice, got %v", speaker.texts())
	}
	if len(faults) != 2 || faults[0] || faults[1] {
		t.Fatalf("unexpected fault events %v", faults)
	}
}

func TestFatalListenErrorIsReturned(t *testing.T) {
	listener := newFakeListener(listenStep{err: speech.NewError(speech.CategoryPermissionDenied, "start", errors.New("denied"))})
	c := New(newFakeSpeaker(), listener, nil, nil, Options{}, Events{}, nil)

	_, err := c.RunTurn(context.Background(), "Question")

	var fault *Fault
	if !errors.As(err, &fault) || !fault.Fatal {
		t.Fatalf("expected fatal fault, got %v", err)
	}
	if !errors.Is(err, speech.ErrPermission) {
		t.Fatalf("fault must wrap the device error, got %v", err)
	}
}

func TestFinalizeWhileListeningKeepsCapturedText(t *testing.T) {
	listener := newFakeListener(listenStep{capture: speech.Capture{Text: "half an answer"}, block: true})
	c := New(newFakeSpeaker(), listener, nil, nil, Options{}, Events{}, nil)

	done := make(chan Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := c.RunTurn(context.Background(), "Question")
		done <- res
		errCh <- err
	}()

	<-listener.started
	c.Finalize()

	select {
	case res := <-done:
		if err := <-errCh; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != "half an answer" || !res.Finalized || res.Fault != nil {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish after finalize")
	}

	if _, err := c.RunTurn(context.Background(), "Next"); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
	if err := c.Say(context.Background(), "Time is up", false); err != nil {
		t.Fatalf("Say must keep working after finalize, got %v", err)
	}
}

func TestFinalizeWhileSpeakingSkipsListening(t *testing.T) {
	speaker := newFakeSpeaker()
	speaker.block = true
	listener := newFakeListener()
	c := New(speaker, listener, nil, nil, Options{}, Events{}, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RunTurn(context.Background(), "Question")
		done <- res
	}()

	<-speaker.started
	c.Finalize()

	select {
	case res := <-done:
		if !res.Finalized || res.Text != "" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish after finalize")
	}
	if listener.callCount() != 0 {
		t.Fatalf("listening must be skipped once finalized")
	}
}

func TestSubmitTextWhileListening(t *testing.T) {
	listener := newFakeListener(listenStep{block: true})
	c := New(newFakeSpeaker(), listener, nil, nil, Options{}, Events{}, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RunTurn(context.Background(), "Question")
		done <- res
	}()

	<-listener.started
	if !c.SubmitText("typed answer") {
		t.Fatalf("expected typed answer to be accepted")
	}

	select {
	case res := <-done:
		if res.Text != "typed answer" || res.Method != MethodText {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish after typed answer")
	}
}

func TestSubmitTextRejectedWhenIdle(t *testing.T) {
	c := New(newFakeSpeaker(), newFakeListener(), nil, nil, Options{}, Events{}, nil)
	if c.SubmitText("hello") {
		t.Fatalf("typed text must be rejected outside a turn")
	}
}

func TestRequestHelpWhileListening(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener(listenStep{block: true}, heard("final answer"))
	c := New(speaker, listener, nil, StaticCoach{Text: "guidance"}, Options{}, Events{}, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RunTurn(context.Background(), "Question")
		done <- res
	}()

	<-listener.started
	if !c.RequestHelp() {
		t.Fatalf("expected help request to be accepted")
	}

	select {
	case res := <-done:
		if res.Text != "final answer" || res.HelpRequests != 1 {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}
	if spoken := speaker.texts(); len(spoken) != 2 || spoken[1] != "guidance" {
		t.Fatalf("expected guidance to be spoken, got %v", spoken)
	}
}

func TestRunTurnContextCancelled(t *testing.T) {
	listener := newFakeListener(listenStep{block: true, capture: speech.Capture{Text: "so far I said"}})
	c := New(newFakeSpeaker(), listener, nil, nil, Options{}, Events{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.RunTurn(ctx, "Question")
		done <- outcome{res, err}
	}()

	<-listener.started
	cancel()

	got := <-done
	if !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.err)
	}
	if got.res.Text != "so far I said" {
		t.Fatalf("expected heard text to be kept, got %q", got.res.Text)
	}
}

func TestSubmitTextRejectedDuringSay(t *testing.T) {
	speaker := newFakeSpeaker()
	speaker.block = true
	listener := newFakeListener(heard("spoken later"))
	c := New(speaker, listener, nil, nil, Options{}, Events{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sayDone := make(chan struct{})
	go func() {
		_ = c.Say(ctx, "Welcome", true)
		close(sayDone)
	}()

	<-speaker.started
	if c.SubmitText("my typed answer") {
		t.Fatalf("typed text must be refused while no question is asked")
	}
	if c.RequestHelp() {
		t.Fatalf("help must be refused while no question is asked")
	}
	cancel()
	<-sayDone

	speaker.mu.Lock()
	speaker.block = false
	speaker.mu.Unlock()

	res, err := c.RunTurn(context.Background(), "Question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "spoken later" || res.Method != MethodVoice {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRequestHelpRefusedWhenBudgetSpent(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener(listenStep{block: true}, listenStep{block: true})
	c := New(speaker, listener, nil, StaticCoach{Text: "guidance"}, Options{MaxHelpRequests: 1}, Events{}, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RunTurn(context.Background(), "Question")
		done <- res
	}()

	<-listener.started
	if !c.RequestHelp() {
		t.Fatalf("expected first help request to be accepted")
	}

	<-listener.started
	if c.RequestHelp() {
		t.Fatalf("help beyond the budget must be refused")
	}

	select {
	case res := <-done:
		t.Fatalf("a refused help request must not end the turn, got %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
	if c.State() != Listening {
		t.Fatalf("capture must keep running, state is %s", c.State())
	}

	if !c.SubmitText("my answer") {
		t.Fatalf("expected typed answer to be accepted")
	}
	select {
	case res := <-done:
		if res.Text != "my answer" || res.HelpRequests != 1 {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}
	if got := listener.callCount(); got != 2 {
		t.Fatalf("expected two listens, got %d", got)
	}
}

func TestCloseReleasesDevices(t *testing.T) {
	speaker := newFakeSpeaker()
	listener := newFakeListener()
	c := New(speaker, listener, nil, nil, Options{}, Events{}, nil)

	c.Close()
	c.Close()

	if !speaker.closed || !listener.closed {
		t.Fatalf("expected both devices to be released")
	}
	if _, err := c.RunTurn(context.Background(), "Question"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
