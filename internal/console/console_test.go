package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/speech"
)

type fakeControls struct {
	mu    sync.Mutex
	calls []string
	typed []string
}

func (f *fakeControls) record(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return true
}

func (f *fakeControls) RequestEarlyEnd() bool { return f.record("end") }
func (f *fakeControls) Interrupt() bool { return f.record("interrupt") }
func (f *fakeControls) RequestHelp() bool { return f.record("help") }
func (f *fakeControls) SubmitText(text string) bool {
	f.mu.Lock()
	f.typed = append(f.typed, text)
	f.mu.Unlock()
	return f.record("type")
}

func (f *fakeControls) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func newTestTerminal() (*Terminal, *syncBuffer, *fakeControls) {
	out := &syncBuffer{}
	term := NewTerminal(strings.NewReader(""), out, -1, nil)
	controls := &fakeControls{}
	term.Attach(controls)
	return term, out, controls
}

func TestDispatchCommands(t *testing.T) {
	term, out, controls := newTestTerminal()

	term.Dispatch("/help")
	term.Dispatch("/interrupt")
	term.Dispatch("/type  my typed answer ")
	term.Dispatch("/type")
	term.Dispatch("/end")
	term.Dispatch("/bogus")

	got := controls.called()
	want := []string{"help", "interrupt", "type", "end"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if controls.typed[0] != "my typed answer" {
		t.Fatalf("unexpected typed text: %q", controls.typed[0])
	}
	if !strings.Contains(out.String(), "usage: /type") || !strings.Contains(out.String(), "unknown command /bogus") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestDispatchWithoutSessionIsIgnored(t *testing.T) {
	out := &syncBuffer{}
	term := NewTerminal(strings.NewReader(""), out, -1, nil)

	term.Dispatch("/end")
	if !strings.Contains(out.String(), "/end ignored") {
		t.Fatalf("expected ignored notice, got %q", out.String())
	}
}

func TestPlainLineIsSpeech(t *testing.T) {
	term, _, controls := newTestTerminal()

	in := speech.NewInput(term.STT, speech.InputOptions{SilenceTimeout: 20 * time.Millisecond, NoSpeechTimeout: time.Second}, nil)

	result := make(chan speech.Capture, 1)
	go func() {
		capture, _ := in.Listen(context.Background(), nil)
		result <- capture
	}()

	waitListening(t, term.STT)
	term.Dispatch("I have five years of Go")

	select {
	case capture := <-result:
		if capture.Text != "I have five years of Go" || capture.Confidence != typedConfidence {
			t.Fatalf("unexpected capture: %+v", capture)
		}
	case <-time.After(time.Second):
		t.Fatal("listen did not finish")
	}
	if len(controls.called()) != 0 {
		t.Fatalf("speech while listening must not interrupt, got %v", controls.called())
	}
}

func TestPlainLineWhileSpeakingBargesIn(t *testing.T) {
	term, _, controls := newTestTerminal()

	term.Dispatch("wait, I know this")
	if got := controls.called(); len(got) != 1 || got[0] != "interrupt" {
		t.Fatalf("expected barge-in interrupt, got %v", got)
	}

	// the line is heard by the next capture
	rec, err := term.STT.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := <-rec.Events()
	if ev.Kind != speech.EventFinal || ev.Text != "wait, I know this" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	_ = rec.Stop()
	_ = rec.Stop()
}

func TestFailInjection(t *testing.T) {
	term, _, _ := newTestTerminal()

	term.Dispatch("/fail permission")
	if _, err := term.STT.Start(context.Background()); !errors.Is(err, speech.ErrPermission) {
		t.Fatalf("expected permission error on start, got %v", err)
	}

	term.Dispatch("/fail network")
	rec, err := term.STT.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := <-rec.Events()
	if ev.Kind != speech.EventError || speech.CategoryOf(ev.Err) != speech.CategoryNetworkUnstable {
		t.Fatalf("expected network error event, got %+v", ev)
	}
	_ = rec.Stop()

	term.Dispatch("/fail synthesis")
	if err := term.TTS.Speak(context.Background(), speech.Utterance{Text: "Hello"}); err == nil {
		t.Fatalf("expected synthesis failure")
	}
	if err := term.TTS.Speak(context.Background(), speech.Utterance{Text: "Hello"}); err != nil {
		t.Fatalf("failure must apply once, got %v", err)
	}
}

func TestTTSPacingIsCancellable(t *testing.T) {
	out := &syncBuffer{}
	term := NewTerminal(strings.NewReader(""), out, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := term.TTS.Speak(ctx, speech.Utterance{Text: "one two three"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("speak ignored cancellation")
	}
	if !strings.Contains(out.String(), "Interviewer: one two three") {
		t.Fatalf("expected printed line, got %q", out.String())
	}
}

func TestRunDispatchesInput(t *testing.T) {
	out := &syncBuffer{}
	term := NewTerminal(strings.NewReader("/help\n\n/end\n"), out, -1, nil)
	controls := &fakeControls{}
	term.Attach(controls)

	if err := term.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := controls.called(); len(got) != 2 || got[0] != "help" || got[1] != "end" {
		t.Fatalf("unexpected calls: %v", got)
	}
}

func TestPrinterCompleted(t *testing.T) {
	out := &syncBuffer{}
	p := NewPrinter(NewTerminal(strings.NewReader(""), out, -1, nil), nil)

	p.Tick(31 * time.Second)
	p.Tick(30 * time.Second)
	p.Tick(30 * time.Second)
	p.Completed(&interview.Outcome{
		SessionID: "abc",
		Reason:    interview.ReasonCompleted,
		Stats:     ai.Metrics{QuestionsAnswered: 2, TotalQuestions: 3, Duration: 90 * time.Second},
		Feedback: &ai.Feedback{
			Score:     55,
			Band:      "acceptable_to_good",
			Summary:   "Solid answers.",
			Strengths: []string{"clear structure"},
		},
	})

	text := out.String()
	if strings.Count(text, "(30s left)") != 1 {
		t.Fatalf("expected one reminder, got %q", text)
	}
	for _, want := range []string{"Interview finished (completed)", "Answered 2 of 3 questions in 1m30s", "Score: 55.0/100 (acceptable_to_good)", "  - clear structure"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func waitListening(t *testing.T, stt *STT) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !stt.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("recognition did not start")
		}
		time.Sleep(time.Millisecond)
	}
}
