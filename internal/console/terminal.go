// Package console runs an interview in a terminal: typed lines stand in for
// the candidate's speech and printed lines for the interviewer's voice.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/speech"
)

// Controls are the session actions a candidate can trigger. *interview.Session satisfies it.
type Controls interface {
	RequestEarlyEnd() bool
	Interrupt() bool
	RequestHelp() bool
	SubmitText(text string) bool
}

const usage = `Commands:
  /help              ask for a hint on the current question
  /type <answer>     submit a typed answer
  /interrupt         stop the interviewer and start answering
  /end               end the interview early
  /fail <kind>       simulate network, permission, unsupported, abort, nospeech or synthesis failure
  /commands          show this list
Any other line is treated as speech.
`

var failures = map[string]speech.Category{
	"network":     speech.CategoryNetworkUnstable,
	"permission":  speech.CategoryPermissionDenied,
	"unsupported": speech.CategoryUnsupported,
	"abort":       speech.CategoryAborted,
	"nospeech":    speech.CategoryNoSpeech,
}

// Terminal owns stdin and stdout for one interview.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	STT *STT
	TTS *TTS

	mu       sync.Mutex
	controls Controls
}

func NewTerminal(in io.Reader, out io.Writer, wordsPerMinute int, logger *zap.Logger) *Terminal {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Terminal{in: in, out: out, logger: logger}
	t.STT = NewSTT()
	t.TTS = NewTTS(t, wordsPerMinute)
	return t
}

// Attach routes commands to the session once it exists.
func (t *Terminal) Attach(c Controls) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = c
}

// Printf writes to the terminal. Safe for concurrent use.
func (t *Terminal) Printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) Usage() {
	t.Printf("%s", usage)
}

// Run dispatches input lines until ctx is done or input ends.
func (t *Terminal) Run(ctx context.Context) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			t.Dispatch(line)
		}
	}
}

// Dispatch handles one input line.
func (t *Terminal) Dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if !strings.HasPrefix(line, "/") {
		if !t.STT.Deliver(line) {
			// typing over the interviewer is a barge-in; the line is kept for the capture
			t.withControls(func(c Controls) bool { return c.Interrupt() })
		}
		return
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	t.logger.Debug("command", zap.String("command", cmd))

	switch cmd {
	case "/help":
		t.report(cmd, t.withControls(func(c Controls) bool { return c.RequestHelp() }))
	case "/end":
		t.report(cmd, t.withControls(func(c Controls) bool { return c.RequestEarlyEnd() }))
	case "/interrupt":
		t.report(cmd, t.withControls(func(c Controls) bool { return c.Interrupt() }))
	case "/type":
		if arg == "" {
			t.Printf("usage: /type <answer>\n")
			return
		}
		t.report(cmd, t.withControls(func(c Controls) bool { return c.SubmitText(arg) }))
	case "/fail":
		t.fail(arg)
	case "/commands":
		t.Usage()
	default:
		t.Printf("unknown command %s\n%s", cmd, usage)
	}
}

func (t *Terminal) fail(kind string) {
	if kind == "synthesis" {
		t.TTS.FailNext()
		t.Printf("(next utterance will fail to synthesize)\n")
		return
	}

	category, ok := failures[kind]
	if !ok {
		t.Printf("usage: /fail network|permission|unsupported|abort|nospeech|synthesis\n")
		return
	}
	t.STT.Fail(category)
	t.Printf("(simulating %s)\n", category)
}

func (t *Terminal) withControls(fn func(Controls) bool) bool {
	t.mu.Lock()
	c := t.controls
	t.mu.Unlock()

	if c == nil {
		return false
	}
	return fn(c)
}

func (t *Terminal) report(cmd string, accepted bool) {
	if !accepted {
		t.Printf("(%s ignored right now)\n", cmd)
	}
}
