package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSilenceTimeout  = 1800 * time.Millisecond
	defaultNoSpeechTimeout = 8 * time.Second
	defaultMaxRestarts     = 1
)

// InputOptions configures end-of-turn detection.
type InputOptions struct {
	// SilenceTimeout is the quiet period after the last recognized words that ends the turn.
	SilenceTimeout time.Duration
	// NoSpeechTimeout ends a turn in which nothing was heard at all.
	NoSpeechTimeout time.Duration
	// MaxRestarts bounds transparent restarts on an unstable network.
	// Zero selects the default of one; a negative value disables restarts.
	MaxRestarts int
}

// Capture is the outcome of one Listen call.
type Capture struct {
	Text       string
	Confidence float64
	// FirstTokenAfter is the delay between the start of listening and the first recognized words.
	FirstTokenAfter time.Duration
	Duration        time.Duration
	Restarts        int
	// Forced is set when the capture was finalized by Stop rather than by silence.
	Forced bool
}

// Empty reports whether nothing was recognized.
func (c Capture) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

type listenRun struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newListenRun() *listenRun {
	return &listenRun{stop: make(chan struct{}), done: make(chan struct{})}
}

func (r *listenRun) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Input owns the microphone for one interview attempt. Only one Listen is active at a time.
type Input struct {
	stt    SpeechToText
	opts   InputOptions
	logger *zap.Logger

	mu     sync.Mutex
	active *listenRun
	closed bool
}

// NewInput wraps a recognizer.
func NewInput(stt SpeechToText, opts InputOptions, logger *zap.Logger) *Input {
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = defaultSilenceTimeout
	}
	if opts.NoSpeechTimeout <= 0 {
		opts.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	switch {
	case opts.MaxRestarts == 0:
		opts.MaxRestarts = defaultMaxRestarts
	case opts.MaxRestarts < 0:
		opts.MaxRestarts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Input{stt: stt, opts: opts, logger: logger}
}

// Listen captures one response. onPartial receives the running transcript.
// Hearing nothing is a valid empty Capture. Aborted capture returns what was
// heard so far. Errors are categorized; see CategoryOf.
func (in *Input) Listen(ctx context.Context, onPartial func(text string)) (Capture, error) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return Capture{}, ErrClosed
	}
	prev := in.active
	run := newListenRun()
	in.active = run
	in.mu.Unlock()

	if prev != nil {
		in.logger.Debug("stopping previous capture before listening again")
		prev.requestStop()
		<-prev.done
	}

	defer func() {
		in.mu.Lock()
		if in.active == run {
			in.active = nil
		}
		in.mu.Unlock()
		close(run.done)
	}()

	return in.listen(ctx, run, onPartial)
}

// Stop finalizes the active Listen with everything heard so far.
func (in *Input) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.active != nil {
		in.active.requestStop()
	}
}

// Listening reports whether a Listen call is in progress.
func (in *Input) Listening() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active != nil
}

// Close stops capture, waits for the active Listen to return and releases the microphone.
func (in *Input) Close() {
	in.mu.Lock()
	in.closed = true
	active := in.active
	in.mu.Unlock()

	if active != nil {
		active.requestStop()
		<-active.done
	}
}

type accumulator struct {
	start      time.Time
	finals     []string
	partial    string
	confSum    float64
	confCount  int
	firstToken time.Duration
	heard      bool
}

func (a *accumulator) mark() {
	if !a.heard {
		a.heard = true
		a.firstToken = time.Since(a.start)
	}
}

func (a *accumulator) text() string {
	parts := make([]string, 0, len(a.finals)+1)
	parts = append(parts, a.finals...)
	if p := strings.TrimSpace(a.partial); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func (a *accumulator) capture(restarts int, forced bool) Capture {
	c := Capture{
		Text:            a.text(),
		FirstTokenAfter: a.firstToken,
		Duration:        time.Since(a.start),
		Restarts:        restarts,
		Forced:          forced,
	}
	if a.confCount > 0 {
		c.Confidence = a.confSum / float64(a.confCount)
	}
	return c
}

func (in *Input) listen(ctx context.Context, run *listenRun, onPartial func(string)) (Capture, error) {
	acc := &accumulator{start: time.Now()}
	restarts := 0

	rec, err := in.start(ctx, &restarts)
	if err != nil {
		return acc.capture(restarts, false), err
	}
	defer func() { _ = rec.Stop() }()

	events := rec.Events()
	timer := time.NewTimer(in.opts.NoSpeechTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return acc.capture(restarts, false), ctx.Err()

		case <-run.stop:
			return acc.capture(restarts, true), nil

		case <-timer.C:
			if !acc.heard {
				in.logger.Debug("no speech detected", zap.Duration("waited", time.Since(acc.start)))
			}
			return acc.capture(restarts, false), nil

		case ev, ok := <-events:
			if !ok {
				return acc.capture(restarts, false), nil
			}

			switch ev.Kind {
			case EventPartial:
				if strings.TrimSpace(ev.Text) == "" {
					continue
				}
				acc.mark()
				acc.partial = ev.Text
				if onPartial != nil {
					onPartial(acc.text())
				}
				resetTimer(timer, in.opts.SilenceTimeout)

			case EventFinal:
				text := strings.TrimSpace(ev.Text)
				acc.partial = ""
				if text != "" {
					acc.mark()
					acc.finals = append(acc.finals, text)
					if ev.Confidence > 0 {
						acc.confSum += ev.Confidence
						acc.confCount++
					}
					if onPartial != nil {
						onPartial(acc.text())
					}
				}
				resetTimer(timer, in.opts.SilenceTimeout)

			case EventError:
				category := CategoryOf(ev.Err)
				switch category {
				case CategoryNoSpeech, CategoryAborted:
					in.logger.Debug("capture ended", zap.Stringer("category", category))
					return acc.capture(restarts, false), nil

				case CategoryNetworkUnstable:
					if restarts >= in.opts.MaxRestarts {
						return acc.capture(restarts, false), NewError(category, "listen", ev.Err)
					}
					_ = rec.Stop()
					restarts++
					in.logger.Info("restarting capture after network error",
						zap.Int("restart", restarts),
						zap.Error(ev.Err),
					)
					next, err := in.stt.Start(ctx)
					if err != nil {
						return acc.capture(restarts, false), NewError(CategoryOf(err), "restart", err)
					}
					rec = next
					events = rec.Events()
					resetTimer(timer, in.opts.NoSpeechTimeout)

				default:
					return acc.capture(restarts, false), NewError(category, "listen", ev.Err)
				}
			}
		}
	}
}

// start opens a recognition, spending the restart budget on network errors.
func (in *Input) start(ctx context.Context, restarts *int) (Recognition, error) {
	for {
		rec, err := in.stt.Start(ctx)
		if err == nil {
			return rec, nil
		}

		category := CategoryOf(err)
		if category != CategoryNetworkUnstable || *restarts >= in.opts.MaxRestarts {
			return nil, NewError(category, "start", err)
		}

		*restarts++
		in.logger.Info("retrying capture start after network error",
			zap.Int("restart", *restarts),
			zap.Error(err),
		)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
