package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/speech"
	"github.com/spigell/hh-interviewer/internal/utils"
)

var (
	// ErrBusy is returned when a turn is started while another one runs.
	ErrBusy = errors.New("turn already in progress")
	// ErrFinalized is returned by RunTurn once Finalize has been called.
	ErrFinalized = errors.New("turn controller finalized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("turn controller closed")
)

const (
	defaultMaxHelpRequests = 2
	defaultMaxReprompts    = 1
	defaultSynthRetries    = 1
	defaultRepromptPrefix  = "Sorry, I did not catch that. Let me repeat the question."
)

// Speaker is the output side of a turn. *speech.Output satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string, interruptible bool) error
	Interrupt() bool
	Close()
}

// Listener is the input side of a turn. *speech.Input satisfies it.
type Listener interface {
	Listen(ctx context.Context, onPartial func(text string)) (speech.Capture, error)
	Close()
}

// Fault is a device error that ended a turn. Fatal faults end the interview.
type Fault struct {
	Fatal bool
	Err   error
}

func (f *Fault) Error() string {
	if f.Fatal {
		return fmt.Sprintf("fatal speech fault: %v", f.Err)
	}
	return fmt.Sprintf("speech fault: %v", f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Options tune a Controller. Zero values select defaults; negative counts disable the feature.
type Options struct {
	MaxHelpRequests  int
	MaxReprompts     int
	SynthesisRetries int
	RepromptPrefix   string
}

func (o Options) withDefaults() Options {
	o.MaxHelpRequests = countOrDefault(o.MaxHelpRequests, defaultMaxHelpRequests)
	o.MaxReprompts = countOrDefault(o.MaxReprompts, defaultMaxReprompts)
	o.SynthesisRetries = countOrDefault(o.SynthesisRetries, defaultSynthRetries)
	if strings.TrimSpace(o.RepromptPrefix) == "" {
		o.RepromptPrefix = defaultRepromptPrefix
	}
	return o
}

func countOrDefault(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	default:
		return v
	}
}

// Events are optional hooks for the presentation layer.
type Events struct {
	OnStateChange  func(from, to State)
	OnPartial      func(text string)
	OnInterrupt    func(reason InterruptReason)
	OnTextFallback func(text string)
	OnHelp         func(utterance, guidance string)
	OnFault        func(err error, fatal bool)
}

// Result describes one completed turn.
type Result struct {
	Text   string
	Method InputMethod
	// Confidence is the recognizer's mean confidence for the kept answer, 0 when unknown.
	Confidence float64
	// Latency is the time from the end of the prompt to the first recognized words.
	// When nothing was heard it is the whole listening time.
	Latency      time.Duration
	Duration     time.Duration
	HelpRequests int
	Reprompts    int
	Interrupted  bool
	Finalized    bool
	// Fault is set when a recoverable device error ended the turn.
	Fault error
}

// Controller drives one speak-then-listen cycle at a time.
type Controller struct {
	speaker    Speaker
	listener   Listener
	classifier Classifier
	coach      Coach
	opts       Options
	events     Events
	logger     *zap.Logger

	mu            sync.Mutex
	state         State
	running       bool
	inTurn        bool
	interrupted   bool
	helpRequested bool
	helpsUsed     int
	typed         *string
	finalizing    bool
	closed        bool
	cancelPhase   context.CancelFunc
}

// New builds a Controller. A nil classifier selects the keyword classifier and a nil coach the static one.
func New(speaker Speaker, listener Listener, classifier Classifier, coach Coach, opts Options, events Events, logger *zap.Logger) *Controller {
	if classifier == nil {
		classifier = NewKeywordClassifier(nil)
	}
	if coach == nil {
		coach = StaticCoach{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		speaker:    speaker,
		listener:   listener,
		classifier: classifier,
		coach:      coach,
		opts:       opts.withDefaults(),
		events:     events,
		logger:     logger,
		state:      Idle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("invalid turn transition %s -> %s", from, to)
	}
	c.state = to
	if to == Speaking {
		c.interrupted = false
	}
	c.mu.Unlock()

	c.logger.Debug("turn state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	if c.events.OnStateChange != nil {
		c.events.OnStateChange(from, to)
	}
	return nil
}

// toIdle returns to Idle from whatever state a turn was left in.
func (c *Controller) toIdle() {
	if c.State() != Idle {
		_ = c.transition(Idle)
	}
}

// begin claims the controller. Only a question turn accepts typed answers.
func (c *Controller) begin(question bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.running:
		return ErrBusy
	}
	c.running = true
	c.inTurn = question
	return nil
}

func (c *Controller) end() {
	c.toIdle()
	c.mu.Lock()
	c.running = false
	c.inTurn = false
	c.mu.Unlock()
}

// Say speaks a statement without listening afterwards.
// Synthesis failures fall back to text and are not returned.
func (c *Controller) Say(ctx context.Context, text string, interruptible bool) error {
	if err := c.begin(false); err != nil {
		return err
	}
	defer c.end()

	phaseCtx, cancel := c.newPhase(ctx, false)
	defer cancel()

	if err := c.transition(Speaking); err != nil {
		return err
	}
	if err := c.speak(phaseCtx, text, interruptible); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// newPhase derives the context of one speaking or listening phase. Finalize and
// SubmitText cancel it. A turn phase starts cancelled when either already happened.
func (c *Controller) newPhase(ctx context.Context, turnPhase bool) (context.Context, context.CancelFunc) {
	phaseCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancelPhase = cancel
	if turnPhase && (c.finalizing || c.typed != nil || c.helpRequested) {
		cancel()
	}
	c.mu.Unlock()

	return phaseCtx, func() {
		cancel()
		c.mu.Lock()
		c.cancelPhase = nil
		c.mu.Unlock()
	}
}

// stopPhase must be called with c.mu held.
func (c *Controller) stopPhase() {
	if c.cancelPhase != nil {
		c.cancelPhase()
	}
}

// RunTurn asks prompt and captures the response. The returned error is either a
// context error, a *Fault with Fatal set, ErrFinalized, ErrBusy or ErrClosed.
// On a context error the result still carries whatever was heard.
// Recoverable faults end the turn with Result.Fault set.
func (c *Controller) RunTurn(ctx context.Context, prompt string) (Result, error) {
	if err := c.begin(true); err != nil {
		return Result{}, err
	}
	defer c.end()

	c.mu.Lock()
	if c.finalizing {
		c.mu.Unlock()
		return Result{}, ErrFinalized
	}
	c.typed = nil
	c.helpRequested = false
	c.helpsUsed = 0
	c.mu.Unlock()

	started := time.Now()
	res := Result{Method: MethodVoice}
	say := prompt

	finish := func() (Result, error) {
		res.Duration = time.Since(started)
		return res, nil
	}

	for {
		phaseCtx, cancel := c.newPhase(ctx, true)
		if err := c.transition(Speaking); err != nil {
			cancel()
			return res, err
		}
		if phaseCtx.Err() == nil {
			_ = c.speak(phaseCtx, say, true)
		}
		cancel()
		if err := ctx.Err(); err != nil {
			return res, err
		}

		c.mu.Lock()
		if c.interrupted {
			res.Interrupted = true
		}
		finalizing := c.finalizing
		typed := c.takeTyped()
		wantsHelp := c.takeHelp()
		c.mu.Unlock()

		if finalizing {
			res.Finalized = true
			return finish()
		}
		if typed != nil {
			c.useTyped(&res, *typed)
			return finish()
		}
		if wantsHelp && res.HelpRequests < c.opts.MaxHelpRequests {
			c.countHelp(&res)
			say = c.guidance(ctx, prompt, "")
			if c.events.OnHelp != nil {
				c.events.OnHelp("", say)
			}
			c.toIdle()
			continue
		}

		phaseCtx, cancel = c.newPhase(ctx, true)
		if err := c.transition(Listening); err != nil {
			cancel()
			return res, err
		}
		capture, err := c.listener.Listen(phaseCtx, c.events.OnPartial)
		stopped := phaseCtx.Err() != nil
		cancel()
		c.toIdle()

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.keepCapture(&res, capture)
			res.Duration = time.Since(started)
			return res, ctxErr
		}
		if stopped {
			// cut short on purpose: whatever the device reported is not a fault
			err = nil
		}

		c.mu.Lock()
		finalizing = c.finalizing
		typed = c.takeTyped()
		wantsHelp = c.takeHelp()
		c.mu.Unlock()

		if typed != nil {
			c.useTyped(&res, *typed)
			return finish()
		}

		if err != nil {
			if speech.IsFatal(err) {
				c.fault(err, true)
				c.keepCapture(&res, capture)
				res.Duration = time.Since(started)
				return res, &Fault{Fatal: true, Err: err}
			}

			c.fault(err, false)
			if res.Reprompts < c.opts.MaxReprompts && !finalizing && capture.Empty() {
				res.Reprompts++
				say = c.opts.RepromptPrefix + " " + prompt
				continue
			}

			c.keepCapture(&res, capture)
			res.Fault = err
			return finish()
		}

		if !finalizing && res.HelpRequests < c.opts.MaxHelpRequests &&
			(wantsHelp || c.classifier.Classify(capture.Text) == IntentHelp) {
			c.countHelp(&res)
			c.logger.Info("help requested", zap.String("utterance", utils.TruncateForLog(capture.Text, 80)))
			say = c.guidance(ctx, prompt, capture.Text)
			if c.events.OnHelp != nil {
				c.events.OnHelp(capture.Text, say)
			}
			continue
		}

		c.keepCapture(&res, capture)
		res.Finalized = finalizing
		return finish()
	}
}

func (c *Controller) keepCapture(res *Result, capture speech.Capture) {
	res.Text = strings.TrimSpace(capture.Text)
	res.Method = MethodVoice
	res.Confidence = capture.Confidence
	if capture.FirstTokenAfter > 0 {
		res.Latency = capture.FirstTokenAfter
	} else {
		res.Latency = capture.Duration
	}
}

func (c *Controller) useTyped(res *Result, text string) {
	res.Text = strings.TrimSpace(text)
	res.Method = MethodText
	res.Confidence = 1
}

func (c *Controller) countHelp(res *Result) {
	res.HelpRequests++
	c.mu.Lock()
	c.helpsUsed = res.HelpRequests
	c.mu.Unlock()
}

// takeTyped and takeHelp must be called with c.mu held.
func (c *Controller) takeTyped() *string {
	typed := c.typed
	c.typed = nil
	return typed
}

func (c *Controller) takeHelp() bool {
	help := c.helpRequested
	c.helpRequested = false
	return help
}

func (c *Controller) guidance(ctx context.Context, question, utterance string) string {
	text, err := c.coach.Guidance(ctx, question, utterance)
	if err != nil || strings.TrimSpace(text) == "" {
		c.logger.Warn("coach failed, using static guidance", zap.Error(err))
		text, _ = StaticCoach{}.Guidance(ctx, question, utterance)
	}
	return text
}

func (c *Controller) fault(err error, fatal bool) {
	if fatal {
		c.logger.Error("fatal speech fault", zap.Error(err))
	} else {
		c.logger.Warn("recoverable speech fault", zap.Error(err))
	}
	if c.events.OnFault != nil {
		c.events.OnFault(err, fatal)
	}
}

// speak plays text, retrying synthesis failures before falling back to text.
// Only context errors are returned.
func (c *Controller) speak(ctx context.Context, text string, interruptible bool) error {
	for attempt := 0; ; attempt++ {
		err := c.speaker.Speak(ctx, text, interruptible)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, speech.ErrEmptyUtterance):
			return nil
		}

		c.mu.Lock()
		finalizing := c.finalizing
		c.mu.Unlock()

		if speech.CategoryOf(err) == speech.CategorySynthesisFailure && attempt < c.opts.SynthesisRetries && !finalizing {
			c.logger.Warn("speech synthesis failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		c.logger.Warn("speech synthesis unavailable, showing text instead", zap.Error(err))
		if c.events.OnTextFallback != nil {
			c.events.OnTextFallback(text)
		}
		return nil
	}
}

// Interrupt cuts interruptible speech short and moves the turn on to listening.
// OnInterrupt fires at most once per utterance.
func (c *Controller) Interrupt(reason InterruptReason) bool {
	c.mu.Lock()
	if c.state != Speaking || c.interrupted {
		c.mu.Unlock()
		return false
	}
	c.interrupted = true
	if reason == InterruptHelp {
		c.helpRequested = true
	}
	c.mu.Unlock()

	if !c.speaker.Interrupt() {
		c.mu.Lock()
		c.interrupted = false
		if reason == InterruptHelp {
			c.helpRequested = false
		}
		c.mu.Unlock()
		return false
	}

	c.logger.Info("speech interrupted", zap.Stringer("reason", reason))
	if c.events.OnInterrupt != nil {
		c.events.OnInterrupt(reason)
	}
	return true
}

// RequestHelp asks for guidance on the current question, from either phase of a turn.
// It is refused once the turn's help budget is spent, leaving the capture running.
func (c *Controller) RequestHelp() bool {
	c.mu.Lock()
	st := c.state
	if !c.inTurn || c.helpsUsed >= c.opts.MaxHelpRequests {
		c.mu.Unlock()
		c.logger.Debug("help request refused", zap.Stringer("state", st))
		return false
	}
	if st == Listening {
		c.helpRequested = true
		c.stopPhase()
	}
	c.mu.Unlock()

	switch st {
	case Speaking:
		return c.Interrupt(InterruptHelp)
	case Listening:
		return true
	default:
		return false
	}
}

// SubmitText answers the current question with typed text.
func (c *Controller) SubmitText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inTurn || c.finalizing {
		return false
	}
	c.typed = &text
	c.stopPhase()
	return true
}

// Finalize ends the current turn as soon as possible, keeping whatever was heard.
// It is sticky: later RunTurn calls return ErrFinalized. Say keeps working.
func (c *Controller) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finalizing = true
	c.stopPhase()
}

// Close cancels any activity and releases both devices.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.speaker.Close()
	c.listener.Close()
}
