package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/turn"
)

var (
	ErrNoQuestions    = errors.New("interview has no questions")
	ErrInvalidBudget  = errors.New("interview time budget must be positive")
	ErrAlreadyStarted = errors.New("interview already started")
	ErrNotStarted     = errors.New("interview not started")
)

const (
	defaultScoringTimeout = 60 * time.Second
	defaultPersistTimeout = 10 * time.Second
)

// TurnRunner runs the individual turns. *turn.Controller satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, prompt string) (turn.Result, error)
	Say(ctx context.Context, text string, interruptible bool) error
	Interrupt(reason turn.InterruptReason) bool
	RequestHelp() bool
	SubmitText(text string) bool
	Finalize()
	Close()
}

// ResultSink stores a finished interview.
type ResultSink interface {
	Persist(ctx context.Context, outcome *Outcome) error
}

// Config describes one interview attempt.
type Config struct {
	Questions      []Question
	TimeBudget     time.Duration
	TickInterval   time.Duration
	ScoringTimeout time.Duration
	PersistTimeout time.Duration
	Job            ai.JobContext
	Script         Script
}

// Deps are the collaborators of a session. Turns is required: it receives the
// session's turn events and returns the runner that owns the speech devices.
type Deps struct {
	Turns    func(events turn.Events) TurnRunner
	Scorer   ai.Scorer
	Fallback ai.Scorer
	Sink     ResultSink
	Observer Observer
	Logger   *zap.Logger
	NewID    func() string
}

// Outcome is everything produced by a completed session.
type Outcome struct {
	SessionID    string        `json:"session_id"`
	Job          ai.JobContext `json:"job"`
	Reason       Reason        `json:"reason"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Stats        ai.Metrics    `json:"stats"`
	Feedback     *ai.Feedback  `json:"feedback"`
	ScoringError string        `json:"scoring_error,omitempty"`
	Fault        string        `json:"fault,omitempty"`
	Transcript   Snapshot      `json:"transcript"`
}

// Session drives one interview attempt from welcome to feedback.
type Session struct {
	id         string
	cfg        Config
	turns      TurnRunner
	scorer     ai.Scorer
	fallback   ai.Scorer
	sink       ResultSink
	observer   Observer
	logger     *zap.Logger
	clock      *Clock
	transcript *Transcript
	done       chan struct{}

	mu        sync.Mutex
	state     State
	earlyEnd  bool
	timeUp    bool
	cancelled bool
	fault     error
	startedAt time.Time
	outcome   *Outcome
}

// New builds a session. Nothing happens until Start.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Turns == nil {
		return nil, errors.New("turn runner factory is required")
	}

	id := ""
	if deps.NewID != nil {
		id = deps.NewID()
	}
	if id == "" {
		id = uuid.NewString()
	}

	if cfg.ScoringTimeout <= 0 {
		cfg.ScoringTimeout = defaultScoringTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	cfg.Questions = append([]Question(nil), cfg.Questions...)

	s := &Session{
		id:         id,
		cfg:        cfg,
		scorer:     deps.Scorer,
		fallback:   deps.Fallback,
		sink:       deps.Sink,
		observer:   deps.Observer,
		logger:     logger.ForSession(logger.Named(deps.Logger, "interview"), id, cfg.Job.Title),
		transcript: NewTranscript(),
		done:       make(chan struct{}),
		state:      NotStarted,
	}
	if s.fallback == nil {
		s.fallback = ai.NewRuleBased(ai.DefaultFallbackPolicy())
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}

	s.clock = NewClock(cfg.TimeBudget, cfg.TickInterval, s.observer.Tick, s.onExpire)
	s.turns = deps.Turns(turn.Events{
		OnStateChange:  s.followTurn,
		OnPartial:      s.observer.Partial,
		OnInterrupt:    s.observer.Interrupted,
		OnTextFallback: s.observer.TextFallback,
		OnHelp:         s.observer.Help,
		OnFault:        s.observer.Fault,
	})
	if s.turns == nil {
		return nil, errors.New("turn runner factory returned nil")
	}

	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the time left in the budget.
func (s *Session) Remaining() time.Duration {
	return s.clock.Remaining()
}

// Turns returns the turns recorded so far.
func (s *Session) Turns() []Turn {
	return s.transcript.Turns()
}

// Outcome is nil until the session completed.
func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// transition is the single path for state changes.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	from, err := s.moveLocked(to)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(from, to)
	return nil
}

func (s *Session) moveLocked(to State) (State, error) {
	from := s.state
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid interview transition %s -> %s", from, to)
	}
	s.state = to
	return from, nil
}

func (s *Session) notify(from, to State) {
	s.logger.Debug("interview state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	s.observer.StateChanged(from, to)
}

// followTurn mirrors the turn controller's speaking and listening while the session runs.
func (s *Session) followTurn(_, to turn.State) {
	var target State
	switch to {
	case turn.Speaking:
		target = Speaking
	case turn.Listening:
		target = Listening
	default:
		return
	}

	s.mu.Lock()
	if s.state.Phase() != PhaseRunning || !CanTransition(s.state, target) {
		s.mu.Unlock()
		return
	}
	from, _ := s.moveLocked(target)
	s.mu.Unlock()

	s.notify(from, target)
}

// Start validates the configuration, starts the clock and runs the interview in the background.
func (s *Session) Start(ctx context.Context) error {
	if len(s.cfg.Questions) == 0 {
		return ErrNoQuestions
	}
	if s.cfg.TimeBudget <= 0 {
		return ErrInvalidBudget
	}

	s.mu.Lock()
	if s.state != NotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	from, err := s.moveLocked(AwaitingQuestion)
	s.startedAt = time.Now()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(from, AwaitingQuestion)

	s.logger.Info("interview started",
		zap.Int("questions", len(s.cfg.Questions)),
		zap.Duration("budget", s.cfg.TimeBudget),
	)

	s.clock.Start()
	go s.loop(ctx)
	return nil
}

// Wait blocks until the session completed and returns its outcome.
func (s *Session) Wait(ctx context.Context) (*Outcome, error) {
	if s.State() == NotStarted {
		return nil, ErrNotStarted
	}

	select {
	case <-s.done:
		return s.Outcome(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the session and waits for it. Cancelling ctx ends the interview
// early; Run still returns the outcome once scoring finished.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	<-s.done
	return s.Outcome(), nil
}

// RequestEarlyEnd ends the interview after the current turn.
func (s *Session) RequestEarlyEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase() != PhaseRunning {
		return false
	}
	if !s.earlyEnd {
		s.logger.Info("early end requested")
	}
	s.earlyEnd = true
	return true
}

// Interrupt cuts the interviewer short because the candidate started talking.
func (s *Session) Interrupt() bool {
	if !s.running() {
		return false
	}
	return s.turns.Interrupt(turn.InterruptUserSpeech)
}

// RequestHelp asks for a hint on the current question.
func (s *Session) RequestHelp() bool {
	if !s.running() {
		return false
	}
	return s.turns.RequestHelp()
}

// SubmitText answers the current question with typed text.
func (s *Session) SubmitText(text string) bool {
	if !s.running() {
		return false
	}
	return s.turns.SubmitText(text)
}

func (s *Session) running() bool {
	return s.State().Phase() == PhaseRunning
}

func (s *Session) onExpire() {
	s.mu.Lock()
	if s.state.Phase() != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.timeUp = true
	s.mu.Unlock()

	s.logger.Info("time budget exhausted, finalizing current turn")
	s.turns.Finalize()
}

func (s *Session) shouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeUp || s.earlyEnd || s.fault != nil || s.cancelled
}

// reason applies the precedence time_up > fault > user_ended > completed.
func (s *Session) reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.timeUp:
		return ReasonTimeUp
	case s.fault != nil:
		return ReasonFault
	case s.earlyEnd || s.cancelled:
		return ReasonUserEnded
	default:
		return ReasonCompleted
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	s.say(ctx, s.cfg.Script.welcome(s.cfg.Job.Title, len(s.cfg.Questions), s.cfg.TimeBudget), true)
	if s.State() == Speaking {
		_ = s.transition(AwaitingQuestion)
	}

	for i, q := range s.cfg.Questions {
		if s.shouldStop() {
			break
		}
		if ctx.Err() != nil {
			s.markCancelled()
			break
		}

		s.logger.Debug("asking question", zap.Int("index", i))
		res, err := s.turns.RunTurn(ctx, q.Text)

		var fault *turn.Fault
		cancelled := false
		switch {
		case err == nil:
		case errors.Is(err, turn.ErrFinalized):
			// time ran out before the question was asked
		case errors.As(err, &fault):
			s.mu.Lock()
			s.fault = err
			s.mu.Unlock()
			s.logger.Error("fatal fault, ending interview", zap.Error(err))
		case ctx.Err() != nil:
			// the candidate left mid-answer: keep what was heard
			s.markCancelled()
			cancelled = true
			err = nil
		default:
			s.mu.Lock()
			s.fault = err
			s.mu.Unlock()
			s.logger.Error("turn failed", zap.Error(err))
		}

		if err != nil && fault == nil {
			break
		}

		_ = s.transition(Processing)
		s.record(i, q, res, err)

		if fault != nil || cancelled {
			break
		}
		_ = s.transition(AwaitingQuestion)
	}

	s.finish(ctx)
}

func (s *Session) markCancelled() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.logger.Info("interview cancelled")
}

func (s *Session) record(index int, q Question, res turn.Result, fault error) {
	method := res.Method
	if method == "" {
		method = turn.MethodVoice
	}

	t := Turn{
		Index:     index,
		Question:  q.Text,
		Type:      q.Type,
		Response:  strings.TrimSpace(res.Text),
		Timestamp: time.Now(),
		Method:    method,
		Latency:   res.Latency,
		Duration:  res.Duration,
		Analytics: Analytics{
			Confidence:   estimateConfidence(res),
			WordCount:    len(strings.Fields(res.Text)),
			HelpRequests: res.HelpRequests,
			Reprompts:    res.Reprompts,
			Interrupted:  res.Interrupted,
		},
	}
	switch {
	case fault != nil:
		t.Fault = fault.Error()
	case res.Fault != nil:
		t.Fault = res.Fault.Error()
	}

	if err := s.transcript.Append(t); err != nil {
		s.logger.Error("failed to record turn", zap.Int("index", index), zap.Error(err))
		return
	}

	s.logger.Info("turn recorded",
		zap.Int("index", index),
		zap.Int("words", t.Analytics.WordCount),
		zap.String("method", string(t.Method)),
		zap.Duration("latency", t.Latency),
		zap.Bool("finalized", res.Finalized),
	)
	s.observer.TurnRecorded(t)
}

func (s *Session) say(ctx context.Context, text string, interruptible bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if ctx.Err() == nil {
		if err := s.turns.Say(ctx, text, interruptible); err != nil {
			s.logger.Debug("system message not spoken", zap.Error(err))
		}
	}
	if err := s.transcript.AddSystem(text, time.Now()); err != nil {
		s.logger.Warn("failed to record system message", zap.Error(err))
	}
}

func (s *Session) finish(ctx context.Context) {
	s.clock.Stop()
	reason := s.reason()

	if reason == ReasonTimeUp {
		s.say(ctx, s.cfg.Script.timeUp(), false)
	}

	if err := s.transition(Ending); err != nil {
		s.logger.Error("failed to enter ending state", zap.Error(err))
	}
	s.say(ctx, s.cfg.Script.goodbye(reason), false)

	snapshot := s.transcript.Freeze()
	endedAt := time.Now()

	if err := s.transition(Completed); err != nil {
		s.logger.Error("failed to complete interview", zap.Error(err))
	}
	s.turns.Close()

	s.mu.Lock()
	startedAt := s.startedAt
	fault := s.fault
	s.mu.Unlock()

	outcome := &Outcome{
		SessionID:  s.id,
		Job:        s.cfg.Job,
		Reason:     reason,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Stats:      computeStats(snapshot.Turns(), len(s.cfg.Questions), endedAt.Sub(startedAt)),
		Transcript: snapshot,
	}
	if fault != nil {
		outcome.Fault = fault.Error()
	}

	s.logger.Info("interview completed",
		zap.String("reason", string(reason)),
		zap.Int("completed", outcome.Stats.QuestionsCompleted),
		zap.Int("answered", outcome.Stats.QuestionsAnswered),
		zap.Int("total", outcome.Stats.TotalQuestions),
	)

	s.score(ctx, outcome)
	s.persist(ctx, outcome)

	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()

	s.observer.Completed(outcome)
}

// score calls the scorer once and falls back to the rule-based result on any failure.
func (s *Session) score(ctx context.Context, outcome *Outcome) {
	req := ai.ScoreRequest{
		SessionID: s.id,
		Messages:  scoringMessages(outcome.Transcript),
		Job:       s.cfg.Job,
		Metrics:   outcome.Stats,
	}

	scoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ScoringTimeout)
	defer cancel()

	var err error
	if s.scorer == nil {
		err = errors.New("no scorer configured")
	} else {
		var feedback *ai.Feedback
		feedback, err = s.scorer.Score(scoreCtx, req)
		if err == nil && feedback == nil {
			err = errors.New("scorer returned no feedback")
		}
		if err == nil {
			outcome.Feedback = feedback
			return
		}
	}

	s.logger.Warn("scoring failed, using rule-based feedback", zap.Error(err))
	outcome.ScoringError = err.Error()

	feedback, fbErr := s.fallback.Score(scoreCtx, req)
	if fbErr != nil {
		s.logger.Error("fallback scoring failed", zap.Error(fbErr))
		return
	}
	outcome.Feedback = feedback
}

func (s *Session) persist(ctx context.Context, outcome *Outcome) {
	if s.sink == nil {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()

	if err := s.sink.Persist(persistCtx, outcome); err != nil {
		s.logger.Error("failed to persist interview result", zap.Error(err))
		return
	}
	s.logger.Debug("interview result persisted")
}
