package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/utils"
)

const defaultVoiceRetryDelay = 300 * time.Millisecond

// OutputOptions configures voice selection and text normalization.
type OutputOptions struct {
	// Voice is a preferred voice id or name. Empty picks by language or the platform default.
	Voice string
	// Language is a BCP-47 prefix such as "en" used when Voice is not found.
	Language string
	// VoiceRetryDelay is the pause before the single retry of a not yet loaded voice list.
	VoiceRetryDelay time.Duration
	// Acronyms overrides DefaultAcronyms.
	Acronyms map[string]string
}

// OutputEvents are notified around playback. Both callbacks are optional.
type OutputEvents struct {
	OnStarted func(text string)
	OnEnded   func(text string, interrupted bool)
}

type utterance struct {
	cancel        context.CancelFunc
	interruptible bool
	cancelled     bool
}

// Output owns the audio output device for one interview attempt.
type Output struct {
	tts        TextToSpeech
	opts       OutputOptions
	events     OutputEvents
	normalizer *Normalizer
	logger     *zap.Logger

	voiceMu    sync.Mutex
	voiceReady bool
	voice      Voice

	mu      sync.Mutex
	current *utterance
	closed  bool
}

// NewOutput wraps a synthesizer.
func NewOutput(tts TextToSpeech, opts OutputOptions, events OutputEvents, logger *zap.Logger) *Output {
	if opts.VoiceRetryDelay <= 0 {
		opts.VoiceRetryDelay = defaultVoiceRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Output{
		tts:        tts,
		opts:       opts,
		events:     events,
		normalizer: NewNormalizer(opts.Acronyms),
		logger:     logger,
	}
}

// Speak plays text and blocks until playback ends or is cancelled.
// Cancellation through Cancel or Interrupt is reported as success. A failing
// synthesizer yields an error of CategorySynthesisFailure.
func (o *Output) Speak(ctx context.Context, text string, interruptible bool) error {
	normalized := o.normalizer.Normalize(text)
	if normalized == "" {
		return ErrEmptyUtterance
	}

	voice := o.selectVoice(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	u := &utterance{cancel: cancel, interruptible: interruptible}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if prev := o.current; prev != nil {
		// one output device: a new utterance replaces the old one
		prev.cancelled = true
		prev.cancel()
	}
	o.current = u
	o.mu.Unlock()

	if o.events.OnStarted != nil {
		o.events.OnStarted(normalized)
	}

	err := o.tts.Speak(speakCtx, Utterance{Text: normalized, Voice: voice})

	o.mu.Lock()
	cancelled := u.cancelled
	if o.current == u {
		o.current = nil
	}
	o.mu.Unlock()

	if o.events.OnEnded != nil {
		o.events.OnEnded(normalized, cancelled)
	}

	switch {
	case cancelled:
		o.logger.Debug("speech cancelled", zap.String("text", utils.TruncateForLog(normalized, 60)))
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return NewError(CategorySynthesisFailure, "speak", err)
	}

	return nil
}

// Interrupt cancels the current utterance if it was marked interruptible.
func (o *Output) Interrupt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || !o.current.interruptible || o.current.cancelled {
		return false
	}

	o.current.cancelled = true
	o.current.cancel()
	return true
}

// Cancel stops playback immediately regardless of interruptibility.
func (o *Output) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return
	}
	o.current.cancelled = true
	o.current.cancel()
}

// Speaking reports whether an utterance is playing.
func (o *Output) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// Close cancels playback and releases the device. Later Speak calls fail with ErrClosed.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		o.current.cancelled = true
		o.current.cancel()
	}
	o.closed = true
}

// selectVoice resolves the voice once per Output. The platform may not have
// loaded its list yet, so an empty list is retried once after a short delay
// before settling on the default voice.
func (o *Output) selectVoice(ctx context.Context) Voice {
	o.voiceMu.Lock()
	defer o.voiceMu.Unlock()

	if o.voiceReady {
		return o.voice
	}

	voices, err := o.tts.Voices(ctx)
	if err != nil || len(voices) == 0 {
		o.logger.Debug("voice list not loaded, retrying once",
			zap.Duration("delay", o.opts.VoiceRetryDelay),
			zap.Error(err),
		)
		if waitErr := utils.WaitFor(ctx, o.opts.VoiceRetryDelay); waitErr != nil {
			return Voice{}
		}
		voices, err = o.tts.Voices(ctx)
	}

	if err != nil || len(voices) == 0 {
		o.logger.Warn("no voices available, using platform default voice", zap.Error(err))
	}

	o.voice = pickVoice(voices, o.opts.Voice, o.opts.Language)
	o.voiceReady = true

	o.logger.Debug("voice selected",
		zap.String("voice_id", o.voice.ID),
		zap.String("voice_name", o.voice.Name),
	)

	return o.voice
}

func pickVoice(voices []Voice, preferred, language string) Voice {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, v := range voices {
			if strings.EqualFold(v.ID, preferred) || strings.EqualFold(v.Name, preferred) {
				return v
			}
		}
	}

	language = strings.ToLower(strings.TrimSpace(language))
	if language != "" {
		for _, v := range voices {
			if strings.HasPrefix(strings.ToLower(v.Language), language) {
				return v
			}
		}
	}

	for _, v := range voices {
		if v.Default {
			return v
		}
	}

	if len(voices) > 0 {
		return voices[0]
	}

	return Voice{}
}
