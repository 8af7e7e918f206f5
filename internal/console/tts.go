package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spigell/hh-interviewer/internal/speech"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const defaultWordsPerMinute = 170

var consoleVoice = speech.Voice{ID: "console", Name: "Console", Language: "en-US", Default: true}

// TTS prints interviewer lines and holds the floor for as long as reading them aloud would take.
type TTS struct {
	term *Terminal
	wpm  int

	mu   sync.Mutex
	fail error
}

// NewTTS paces output at wordsPerMinute. Zero selects a conversational pace;
// a negative value prints instantly.
func NewTTS(term *Terminal, wordsPerMinute int) *TTS {
	if wordsPerMinute == 0 {
		wordsPerMinute = defaultWordsPerMinute
	}
	return &TTS{term: term, wpm: wordsPerMinute}
}

func (t *TTS) Voices(context.Context) ([]speech.Voice, error) {
	return []speech.Voice{consoleVoice}, nil
}

func (t *TTS) Speak(ctx context.Context, u speech.Utterance) error {
	if err := t.takeFailure(); err != nil {
		return err
	}

	t.term.Printf("Interviewer: %s\n", u.Text)

	return utils.WaitFor(ctx, t.duration(u.Text))
}

func (t *TTS) duration(text string) time.Duration {
	if t.wpm < 0 {
		return 0
	}
	return time.Duration(utils.WordCount(text)) * time.Minute / time.Duration(t.wpm)
}

// FailNext makes the next Speak fail.
func (t *TTS) FailNext() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = errors.New("simulated synthesis failure")
}

func (t *TTS) takeFailure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.fail
	t.fail = nil
	return err
}
