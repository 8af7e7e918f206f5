package speech

import (
	"context"
)

// Voice describes a synthesizer voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	Default  bool
}

// Utterance is a normalized text handed to the synthesizer.
type Utterance struct {
	Text  string
	Voice Voice
}

// TextToSpeech is the platform synthesizer.
type TextToSpeech interface {
	// Voices returns the voices known so far. Some platforms load the list
	// lazily and return an empty slice on the first call.
	Voices(ctx context.Context) ([]Voice, error)
	// Speak blocks until playback ends. Cancelling ctx must stop playback.
	Speak(ctx context.Context, u Utterance) error
}

// EventKind is the type of a recognition event.
type EventKind int

const (
	EventPartial EventKind = iota
	EventFinal
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a running recognition.
type Event struct {
	Kind       EventKind
	Text       string
	Confidence float64
	Err        error
}

// Recognition is one live capture session.
type Recognition interface {
	Events() <-chan Event
	// Stop ends capture and releases the microphone. It may be called more than once.
	Stop() error
}

// SpeechToText is the platform recognizer.
type SpeechToText interface {
	Start(ctx context.Context) (Recognition, error)
}
