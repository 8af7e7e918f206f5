package speech

import (
	"errors"
	"fmt"
)

// Category classifies speech I/O failures by how the engine must react to them.
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryPermissionDenied is terminal: the user has to grant microphone access and retry.
	CategoryPermissionDenied
	// CategoryUnsupported is terminal: the runtime has no speech capability.
	CategoryUnsupported
	// CategoryNetworkUnstable is recoverable with a bounded restart.
	CategoryNetworkUnstable
	// CategoryAborted means capture was stopped on purpose and yields a clean result.
	CategoryAborted
	// CategoryNoSpeech is a valid empty result, not a failure.
	CategoryNoSpeech
	// CategorySynthesisFailure is a genuine text-to-speech failure.
	CategorySynthesisFailure
)

func (c Category) String() string {
	switch c {
	case CategoryPermissionDenied:
		return "permission_denied"
	case CategoryUnsupported:
		return "unsupported"
	case CategoryNetworkUnstable:
		return "network_unstable"
	case CategoryAborted:
		return "aborted"
	case CategoryNoSpeech:
		return "no_speech"
	case CategorySynthesisFailure:
		return "synthesis_failure"
	default:
		return "unknown"
	}
}

// Fatal reports whether the category ends the whole interview.
func (c Category) Fatal() bool {
	return c == CategoryPermissionDenied || c == CategoryUnsupported
}

var (
	ErrPermission       = errors.New("microphone permission denied")
	ErrUnsupported      = errors.New("speech capability is not supported on this device")
	ErrTransientNetwork = errors.New("speech service connection is unstable")
	ErrAborted          = errors.New("speech capture aborted")
	ErrNoSpeech         = errors.New("no speech detected")
	ErrSynthesis        = errors.New("speech synthesis failed")

	ErrEmptyUtterance = errors.New("utterance is empty after normalization")
	ErrClosed         = errors.New("speech device is released")
)

var sentinels = map[Category]error{
	CategoryPermissionDenied: ErrPermission,
	CategoryUnsupported:      ErrUnsupported,
	CategoryNetworkUnstable:  ErrTransientNetwork,
	CategoryAborted:          ErrAborted,
	CategoryNoSpeech:         ErrNoSpeech,
	CategorySynthesisFailure: ErrSynthesis,
}

// Error is a categorized speech failure. It matches both the category
// sentinel and the underlying cause with errors.Is.
type Error struct {
	Category Category
	Op       string
	Err      error
}

// NewError wraps err with a category. An err that is already categorized is returned as is.
func NewError(category Category, op string, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Category: category, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech %s: %s", e.Op, e.Category)
	}
	return fmt.Sprintf("speech %s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := sentinels[e.Category]; ok && sentinel != e.Err {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CategoryOf extracts the category from err. Plain sentinel errors are
// recognised too, so adapters may return them directly.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Category
	}

	for category, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return category
		}
	}

	return CategoryUnknown
}

// IsFatal reports whether err must end the interview.
func IsFatal(err error) bool {
	return err != nil && CategoryOf(err).Fatal()
}
