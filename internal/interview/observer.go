package interview

import (
	"time"

	"github.com/spigell/hh-interviewer/internal/turn"
)

// Observer receives session events. Tick runs on the clock goroutine, all
// other methods on the session goroutine, so implementations must be safe for
// concurrent use.
type Observer interface {
	StateChanged(from, to State)
	Partial(text string)
	Interrupted(reason turn.InterruptReason)
	Help(utterance, guidance string)
	TextFallback(text string)
	Fault(err error, fatal bool)
	Tick(remaining time.Duration)
	TurnRecorded(t Turn)
	Completed(o *Outcome)
}

// NopObserver ignores everything. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) StateChanged(State, State) {}
func (NopObserver) Partial(string) {}
func (NopObserver) Interrupted(turn.InterruptReason) {}
func (NopObserver) Help(string, string) {}
func (NopObserver) TextFallback(string) {}
func (NopObserver) Fault(error, bool) {}
func (NopObserver) Tick(time.Duration) {}
func (NopObserver) TurnRecorded(Turn) {}
func (NopObserver) Completed(*Outcome) {}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) StateChanged(from, to State) {
	for _, obs := range o {
		obs.StateChanged(from, to)
	}
}

func (o Observers) Partial(text string) {
	for _, obs := range o {
		obs.Partial(text)
	}
}

func (o Observers) Interrupted(reason turn.InterruptReason) {
	for _, obs := range o {
		obs.Interrupted(reason)
	}
}

func (o Observers) Help(utterance, guidance string) {
	for _, obs := range o {
		obs.Help(utterance, guidance)
	}
}

func (o Observers) TextFallback(text string) {
	for _, obs := range o {
		obs.TextFallback(text)
	}
}

func (o Observers) Fault(err error, fatal bool) {
	for _, obs := range o {
		obs.Fault(err, fatal)
	}
}

func (o Observers) Tick(remaining time.Duration) {
	for _, obs := range o {
		obs.Tick(remaining)
	}
}

func (o Observers) TurnRecorded(t Turn) {
	for _, obs := range o {
		obs.TurnRecorded(t)
	}
}

func (o Observers) Completed(out *Outcome) {
	for _, obs := range o {
		obs.Completed(out)
	}
}
