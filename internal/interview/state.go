package interview

import "fmt"

// State is the fine-grained position of a session.
type State int

const (
	NotStarted State = iota
	AwaitingQuestion
	Speaking
	Listening
	Processing
	Ending
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case AwaitingQuestion:
		return "awaiting_question"
	case Speaking:
		return "speaking"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Ending:
		return "ending"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Phase is the coarse lifecycle stage.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseEnding
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseEnding:
		return "ending"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Phase maps a state to its lifecycle stage.
func (s State) Phase() Phase {
	switch s {
	case NotStarted:
		return PhaseNotStarted
	case Ending:
		return PhaseEnding
	case Completed:
		return PhaseCompleted
	default:
		return PhaseRunning
	}
}

var transitions = map[State][]State{
	NotStarted:       {AwaitingQuestion},
	AwaitingQuestion: {Speaking, Processing, Ending},
	Speaking:         {Listening, Processing, AwaitingQuestion, Ending},
	Listening:        {Speaking, Processing, Ending},
	Processing:       {AwaitingQuestion, Ending},
	Ending:           {Completed},
}

// CanTransition reports whether the session may move from one state to another.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Reason says why an interview ended.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonUserEnded Reason = "user_ended"
	ReasonTimeUp    Reason = "time_up"
	// ReasonFault means a device fault made it impossible to continue.
	ReasonFault Reason = "fault"
)
