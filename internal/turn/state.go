package turn

import "fmt"

// State is the position of the controller inside one turn.
type State int

const (
	Idle State = iota
	Speaking
	Listening
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Listening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the allowed moves. Speaking and Listening are never
// adjacent to themselves and a turn always passes through Idle between
// listening and speaking again.
var transitions = map[State][]State{
	Idle:      {Speaking},
	Speaking:  {Listening, Idle},
	Listening: {Idle},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InterruptReason says why speech was cut short.
type InterruptReason int

const (
	// InterruptUserSpeech means the candidate started talking.
	InterruptUserSpeech InterruptReason = iota
	// InterruptHelp means the candidate asked for help.
	InterruptHelp
)

func (r InterruptReason) String() string {
	switch r {
	case InterruptUserSpeech:
		return "user_speech"
	case InterruptHelp:
		return "help"
	default:
		return "unknown"
	}
}

// InputMethod records how a response was given.
type InputMethod string

const (
	MethodVoice InputMethod = "voice"
	MethodText  InputMethod = "text"
)
