package build

import "fmt"

// State is a phase of the orchestrator.
type State string

const (
	StateIdle         State = "idle"
	StateResolving    State = "resolving"
	StateTransforming State = "transforming"
	StateSplitting    State = "splitting"
	StateEmitting     State = "emitting"
	StateDone         State = "done"
	StateError        State = "error"
	StateWatching     State = "watching"
)

var transitions = map[State][]State{
	StateIdle:         {StateResolving, StateWatching},
	StateResolving:    {StateTransforming, StateError},
	StateTransforming: {StateSplitting, StateError},
	StateSplitting:    {StateEmitting, StateError},
	StateEmitting:     {StateDone, StateError},
	StateDone:         {StateWatching, StateResolving},
	StateWatching:     {StateResolving},
	StateError:        {StateWatching, StateResolving},
}

// Terminal reports whether a build ends in s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// CanTransition reports whether the orchestrator may move from s to next.
// Error is reachable from every non-terminal state.
func (s State) CanTransition(next State) bool {
	if next == StateError && !s.Terminal() {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError reports a state change the machine does not allow.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid build state transition %s -> %s", e.From, e.To)
}
