package workflow

import "fmt"

// State identifies a phase of the classification workflow. Exactly one
// state is active per session at any time.
type State string

const (
	// StateInitial is the state of a freshly created session, before the
	// model has started loading.
	StateInitial State = "initial"
	// StateLoadingModel means the external classifier is being loaded.
	StateLoadingModel State = "loading_model"
	// StateAwaitingUpload means the model is ready and no image is held.
	StateAwaitingUpload State = "awaiting_upload"
	// StateReady means an image has been uploaded and can be classified.
	StateReady State = "ready"
	// StateClassifying means the external classifier is running on the
	// uploaded image.
	StateClassifying State = "classifying"
	// StateComplete means predictions are available for display.
	StateComplete State = "complete"
)

// ErrUnknownState reports an Advance call on a state outside the table.
// The table is total over the declared states, so hitting this is a
// programming error rather than a user-triggerable condition.
type ErrUnknownState struct {
	State State
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("workflow: unknown state %q", string(e.State))
}

// transitions is the fixed table driving the workflow. The graph is a
// simple cycle: the session walks Initial through Complete once, then
// oscillates between AwaitingUpload and Complete via Ready/Classifying.
var transitions = map[State]State{
	StateInitial:        StateLoadingModel,
	StateLoadingModel:   StateAwaitingUpload,
	StateAwaitingUpload: StateReady,
	StateReady:          StateClassifying,
	StateClassifying:    StateComplete,
	StateComplete:       StateAwaitingUpload,
}

// Next returns the table-defined successor of s.
func Next(s State) (State, error) {
	next, ok := transitions[s]
	if !ok {
		return StateInitial, &ErrUnknownState{State: s}
	}
	return next, nil
}

// Valid reports whether s is one of the declared workflow states.
func Valid(s State) bool {
	_, ok := transitions[s]
	return ok
}

// ShowImage reports whether the uploaded image should be rendered in s.
func ShowImage(s State) bool {
	return s == StateReady || s == StateComplete
}

// ShowResults reports whether the prediction list should be rendered in s.
func ShowResults(s State) bool {
	return s == StateComplete
}

// ActionLabel returns the label of the single workflow button for s. The
// button is the only affordance besides the file input, so its label
// doubles as the state indicator.
func ActionLabel(s State) string {
	switch s {
	case StateInitial:
		return "Start"
	case StateLoadingModel:
		return "Loading model..."
	case StateAwaitingUpload:
		return "Upload a photo"
	case StateReady:
		return "Identify"
	case StateClassifying:
		return "Identifying..."
	case StateComplete:
		return "Reset"
	default:
		return "Start"
	}
}
