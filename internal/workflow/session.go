package workflow

import (
	"time"

	"github.com/example/photolabel/internal/classifier"
)

// Session is the explicit per-browser workflow state. Handlers receive it
// by reference from the store; there is no ambient global session.
type Session struct {
	ID          string                  `json:"id"`
	State       State                   `json:"state"`
	ImagePath   string                  `json:"image_path,omitempty"`
	ImageName   string                  `json:"image_name,omitempty"`
	Predictions []classifier.Prediction `json:"predictions,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NewSession returns a session in the initial state.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		State:     StateInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session one step through the transition table.
func (s *Session) Advance() error {
	next, err := Next(s.State)
	if err != nil {
		return err
	}
	s.State = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SetState replaces the current state directly. Used for the failure
// paths, which step outside the forward-only table.
func (s *Session) SetState(state State) {
	s.State = state
	s.UpdatedAt = time.Now().UTC()
}

// HasImage reports whether an uploaded image is attached.
func (s *Session) HasImage() bool {
	return s.ImagePath != ""
}
