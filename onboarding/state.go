package onboarding

import (
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
)

// State is a user's onboarding progress. Status and CurrentStep always map to each other.
type State struct {
	Status         Status    `json:"status"`
	CurrentStep    Step      `json:"current_step"`
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
}

// NewState builds a consistent state for step.
func NewState(step Step, verifiedAt time.Time) State {
	return State{
		Status:         step.Status(),
		CurrentStep:    step,
		LastVerifiedAt: verifiedAt,
	}
}

// Initial is the state of a user who has not begun onboarding.
func Initial() State {
	return NewState(StepNotStarted, time.Time{})
}

// Validate checks that the step is known and that status and step agree.
func (s State) Validate() error {
	if !s.CurrentStep.Valid() {
		return apperrors.Wrapf(apperrors.ErrUnknownStep, "[State Validate] step %q", s.CurrentStep)
	}
	step, ok := s.Status.Step()
	if !ok || step != s.CurrentStep {
		return apperrors.Wrapf(apperrors.ErrInconsistentState, "[State Validate] status %q with step %q", s.Status, s.CurrentStep)
	}
	return nil
}

// Complete reports whether the wizard is finished.
func (s State) Complete() bool {
	return s.CurrentStep.Terminal()
}

// IsZero reports whether the state carries no step at all.
func (s State) IsZero() bool {
	return s.CurrentStep == "" && s.Status == ""
}
