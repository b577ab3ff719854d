package onboarding

import (
	"context"
	"encoding/json"
)

// Backend is the onboarding API of the business backend. Writes and reads may be
// served by different, eventually consistent paths.
type Backend interface {
	// SubmitStep records that the user has moved to step (POST /onboarding/{step}).
	// It is idempotent per step and payload.
	SubmitStep(ctx context.Context, userID string, step Step, payload json.RawMessage) error

	// AmendStep stores edited data for an earlier step without moving the user.
	AmendStep(ctx context.Context, userID string, step Step, payload json.RawMessage) error

	// Status reads the user's current state (GET /onboarding/status).
	Status(ctx context.Context, userID string) (State, error)
}
