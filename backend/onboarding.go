package backend

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
)

var _ onboarding.Backend = (*OnboardingAPI)(nil)

// OnboardingAPI implements onboarding.Backend over /onboarding. The user is named in the
// X-User-ID header.
type OnboardingAPI struct {
	client *Client
}

func (o *OnboardingAPI) SubmitStep(ctx context.Context, userID string, step onboarding.Step, payload json.RawMessage) error {
	if !step.Valid() {
		return apperrors.Wrapf(apperrors.ErrUnknownStep, "[OnboardingAPI SubmitStep] %q", step)
	}
	return o.client.do(ctx, http.MethodPost, "/onboarding/"+step.Slug(), userID, payload, nil)
}

func (o *OnboardingAPI) AmendStep(ctx context.Context, userID string, step onboarding.Step, payload json.RawMessage) error {
	if !step.Valid() {
		return apperrors.Wrapf(apperrors.ErrUnknownStep, "[OnboardingAPI AmendStep] %q", step)
	}
	return o.client.do(ctx, http.MethodPost, "/onboarding/"+step.Slug()+"/amend", userID, payload, nil)
}

// Status returns the user's state. A user the backend has never seen is NOT_STARTED.
func (o *OnboardingAPI) Status(ctx context.Context, userID string) (onboarding.State, error) {
	var st onboarding.State
	err := o.client.do(ctx, http.MethodGet, "/onboarding/status", userID, nil, &st)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return onboarding.Initial(), nil
	}
	if err != nil {
		return onboarding.State{}, err
	}
	return st, nil
}
