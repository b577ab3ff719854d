package onboarding_test

import (
	"encoding/json"
	"testing"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/stretchr/testify/require"
)

func TestSteps_StatusBijection(t *testing.T) {
	seen := make(map[onboarding.Status]bool)
	for _, step := range onboarding.Steps {
		status := step.Status()
		require.NotEmpty(t, status, step)
		require.False(t, seen[status], "status %s used twice", status)
		seen[status] = true

		back, ok := status.Step()
		require.True(t, ok)
		require.Equal(t, step, back)
	}
}

func TestStep_Next(t *testing.T) {
	for i, step := range onboarding.Steps {
		next, ok := step.Next()
		if step.Terminal() {
			require.False(t, ok)
			continue
		}
		require.True(t, ok)
		require.Equal(t, onboarding.Steps[i+1], next)
		require.True(t, step.Before(next))
	}

	_, ok := onboarding.Step("BOGUS").Next()
	require.False(t, ok)
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in   string
		want onboarding.Step
	}{
		{"BUSINESS_INFO", onboarding.StepBusinessInfo},
		{"business-info", onboarding.StepBusinessInfo},
		{" payment ", onboarding.StepPayment},
		{"complete", onboarding.StepComplete},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := onboarding.ParseStep(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := onboarding.ParseStep("billing")
	require.ErrorIs(t, err, apperrors.ErrUnknownStep)
}

func TestState_Validate(t *testing.T) {
	require.NoError(t, onboarding.Initial().Validate())
	require.NoError(t, onboarding.State{Status: onboarding.StatusAwaitingPayment, CurrentStep: onboarding.StepPayment}.Validate())

	err := onboarding.State{Status: onboarding.StatusCompleted, CurrentStep: onboarding.StepPayment}.Validate()
	require.ErrorIs(t, err, apperrors.ErrInconsistentState)

	err = onboarding.State{Status: onboarding.StatusCompleted, CurrentStep: "DONE"}.Validate()
	require.ErrorIs(t, err, apperrors.ErrUnknownStep)
}

func TestPayloadValidator(t *testing.T) {
	pv := onboarding.NewPayloadValidator()

	t.Run("not started needs no payload", func(t *testing.T) {
		require.NoError(t, pv.Validate(onboarding.StepNotStarted, nil))
	})

	t.Run("valid business info", func(t *testing.T) {
		require.NoError(t, pv.Validate(onboarding.StepBusinessInfo, businessInfo(t)))
	})

	t.Run("missing business info", func(t *testing.T) {
		err := pv.Validate(onboarding.StepBusinessInfo, nil)
		require.ErrorIs(t, err, apperrors.ErrInvalidPayload)
	})

	t.Run("unknown plan", func(t *testing.T) {
		raw := json.RawMessage(`{"plan":"platinum","billing_cycle":"monthly"}`)
		err := pv.Validate(onboarding.StepSubscription, raw)
		require.ErrorIs(t, err, apperrors.ErrInvalidPayload)
		require.Contains(t, err.Error(), "Plan must be one of")
	})

	t.Run("bad currency", func(t *testing.T) {
		raw := json.RawMessage(`{"timezone":"UTC","currency":"XYZ"}`)
		err := pv.Validate(onboarding.StepSetup, raw)
		require.ErrorIs(t, err, apperrors.ErrInvalidPayload)
	})

	t.Run("malformed json", func(t *testing.T) {
		err := pv.Validate(onboarding.StepPayment, json.RawMessage(`{"payment_method_id":`))
		require.ErrorIs(t, err, apperrors.ErrInvalidPayload)
	})

	t.Run("complete has no form", func(t *testing.T) {
		err := pv.Validate(onboarding.StepComplete, nil)
		require.ErrorIs(t, err, apperrors.ErrUnknownStep)
	})
}

func businessInfo(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(onboarding.BusinessInfo{
		Name:      "Acme Widgets",
		Industry:  "manufacturing",
		Country:   "GB",
		Employees: 12,
	})
	require.NoError(t, err)
	return raw
}
