// Package onboarding tracks a tenant owner's progress through the setup wizard. Steps
// only move forward, one at a time, and only after the backend has durably recorded
// the new step.
package onboarding

import (
	"strings"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
)

// Step is one stage of the setup wizard.
type Step string

const (
	StepNotStarted   Step = "NOT_STARTED"
	StepBusinessInfo Step = "BUSINESS_INFO"
	StepSubscription Step = "SUBSCRIPTION"
	StepPayment      Step = "PAYMENT"
	StepSetup        Step = "SETUP"
	StepComplete     Step = "COMPLETE"
)

// Status is the coarse progress label stored next to the step.
type Status string

const (
	StatusNotStarted           Status = "not_started"
	StatusCollectingBusiness   Status = "collecting_business_info"
	StatusChoosingPlan         Status = "choosing_subscription"
	StatusAwaitingPayment      Status = "awaiting_payment"
	StatusConfiguringWorkspace Status = "configuring_workspace"
	StatusCompleted            Status = "completed"
)

// Steps is the fixed wizard order.
var Steps = []Step{
	StepNotStarted,
	StepBusinessInfo,
	StepSubscription,
	StepPayment,
	StepSetup,
	StepComplete,
}

var stepStatus = map[Step]Status{
	StepNotStarted:   StatusNotStarted,
	StepBusinessInfo: StatusCollectingBusiness,
	StepSubscription: StatusChoosingPlan,
	StepPayment:      StatusAwaitingPayment,
	StepSetup:        StatusConfiguringWorkspace,
	StepComplete:     StatusCompleted,
}

var statusStep = func() map[Status]Step {
	m := make(map[Status]Step, len(stepStatus))
	for step, status := range stepStatus {
		m[status] = step
	}
	return m
}()

var stepSlugs = map[Step]string{
	StepNotStarted:   "not-started",
	StepBusinessInfo: "business-info",
	StepSubscription: "subscription",
	StepPayment:      "payment",
	StepSetup:        "setup",
	StepComplete:     "complete",
}

// ParseStep accepts either the canonical name ("BUSINESS_INFO") or the URL slug ("business-info").
func ParseStep(s string) (Step, error) {
	candidate := Step(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if _, ok := stepStatus[candidate]; !ok {
		return "", apperrors.Wrapf(apperrors.ErrUnknownStep, "[ParseStep] %q", s)
	}
	return candidate, nil
}

// Valid reports whether s is one of the wizard steps.
func (s Step) Valid() bool {
	_, ok := stepStatus[s]
	return ok
}

// Index is the position of s in the wizard order, or -1.
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the immediate successor of s. COMPLETE has none.
func (s Step) Next() (Step, bool) {
	i := s.Index()
	if i < 0 || i == len(Steps)-1 {
		return "", false
	}
	return Steps[i+1], true
}

// Terminal reports whether s is COMPLETE.
func (s Step) Terminal() bool {
	return s == StepComplete
}

// Before reports whether s comes strictly before other in the wizard order.
func (s Step) Before(other Step) bool {
	return s.Index() < other.Index()
}

// Status returns the status paired with s.
func (s Step) Status() Status {
	return stepStatus[s]
}

// Slug is the URL form of the step.
func (s Step) Slug() string {
	return stepSlugs[s]
}

// Step returns the step paired with the status.
func (s Status) Step() (Step, bool) {
	step, ok := statusStep[s]
	return step, ok
}
