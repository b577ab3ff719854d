package onboarding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
)

// BusinessInfo is submitted when leaving BUSINESS_INFO.
type BusinessInfo struct {
	Name      string `json:"name" validate:"required,max=200"`
	Industry  string `json:"industry" validate:"required,max=100"`
	Country   string `json:"country" validate:"required,iso3166_1_alpha2"`
	Employees int    `json:"employees" validate:"gte=1"`
}

// Subscription is submitted when leaving SUBSCRIPTION.
type Subscription struct {
	Plan         string `json:"plan" validate:"required,oneof=starter growth enterprise"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly annual"`
}

// Payment is submitted when leaving PAYMENT. Only an opaque reference to a payment
// method held by the billing provider is accepted, never card data.
type Payment struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=255"`
}

// Setup is submitted when leaving SETUP.
type Setup struct {
	Timezone string `json:"timezone" validate:"required,timezone"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

// PayloadValidator checks the form submitted with a step.
type PayloadValidator struct {
	validate *validator.Validate
}

// NewPayloadValidator creates a validator. The underlying validator caches struct
// metadata, so one instance should be shared.
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate decodes raw into the form that belongs to step and validates it. The
// payload for a step is the data that completes it, so it is checked against the step
// being left, not the one being entered.
func (pv *PayloadValidator) Validate(step Step, raw json.RawMessage) error {
	form, ok := formFor(step)
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnknownStep, "[PayloadValidator Validate] %q", step)
	}
	if form == nil {
		if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
			return apperrors.Wrapf(apperrors.ErrInvalidPayload, "[PayloadValidator Validate] malformed JSON")
		}
		return nil
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return apperrors.Wrapf(apperrors.ErrInvalidPayload, "%s payload is required", step)
	}
	if err := json.Unmarshal(raw, form); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidPayload, "[PayloadValidator Validate] %s", err.Error())
	}
	if err := pv.validate.Struct(form); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidPayload, formatValidationErrors(err))
	}
	return nil
}

func formFor(step Step) (any, bool) {
	switch step {
	case StepNotStarted:
		return nil, true
	case StepBusinessInfo:
		return &BusinessInfo{}, true
	case StepSubscription:
		return &Subscription{}, true
	case StepPayment:
		return &Payment{}, true
	case StepSetup:
		return &Setup{}, true
	default:
		return nil, false
	}
}

func formatValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	var messages []string
	for _, fieldError := range validationErrors {
		switch fieldError.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fieldError.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", fieldError.Field(), fieldError.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters long", fieldError.Field(), fieldError.Param()))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", fieldError.Field(), fieldError.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", fieldError.Field()))
		}
	}
	return strings.Join(messages, "; ")
}
