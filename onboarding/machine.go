package onboarding

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/recovery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 3 * time.Second

// StateMachine owns each user's verified onboarding state. A transition is written to
// the backend, then confirmed by polling the read path; only a confirmed step is
// recorded locally. At most one write per user is outstanding at any time.
type StateMachine struct {
	backend        Backend
	payloads       *PayloadValidator
	backoff        recovery.Backoff
	requestTimeout time.Duration
	nowTime        func() time.Time
	logger         zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	states   map[string]State
}

// StateMachineOption configures a StateMachine.
type StateMachineOption func(*StateMachine)

// WithBackoff sets the verification polling schedule.
func WithBackoff(b recovery.Backoff) StateMachineOption {
	return func(sm *StateMachine) {
		sm.backoff = b
	}
}

// WithRequestTimeout bounds every individual backend call.
func WithRequestTimeout(d time.Duration) StateMachineOption {
	return func(sm *StateMachine) {
		if d > 0 {
			sm.requestTimeout = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StateMachineOption {
	return func(sm *StateMachine) {
		sm.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StateMachineOption {
	return func(sm *StateMachine) {
		sm.logger = logger
	}
}

// WithPayloadValidator shares a payload validator.
func WithPayloadValidator(pv *PayloadValidator) StateMachineOption {
	return func(sm *StateMachine) {
		sm.payloads = pv
	}
}

// NewStateMachine creates a state machine backed by backend.
func NewStateMachine(backend Backend, options ...StateMachineOption) (*StateMachine, error) {
	if backend == nil {
		return nil, errors.New("[NewStateMachine] backend is required")
	}
	sm := &StateMachine{
		backend:        backend,
		backoff:        recovery.DefaultBackoff(),
		requestTimeout: defaultRequestTimeout,
		nowTime:        time.Now,
		logger:         log.Logger,
		inFlight:       make(map[string]struct{}),
		states:         make(map[string]State),
	}
	for _, opt := range options {
		opt(sm)
	}
	if sm.payloads == nil {
		sm.payloads = NewPayloadValidator()
	}
	return sm, nil
}

// Transition moves userID from `from` to its immediate successor `to`.
//
// Out-of-order requests are rejected before the backend is contacted. A call made while
// another transition for the same user is outstanding fails with ErrTransitionInFlight
// and issues no write. If the backend never shows the new step within the polling
// budget the transition fails with ErrVerificationFailed and the local state is left on
// `from`. On any error the returned State is the last verified state.
func (sm *StateMachine) Transition(ctx context.Context, userID string, from, to Step, payload json.RawMessage) (State, error) {
	if userID == "" {
		return State{}, errors.Wrap(apperrors.ErrUnauthenticated, "[StateMachine Transition] user id is required")
	}
	if !from.Valid() || !to.Valid() {
		return State{}, apperrors.Wrapf(apperrors.ErrUnknownStep, "[StateMachine Transition] %q -> %q", from, to)
	}
	if next, ok := from.Next(); !ok || next != to {
		sm.logger.Warn().Str("user_id", userID).Str("from", string(from)).Str("to", string(to)).Msg("rejected out-of-order onboarding transition")
		return State{}, apperrors.Wrapf(apperrors.ErrInvalidTransition, "[StateMachine Transition] %s -> %s", from, to)
	}
	if err := sm.payloads.Validate(from, payload); err != nil {
		return State{}, err
	}

	prior, known, ok := sm.acquire(userID)
	if !ok {
		sm.logger.Debug().Str("user_id", userID).Str("to", string(to)).Msg("onboarding transition already in flight")
		return prior, apperrors.ErrTransitionInFlight
	}
	defer sm.release(userID)

	if known && prior.CurrentStep != from {
		if prior.CurrentStep == to {
			// A repeated submit of a transition that has already been verified.
			return prior, nil
		}
		sm.logger.Warn().Str("user_id", userID).Str("from", string(from)).Str("verified", string(prior.CurrentStep)).Msg("onboarding transition from a stale step")
		return prior, apperrors.Wrapf(apperrors.ErrStepMismatch, "[StateMachine Transition] verified step is %s, not %s", prior.CurrentStep, from)
	}

	if err := sm.submit(ctx, userID, to, payload); err != nil {
		return prior, err
	}

	polled, err := sm.verify(ctx, userID, to)
	if err != nil {
		sm.logger.Warn().Err(err).Str("user_id", userID).Str("to", string(to)).Msg("onboarding transition not confirmed, staying on prior step")
		return prior, err
	}

	verified := NewState(to, sm.nowTime())
	if polled.CurrentStep.Index() > to.Index() {
		// The backend is already past the requested step; record what it confirmed.
		verified = NewState(polled.CurrentStep, sm.nowTime())
	}
	sm.mu.Lock()
	sm.states[userID] = verified
	sm.mu.Unlock()

	sm.logger.Info().Str("user_id", userID).Str("from", string(from)).Str("to", string(to)).Str("verified", string(verified.CurrentStep)).Msg("onboarding transition verified")
	return verified, nil
}

// Amend stores edits for a step the user has already passed without moving currentStep.
// It shares the in-flight lock with Transition.
func (sm *StateMachine) Amend(ctx context.Context, userID string, step Step, payload json.RawMessage) error {
	if userID == "" {
		return errors.Wrap(apperrors.ErrUnauthenticated, "[StateMachine Amend] user id is required")
	}
	if !step.Valid() || step.Terminal() {
		return apperrors.Wrapf(apperrors.ErrUnknownStep, "[StateMachine Amend] %q cannot be amended", step)
	}
	if err := sm.payloads.Validate(step, payload); err != nil {
		return err
	}

	if _, _, ok := sm.acquire(userID); !ok {
		return apperrors.ErrTransitionInFlight
	}
	defer sm.release(userID)

	current, err := sm.current(ctx, userID)
	if err != nil {
		return err
	}
	if !step.Before(current.CurrentStep) {
		return apperrors.Wrapf(apperrors.ErrInvalidTransition, "[StateMachine Amend] %s has not been completed (current %s)", step, current.CurrentStep)
	}

	callCtx, cancel := context.WithTimeout(ctx, sm.requestTimeout)
	defer cancel()
	if err := sm.backend.AmendStep(callCtx, userID, step, payload); err != nil {
		return errors.Wrapf(asBackendFailure(err), "[StateMachine Amend] %s", step)
	}
	return nil
}

// Current returns the verified state, reading the backend when nothing is known locally.
// It never writes.
func (sm *StateMachine) Current(ctx context.Context, userID string) (State, error) {
	if userID == "" {
		return State{}, errors.Wrap(apperrors.ErrUnauthenticated, "[StateMachine Current] user id is required")
	}
	return sm.current(ctx, userID)
}

// Observe seeds local state from a backend snapshot (e.g. the session response). Local
// state never moves backwards; a lower snapshot is logged and ignored.
func (sm *StateMachine) Observe(userID string, st State) State {
	if err := st.Validate(); err != nil {
		sm.logger.Warn().Err(err).Str("user_id", userID).Msg("ignoring inconsistent onboarding snapshot")
		sm.mu.Lock()
		defer sm.mu.Unlock()
		return sm.states[userID]
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	existing, ok := sm.states[userID]
	if ok && st.CurrentStep.Before(existing.CurrentStep) {
		sm.logger.Warn().
			Str("user_id", userID).
			Str("verified", string(existing.CurrentStep)).
			Str("snapshot", string(st.CurrentStep)).
			Msg("backend snapshot is behind verified onboarding state")
		return existing
	}
	if ok && st.CurrentStep == existing.CurrentStep {
		return existing
	}
	sm.states[userID] = st
	return st
}

// Forget drops everything held for userID (sign-out).
func (sm *StateMachine) Forget(userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, userID)
}

// InFlight reports whether a transition or amendment is outstanding for userID.
func (sm *StateMachine) InFlight(userID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.inFlight[userID]
	return ok
}

func (sm *StateMachine) current(ctx context.Context, userID string) (State, error) {
	sm.mu.Lock()
	st, ok := sm.states[userID]
	sm.mu.Unlock()
	if ok {
		return st, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, sm.requestTimeout)
	defer cancel()
	st, err := sm.backend.Status(callCtx, userID)
	if err != nil {
		return State{}, errors.Wrap(asBackendFailure(err), "[StateMachine Current] status")
	}
	if err := st.Validate(); err != nil {
		return State{}, err
	}
	if st.LastVerifiedAt.IsZero() {
		st.LastVerifiedAt = sm.nowTime()
	}
	return sm.Observe(userID, st), nil
}

func (sm *StateMachine) submit(ctx context.Context, userID string, to Step, payload json.RawMessage) error {
	callCtx, cancel := context.WithTimeout(ctx, sm.requestTimeout)
	defer cancel()
	if err := sm.backend.SubmitStep(callCtx, userID, to, payload); err != nil {
		return errors.Wrapf(asBackendFailure(err), "[StateMachine Transition] submit %s", to)
	}
	return nil
}

// verify polls the read path until it shows `to` or a later step and returns the
// confirming snapshot.
func (sm *StateMachine) verify(ctx context.Context, userID string, to Step) (State, error) {
	var confirmed State
	err := sm.backoff.Retry(ctx, func(ctx context.Context, attempt int) (bool, error) {
		pollCtx, cancel := context.WithTimeout(ctx, sm.requestTimeout)
		defer cancel()

		st, err := sm.backend.Status(pollCtx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			sm.logger.Debug().Err(err).Str("user_id", userID).Int("attempt", attempt+1).Msg("onboarding status poll failed")
			return false, nil
		}
		if err := st.Validate(); err != nil {
			sm.logger.Warn().Err(err).Str("user_id", userID).Int("attempt", attempt+1).Msg("onboarding status poll returned inconsistent state")
			return false, nil
		}
		if st.CurrentStep.Index() < to.Index() {
			return false, nil
		}
		confirmed = st
		return true, nil
	})
	switch {
	case err == nil:
		return confirmed, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return State{}, errors.Wrap(err, "[StateMachine Transition] verification abandoned")
	default:
		return State{}, errors.Wrapf(apperrors.ErrVerificationFailed, "[StateMachine Transition] %s not visible after %d polls", to, sm.backoff.Attempts)
	}
}

// acquire takes the per-user in-flight flag and returns the verified state at that moment.
func (sm *StateMachine) acquire(userID string) (State, bool, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	st, known := sm.states[userID]
	if _, busy := sm.inFlight[userID]; busy {
		return st, known, false
	}
	sm.inFlight[userID] = struct{}{}
	return st, known, true
}

func (sm *StateMachine) release(userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.inFlight, userID)
}

// asBackendFailure marks an unclassified backend error as transient.
func asBackendFailure(err error) error {
	if apperrors.Classify(err) != apperrors.ClassInternal || apperrors.Is(err, apperrors.ErrInternal) || apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return errors.Wrap(apperrors.ErrBackendFailure, err.Error())
}
