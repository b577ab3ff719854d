package fakeonboarding

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
)

var _ onboarding.Backend = (*FakeBackend)(nil)

// Amendment is one recorded AmendStep call.
type Amendment struct {
	UserID  string
	Step    onboarding.Step
	Payload json.RawMessage
}

// FakeBackend is an in-memory onboarding backend whose read path trails its write path.
// After a write, the next ReadLag Status calls still return the previous step. Stall
// keeps the read path behind forever.
type FakeBackend struct {
	lock sync.Mutex

	durable    map[string]onboarding.Step
	visible    map[string]onboarding.Step
	lagPending map[string]int
	amendments []Amendment

	readLag    int
	stalled    bool
	submitGate chan struct{}
	submitErr  error
	statusErr  error

	submitCalls int
	statusCalls int
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		durable:    make(map[string]onboarding.Step),
		visible:    make(map[string]onboarding.Step),
		lagPending: make(map[string]int),
	}
}

// Seed puts userID on step on both paths.
func (fb *FakeBackend) Seed(userID string, step onboarding.Step) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.durable[userID] = step
	fb.visible[userID] = step
	delete(fb.lagPending, userID)
}

func (fb *FakeBackend) SetReadLag(reads int) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.readLag = reads
}

func (fb *FakeBackend) Stall(stalled bool) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.stalled = stalled
}

// GateSubmits makes SubmitStep block until the returned channel is closed.
func (fb *FakeBackend) GateSubmits() chan struct{} {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.submitGate = make(chan struct{})
	return fb.submitGate
}

func (fb *FakeBackend) FailSubmits(err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.submitErr = err
}

func (fb *FakeBackend) FailStatus(err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.statusErr = err
}

func (fb *FakeBackend) SubmitStep(ctx context.Context, userID string, step onboarding.Step, _ json.RawMessage) error {
	fb.lock.Lock()
	fb.submitCalls++
	gate := fb.submitGate
	fb.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fb.lock.Lock()
	defer fb.lock.Unlock()
	if fb.submitErr != nil {
		return fb.submitErr
	}

	current := fb.stepLocked(fb.durable, userID)
	if current == step {
		return nil
	}
	if next, ok := current.Next(); !ok || next != step {
		return apperrors.Wrapf(apperrors.ErrInvalidTransition, "fake backend: %s -> %s", current, step)
	}
	fb.durable[userID] = step
	fb.lagPending[userID] = fb.readLag
	if fb.readLag == 0 && !fb.stalled {
		fb.visible[userID] = step
	}
	return nil
}

func (fb *FakeBackend) AmendStep(_ context.Context, userID string, step onboarding.Step, payload json.RawMessage) error {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.amendments = append(fb.amendments, Amendment{UserID: userID, Step: step, Payload: payload})
	return nil
}

func (fb *FakeBackend) Status(ctx context.Context, userID string) (onboarding.State, error) {
	if err := ctx.Err(); err != nil {
		return onboarding.State{}, err
	}

	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.statusCalls++
	if fb.statusErr != nil {
		return onboarding.State{}, fb.statusErr
	}

	if !fb.stalled {
		if pending := fb.lagPending[userID]; pending > 0 {
			fb.lagPending[userID] = pending - 1
		} else {
			fb.visible[userID] = fb.stepLocked(fb.durable, userID)
		}
	}
	return onboarding.NewState(fb.stepLocked(fb.visible, userID), time.Time{}), nil
}

// DurableStep is what the write path holds for userID.
func (fb *FakeBackend) DurableStep(userID string) onboarding.Step {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.stepLocked(fb.durable, userID)
}

func (fb *FakeBackend) SubmitCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.submitCalls
}

func (fb *FakeBackend) StatusCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.statusCalls
}

func (fb *FakeBackend) Amendments() []Amendment {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return append([]Amendment(nil), fb.amendments...)
}

func (fb *FakeBackend) stepLocked(m map[string]onboarding.Step, userID string) onboarding.Step {
	if step, ok := m[userID]; ok {
		return step
	}
	return onboarding.StepNotStarted
}
