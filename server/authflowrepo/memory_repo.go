package authflowrepo

import (
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/pkg/errors"
)

var _ Repo = (*MemoryRepo)(nil)

// MemoryRepo keeps flows in process memory. Flows do not survive a restart; the user
// simply signs in again.
type MemoryRepo struct {
	lock  sync.Mutex
	flows map[string]SignInFlow
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{flows: make(map[string]SignInFlow)}
}

func (m *MemoryRepo) Save(state string, flow SignInFlow) error {
	if state == "" {
		return errors.New("[MemoryRepo Save] state is required")
	}
	if flow.Nonce == "" {
		return errors.New("[MemoryRepo Save] nonce is required")
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if _, taken := m.flows[state]; taken {
		return errors.New("[MemoryRepo Save] state already in use")
	}
	m.flows[state] = flow
	return nil
}

func (m *MemoryRepo) Take(state string, notBefore time.Time) (SignInFlow, error) {
	m.lock.Lock()
	flow, found := m.flows[state]
	delete(m.flows, state)
	m.lock.Unlock()

	switch {
	case !found:
		return SignInFlow{}, errors.Wrap(apperrors.ErrInvalidSignInFlow, "[MemoryRepo Take] unknown or already used state")
	case flow.CreatedAt.Before(notBefore):
		return SignInFlow{}, errors.Wrap(apperrors.ErrInvalidSignInFlow, "[MemoryRepo Take] sign-in flow expired")
	}
	return flow, nil
}

func (m *MemoryRepo) Purge(cutoff time.Time) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	removed := 0
	for state, flow := range m.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(m.flows, state)
			removed++
		}
	}
	return removed
}

func (m *MemoryRepo) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.flows)
}
