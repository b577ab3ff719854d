package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-session-reconciler/identity"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	"github.com/pkg/errors"
)

var _ sessions.Backend = (*SessionAPI)(nil)

// SessionAPI implements sessions.Backend over /sessions.
type SessionAPI struct {
	client *Client
}

func (s *SessionAPI) Get(ctx context.Context, sessionID string) (*sessions.SessionData, error) {
	var data sessions.SessionData
	if err := s.client.do(ctx, http.MethodGet, sessionPath(sessionID), "", nil, &data); err != nil {
		return nil, notFoundAsSession(err)
	}
	return &data, nil
}

func (s *SessionAPI) Create(ctx context.Context, claims identity.Claims) (*sessions.SessionData, error) {
	var data sessions.SessionData
	if err := s.client.do(ctx, http.MethodPost, "/sessions", claims.Subject, claims, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *SessionAPI) Refresh(ctx context.Context, sessionID string) (*sessions.SessionData, error) {
	var data sessions.SessionData
	if err := s.client.do(ctx, http.MethodPost, sessionPath(sessionID)+"/refresh", "", nil, &data); err != nil {
		return nil, notFoundAsSession(err)
	}
	return &data, nil
}

func (s *SessionAPI) Delete(ctx context.Context, sessionID string) error {
	return notFoundAsSession(s.client.do(ctx, http.MethodDelete, sessionPath(sessionID), "", nil, nil))
}

func sessionPath(sessionID string) string {
	return "/sessions/" + url.PathEscape(sessionID)
}

func notFoundAsSession(err error) error {
	if err != nil && apperrors.Is(err, apperrors.ErrNotFound) {
		return errors.Wrap(apperrors.ErrSessionNotFound, err.Error())
	}
	return err
}
