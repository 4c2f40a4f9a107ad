package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
)

// SessionManager tracks the in-flight request of each session. Beginning a
// request cancels the one it supersedes with ErrSuperseded.
type SessionManager struct {
	mu       sync.Mutex
	inflight map[string]*inflightRequest
	logger   *zap.Logger
}

type inflightRequest struct {
	id     uuid.UUID
	cancel context.CancelCauseFunc
}

func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		inflight: make(map[string]*inflightRequest),
		logger:   logger.Named("sessions"),
	}
}

// Begin registers requestID as the session's current request. The returned
// context is cancelled when a later request in the same session begins;
// release must be called when the request, including any answer streaming,
// is finished. An empty sessionID opts out of supersession.
func (m *SessionManager) Begin(ctx context.Context, sessionID string, requestID uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if sessionID == "" {
		return ctx, func() { cancel(nil) }
	}

	req := &inflightRequest{id: requestID, cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.inflight[sessionID]; ok {
		prev.cancel(apperrors.ErrSuperseded)
		m.logger.Debug("request superseded",
			zap.String("session_id", sessionID),
			zap.String("superseded_request_id", prev.id.String()),
			zap.String("request_id", requestID.String()),
		)
	}
	m.inflight[sessionID] = req
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		if m.inflight[sessionID] == req {
			delete(m.inflight, sessionID)
		}
		m.mu.Unlock()
		cancel(nil)
	}
	return ctx, release
}

// Cancel cancels the session's in-flight request, if any.
func (m *SessionManager) Cancel(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.inflight[sessionID]
	if ok {
		req.cancel(context.Canceled)
		delete(m.inflight, sessionID)
	}
	return ok
}

// InFlight returns the number of sessions with a running request.
func (m *SessionManager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}
