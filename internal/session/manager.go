// ABOUTME: Conversation session state machine over a remote session store
// ABOUTME: Serializes per-session turns and deletes sessions whose first exchange fails

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Session errors
var (
	// ErrSessionNotFound means the remote store has no session with the
	// given id. Store implementations return it for unknown ids on fetch,
	// update, and delete alike.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInitialContentRequired means Start was called without content for
	// the first exchange.
	ErrInitialContentRequired = errors.New("initial content is required")

	// ErrSessionIDRequired means Continue or End was called without a
	// session id.
	ErrSessionIDRequired = errors.New("session id is required")
)

// cleanupTimeout bounds the compensating delete so it completes even when
// the request context is already cancelled.
const cleanupTimeout = 5 * time.Second

// Metadata is the mutable state the remote store keeps per session. Turn
// starts at 0 on creation, becomes 1 after the first successful exchange,
// and increases by exactly one per later successful exchange.
type Metadata struct {
	Language string
	Turn     int
}

// Store is the remote session store's four operations, reached over HTTP
// with bearer-token auth. The orchestrator holds no session copy beyond
// the lifetime of one request.
type Store interface {
	Create(ctx context.Context, meta Metadata) (string, error)
	Fetch(ctx context.Context, id string) (Metadata, error)
	Update(ctx context.Context, id string, meta Metadata) error
	Delete(ctx context.Context, id string) error
}

// Exchanger runs one conversational exchange against a session.
type Exchanger interface {
	Exchange(ctx context.Context, sessionID string, meta Metadata, content string) (string, error)
}

// StartRequest opens a new session and runs its first exchange.
type StartRequest struct {
	Language string
	Content  string
}

// ContinueRequest runs one more exchange against an existing session.
type ContinueRequest struct {
	SessionID string
	Content   string
}

// Reply is the outcome of a successful exchange.
type Reply struct {
	Answer    string
	SessionID string
	Turn      int
}

// Manager drives the session lifecycle: ABSENT -> CREATED -> ACTIVE(turn=N),
// terminal DELETED. Continuations of the same session id are serialized
// through a per-session lock held across the fetch-exchange-update
// sequence, so the turn counter is strictly monotonic even under
// concurrent continues.
type Manager struct {
	store     Store
	exchanger Exchanger
	locks     *lockTable
	logger    *slog.Logger
}

// NewManager creates a session manager.
func NewManager(store Store, exchanger Exchanger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		exchanger: exchanger,
		locks:     newLockTable(),
		logger:    logger.With("component", "session"),
	}
}

// Start creates a remote session, runs the first exchange, and promotes the
// session to turn 1. A session never outlives a failed first exchange: the
// just-created session is deleted before the error is surfaced. Creation
// failures need no cleanup since nothing was created.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Reply, error) {
	if req.Content == "" {
		return nil, ErrInitialContentRequired
	}

	meta := Metadata{Language: req.Language, Turn: 0}
	id, err := m.store.Create(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.logger.Debug("session created", "session_id", id, "language", req.Language)

	answer, err := m.exchanger.Exchange(ctx, id, meta, req.Content)
	if err != nil {
		m.deleteOrphan(id)
		return nil, fmt.Errorf("first exchange failed: %w", err)
	}

	meta.Turn = 1
	if err := m.store.Update(ctx, id, meta); err != nil {
		return nil, fmt.Errorf("recording first turn for session %s: %w", id, err)
	}

	return &Reply{Answer: answer, SessionID: id, Turn: 1}, nil
}

// Continue runs one exchange against an existing session and advances its
// turn counter. Exchange failures surface directly; an established session
// is never deleted on failure. The per-session lock closes the
// read-modify-write race on the turn counter.
func (m *Manager) Continue(ctx context.Context, req ContinueRequest) (*Reply, error) {
	if req.SessionID == "" {
		return nil, ErrSessionIDRequired
	}

	unlock := m.locks.lock(req.SessionID)
	defer unlock()

	meta, err := m.store.Fetch(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
		}
		return nil, fmt.Errorf("fetching session %s: %w", req.SessionID, err)
	}

	answer, err := m.exchanger.Exchange(ctx, req.SessionID, meta, req.Content)
	if err != nil {
		return nil, fmt.Errorf("exchange failed: %w", err)
	}

	meta.Turn++
	if err := m.store.Update(ctx, req.SessionID, meta); err != nil {
		return nil, fmt.Errorf("recording turn %d for session %s: %w", meta.Turn, req.SessionID, err)
	}

	return &Reply{Answer: answer, SessionID: req.SessionID, Turn: meta.Turn}, nil
}

// End deletes a session. Referencing a deleted or unknown session is an
// error, not a silent no-op.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}

	unlock := m.locks.lock(sessionID)
	defer unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// deleteOrphan removes a session whose first exchange failed. It uses a
// fresh timeout context so cleanup still runs when the request context is
// already done; a failed delete is logged, not surfaced, since the
// exchange error is what the caller needs to see.
func (m *Manager) deleteOrphan(id string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := m.store.Delete(cleanupCtx, id); err != nil {
		m.logger.Error("failed to delete session after failed first exchange",
			"session_id", id,
			"error", err)
	} else {
		m.logger.Debug("deleted session after failed first exchange", "session_id", id)
	}
}
