// Package session owns all conversation state. Sessions are created on the
// first message, expire after an idle timeout, and are only ever mutated by
// appending turns: the exchange commit records a user/assistant pair
// atomically, so a cancelled request never leaves half a turn behind.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/model"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

const DefaultIdleTTL = 30 * time.Minute

type Config struct {
	IdleTTL time.Duration
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	idleTTL  time.Duration
	now      func() time.Time
}

func NewManager(cfg Config) *Manager {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Manager{
		sessions: make(map[string]*model.Session),
		idleTTL:  ttl,
		now:      time.Now,
	}
}

// History returns a copy of the session's turns, oldest first. A missing
// session yields an empty history.
func (m *Manager) History(sessionID string) []model.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[sessionID]
	if sess == nil {
		return nil
	}
	turns := make([]model.Turn, len(sess.Turns))
	copy(turns, sess.Turns)
	return turns
}

// CommitExchange appends the user question and the assistant answer as one
// atomic pair, creating the session on first use. Turns keep arrival order
// because the append happens under the session lock.
func (m *Manager) CommitExchange(sessionID, userText, assistantText string, usedChunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[sessionID]
	now := m.now()
	if sess == nil {
		sess = &model.Session{
			ID:        sessionID,
			State:     model.SessionActive,
			CreatedAt: now.UnixMilli(),
		}
		m.sessions[sessionID] = sess
	}
	if sess.State == model.SessionClosed {
		return apperrors.ErrSessionClosed
	}
	sess.Turns = append(sess.Turns,
		model.Turn{
			Role:      model.RoleUser,
			Text:      userText,
			ChunkIDs:  usedChunkIDs,
			Timestamp: now.UnixMilli(),
		},
		model.Turn{
			Role:      model.RoleAssistant,
			Text:      assistantText,
			ChunkIDs:  usedChunkIDs,
			Timestamp: now.UnixMilli(),
		},
	)
	sess.LastActiveAt = now.UnixMilli()
	return nil
}

// Clear drops a session's history but keeps the session alive.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess := m.sessions[sessionID]; sess != nil {
		sess.Turns = nil
		sess.LastActiveAt = m.now().UnixMilli()
	}
}

// Close ends a session explicitly; later commits fail with ErrSessionClosed.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess := m.sessions[sessionID]; sess != nil {
		sess.State = model.SessionClosed
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepExpired removes sessions idle beyond the TTL and closed sessions.
// Wired as a cron job.
func (m *Manager) SweepExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.idleTTL).UnixMilli()
	removed := 0
	for id, sess := range m.sessions {
		last := sess.LastActiveAt
		if last == 0 {
			last = sess.CreatedAt
		}
		if sess.State == model.SessionClosed || last < cutoff {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired sessions swept", zap.Int("removed", removed))
	}
	return removed
}
