package job

import (
	"context"

	"github.com/xxxsen/webrag/internal/session"
)

type SessionSweepJob struct {
	sessions *session.Manager
}

func NewSessionSweepJob(sessions *session.Manager) *SessionSweepJob {
	return &SessionSweepJob{sessions: sessions}
}

func (j *SessionSweepJob) Name() string {
	return "session_sweep"
}

func (j *SessionSweepJob) Run(ctx context.Context) error {
	if j.sessions == nil {
		return nil
	}
	j.sessions.SweepExpired(ctx)
	return nil
}
