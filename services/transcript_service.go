package services

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"

	"support-chatbot-backend/database"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
)

var ErrTranscriptsDisabled = errors.New("transcript storage is disabled")

const transcriptWriteTimeout = 5 * time.Second

// TranscriptService persists exchanges off the request path. Writes run on a
// bounded, non-blocking worker pool; when the pool is saturated the record
// is dropped and logged.
type TranscriptService struct {
	repo database.Repository
	pool *ants.Pool
}

func NewTranscriptService(repo database.Repository, workers int) (*TranscriptService, error) {
	s := &TranscriptService{repo: repo}
	if repo == nil {
		return s, nil
	}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Errorf(context.Background(), "Transcript worker panicked: %v", p)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func (s *TranscriptService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Record queues msg for storage and returns immediately.
func (s *TranscriptService) Record(ctx context.Context, msg *models.Message) {
	if !s.Enabled() {
		return
	}

	// Detach from the request so the write outlives it, keeping log fields.
	jobCtx := context.WithoutCancel(ctx)
	err := s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(jobCtx, transcriptWriteTimeout)
		defer cancel()
		if err := s.repo.SaveMessage(ctx, msg); err != nil {
			logger.Errorf(ctx, "Failed to save transcript: %v", err)
		}
	})
	if err != nil {
		logger.Warnf(ctx, "Transcript for session %s dropped: %v", msg.SessionID, err)
	}
}

// List returns the latest limit stored messages of a session, oldest first.
func (s *TranscriptService) List(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if !s.Enabled() {
		return nil, ErrTranscriptsDisabled
	}
	return s.repo.ListMessages(ctx, sessionID, limit)
}

func (s *TranscriptService) Delete(ctx context.Context, sessionID string) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

// Release waits up to timeout for queued writes, then stops the pool.
func (s *TranscriptService) Release(timeout time.Duration) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.ReleaseTimeout(timeout)
}
