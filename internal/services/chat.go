package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tutorchat/internal/models"
	"tutorchat/internal/session"
)

// Completer produces the next assistant reply. TutorService implements it.
type Completer interface {
	Complete(ctx context.Context, history []models.Turn, message string, temperature float64) (string, error)
}

// Publisher pushes session updates to live clients.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uuid.UUID, models.WSMessage) {}

// ChatService runs one interaction at a time per session. The session is
// only written after the completion has succeeded.
type ChatService struct {
	store     session.Store
	completer Completer
	publisher Publisher
	logger    *zap.Logger
}

func NewChatService(store session.Store, completer Completer, publisher Publisher, logger *zap.Logger) *ChatService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ChatService{
		store:     store,
		completer: completer,
		publisher: publisher,
		logger:    logger,
	}
}

// Open returns the session for id, creating and seeding it on first visit.
func (s *ChatService) Open(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err == nil && len(sess.Turns) > 0 {
		return sess, nil
	}
	if err != nil && !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}

	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, created, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("session created", zap.String("session_id", id.String()))
	}
	return sess, nil
}

// Send asks the tutor to answer message. On success the raw message and
// the reply are appended together; on failure the session is unchanged
// and the returned error is a *CompletionError.
func (s *ChatService) Send(ctx context.Context, id uuid.UUID, message string) (*models.Session, string, error) {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}

	// The model sees the raw message as the latest turn, then the wrapped
	// copy. Nothing is stored until the reply arrives.
	history := append(sess.History(), models.Turn{Role: models.RoleUser, Text: message})

	reply, err := s.completer.Complete(ctx, history, message, sess.Temperature)
	if err != nil {
		s.logger.Warn("chat turn failed",
			zap.String("session_id", id.String()),
			zap.Int("turns", len(sess.Turns)),
			zap.Error(err),
		)
		return sess, "", err
	}

	sess.Append(models.RoleUser, message)
	sess.Append(models.RoleAssistant, reply)
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("failed to save session after reply: %w", err)
	}

	s.publisher.Publish(ctx, id, models.WSMessage{
		Type:    models.WSTypeTurn,
		Payload: models.TurnEvent{Turns: sess.Turns[len(sess.Turns)-2:]},
	})
	return sess, reply, nil
}

// Reset clears the conversation back to the greeting.
func (s *ChatService) Reset(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.mutate(ctx, id, func(sess *models.Session) {
		sess.Reset()
	})
}

// SetTemperature clamps v to [0, 2] before storing it.
func (s *ChatService) SetTemperature(ctx context.Context, id uuid.UUID, v float64) (*models.Session, error) {
	return s.mutate(ctx, id, func(sess *models.Session) {
		sess.SetTemperature(models.ClampTemperature(v))
	})
}

func (s *ChatService) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Session)) (*models.Session, error) {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(sess)
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, id, models.WSMessage{Type: models.WSTypeSession, Payload: sess})
	return sess, nil
}

// load fetches or creates the session and makes sure it is seeded.
// Callers hold the session lock.
func (s *ChatService) load(ctx context.Context, id uuid.UUID) (*models.Session, bool, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, session.ErrCorrupt) {
		s.logger.Warn("discarding unreadable session",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		if err := s.store.Delete(ctx, id); err != nil {
			return nil, false, err
		}
		err = session.ErrNotFound
	}

	created := false
	if errors.Is(err, session.ErrNotFound) {
		sess = models.NewSession(id)
		created = true
	} else if err != nil {
		return nil, false, err
	}
	sess.Initialize()
	return sess, created, nil
}
