// Package session keeps per-browser-session conversation state.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"tutorchat/internal/models"
)

// ErrNotFound is returned by Get when no session exists for the ID.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned by Get when the stored value cannot be decoded,
// for example one written by an incompatible release.
var ErrCorrupt = errors.New("stored session is unreadable")

// Store holds sessions keyed by the ID issued to the browser.
//
// Lock serializes interactions on one session: the returned unlock func
// must be called once the caller has saved its changes.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Put(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}
