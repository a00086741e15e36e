package session

import (
	"context"
	"errors"
	"time"

	"github.com/example/photolabel/internal/workflow"
)

// ErrNotFound reports a missing or expired session.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence so the workflow use case can run
// against an in-process map or Redis unchanged. Sessions are saved whole;
// the image itself stays in the upload spool and only its path travels
// with the session.
type Store interface {
	Save(ctx context.Context, s *workflow.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*workflow.Session, error)
	Delete(ctx context.Context, id string) error
}
