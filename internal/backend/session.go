package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by SessionStore.Load when no token is stored.
var ErrNoSession = errors.New("no session stored")

// SessionStore persists the session token between process runs.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}
