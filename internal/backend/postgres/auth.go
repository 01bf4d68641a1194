package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/auth/jwt"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

// Auth stores accounts in auth_accounts. A successful sign-up or sign-in issues a
// signed session token and saves it to the session store.
type Auth struct {
	db       DBTX
	sessions backend.SessionStore
	secret   string
	ttl      time.Duration

	minPasswordLength int
	hashCost          int
}

var _ backend.Auth = (*Auth)(nil)

// NewAuth creates the auth backend. A zero ttl uses jwt.SessionExpiration.
func NewAuth(db DBTX, sessions backend.SessionStore, secret string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = jwt.SessionExpiration
	}
	return &Auth{
		db:                db,
		sessions:          sessions,
		secret:            secret,
		ttl:               ttl,
		minPasswordLength: backend.DefaultMinPasswordLength,
		hashCost:          bcrypt.DefaultCost,
	}
}

func (a *Auth) SignUp(ctx context.Context, email, password string) (backend.Identity, error) {
	if err := backend.ValidateCredentials(email, password, a.minPasswordLength); err != nil {
		return backend.Identity{}, err
	}
	email = backend.NormalizeEmail(email)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
	}

	var identity backend.Identity
	err = a.db.QueryRow(ctx,
		`INSERT INTO auth_accounts (email, password_hash, last_sign_in_at)
		 VALUES ($1, $2, now())
		 RETURNING id::text, email`,
		email, string(hashedPassword),
	).Scan(&identity.ID, &identity.Email)

	if err != nil {
		if IsUniqueViolation(err) {
			logx.Warn("sign-up conflict: email already registered", "email", email)
			return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, backend.ErrUserAlreadyRegistered)
		}

		logx.Error(err, "failed to create account")
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
	}

	if err := a.openSession(ctx, identity); err != nil {
		return backend.Identity{}, err
	}
	return identity, nil
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (backend.Identity, error) {
	email = backend.NormalizeEmail(email)

	var (
		identity     backend.Identity
		passwordHash string
	)
	err := a.db.QueryRow(ctx,
		`SELECT id::text, email, password_hash FROM auth_accounts WHERE email = $1`,
		email,
	).Scan(&identity.ID, &identity.Email, &passwordHash)

	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			logx.Error(err, "sign-in: account lookup failed", "email", email)
			return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
		}
		logx.Warn("sign-in: unknown email", "email", email)
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, backend.ErrInvalidLogin)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		logx.Warn("sign-in: password mismatch", "email", email)
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, backend.ErrInvalidLogin)
	}

	if _, err := a.db.Exec(ctx, `UPDATE auth_accounts SET last_sign_in_at = now() WHERE id = $1`, identity.ID); err != nil {
		logx.Error(err, "sign-in: failed to update last_sign_in_at", "user_id", identity.ID)
	}

	if err := a.openSession(ctx, identity); err != nil {
		return backend.Identity{}, err
	}
	return identity, nil
}

func (a *Auth) openSession(ctx context.Context, identity backend.Identity) error {
	token, err := jwt.GenerateToken(&jwt.Payload{ID: identity.ID, Email: identity.Email}, a.secret, a.ttl)
	if err != nil {
		logx.Error(err, "session token generation failed", "user_id", identity.ID)
		return errs.Wrap(errs.ErrAuthFailed, err)
	}

	if err := a.sessions.Save(ctx, token, a.ttl); err != nil {
		logx.Error(err, "session save failed", "user_id", identity.ID)
		return errs.Wrap(errs.ErrAuthFailed, err)
	}
	return nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	if err := a.sessions.Clear(ctx); err != nil {
		return errs.Wrap(errs.ErrAuthFailed, err)
	}
	return nil
}

// CurrentSession decodes the stored token. An expired or tampered token is cleared
// and reported as no session.
func (a *Auth) CurrentSession(ctx context.Context) (backend.Identity, bool, error) {
	return sessionFromStore(ctx, a.sessions, a.secret)
}

// SessionToken returns the stored token, for transports that forward it to the relay.
func (a *Auth) SessionToken(ctx context.Context) (string, error) {
	token, err := a.sessions.Load(ctx)
	if errors.Is(err, backend.ErrNoSession) {
		return "", nil
	}
	return token, err
}

func sessionFromStore(ctx context.Context, sessions backend.SessionStore, secret string) (backend.Identity, bool, error) {
	token, err := sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNoSession) {
			return backend.Identity{}, false, nil
		}
		return backend.Identity{}, false, errs.Wrap(errs.ErrAuthFailed, err)
	}

	payload, err := jwt.ParseToken(token, secret)
	if err != nil {
		logx.Warn("stored session token rejected, clearing it", "error", err.Error())
		if clearErr := sessions.Clear(ctx); clearErr != nil {
			logx.Error(clearErr, "failed to clear rejected session token")
		}
		return backend.Identity{}, false, nil
	}

	return backend.Identity{ID: payload.ID, Email: payload.Email}, true, nil
}
