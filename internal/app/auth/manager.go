/*
Package auth keeps the client layer's view of the signed-in user.

The Manager forwards sign-up, sign-in and sign-out to the backend, caches the resulting
user record and pushes a copy of it to every observer after each change. Profile rows
are created after sign-up and merged into the record after sign-in.
*/
package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"globalchat/internal/app/followup"
	"globalchat/internal/app/profile"
	"globalchat/internal/app/user"
	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/observer"
)

// DefaultHydrationTimeout bounds one background profile fetch.
const DefaultHydrationTimeout = 10 * time.Second

// ProfileStore is the part of the profile accessor the manager needs.
type ProfileStore interface {
	FetchByID(ctx context.Context, id string) (profile.Profile, error)
	Create(ctx context.Context, p profile.Profile) error
	Update(ctx context.Context, id string, u profile.Update) error
}

var _ ProfileStore = (*profile.Store)(nil)

// Manager owns the current user record and its observers.
type Manager struct {
	auth     backend.Auth
	profiles ProfileStore
	reporter *followup.Reporter

	observers *observer.Registry[round]

	mu      sync.Mutex
	current user.State
	seq     uint64
	closed  bool

	// ctx bounds background hydrations; Close cancels it.
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	hydrationTimeout time.Duration

	logger zerolog.Logger
}

// round is one notification: the record as stored by the seq-th change.
type round struct {
	seq   uint64
	state user.State
}

func cloneRound(r round) round {
	return round{seq: r.seq, state: user.Clone(r.state)}
}

// Option configures a Manager.
type Option func(*Manager)

// WithHydrationTimeout overrides DefaultHydrationTimeout.
func WithHydrationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.hydrationTimeout = d }
}

// NewManager creates a manager in the anonymous state. It does no IO; call Restore
// to pick up an existing session.
func NewManager(authBackend backend.Auth, profiles ProfileStore, reporter *followup.Reporter, opts ...Option) *Manager {
	if reporter == nil {
		reporter = followup.NewReporter(followup.PolicyLenient)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		auth:             authBackend,
		profiles:         profiles,
		reporter:         reporter,
		observers:        observer.NewRegistry(cloneRound),
		current:          user.Anonymous{},
		seq:              1,
		ctx:              ctx,
		cancel:           cancel,
		hydrationTimeout: DefaultHydrationTimeout,
		logger:           logx.Component("auth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a copy of the cached user record.
func (m *Manager) Current() user.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// SubscribeToAuthStateChanges registers fn and calls it once right away with the
// current record. Every later change is delivered until the subscription is removed.
// Rounds can run concurrently, so fn never receives a record older than one it has
// already been given; a round overtaken by a later change is skipped for fn.
func (m *Manager) SubscribeToAuthStateChanges(fn func(user.State)) *observer.Subscription {
	var last atomic.Uint64
	sub := m.observers.Subscribe(func(r round) {
		for {
			prev := last.Load()
			if r.seq <= prev {
				return
			}
			if last.CompareAndSwap(prev, r.seq) {
				break
			}
		}
		fn(r.state)
	})
	m.observers.Deliver(sub, m.snapshot())
	return sub
}

// snapshot returns the current record with the number of the change that stored it.
func (m *Manager) snapshot() round {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round{seq: m.seq, state: m.current.Clone()}
}

// store replaces the record and returns the round to notify. Caller holds m.mu.
func (m *Manager) store(s user.State) round {
	m.current = s
	m.seq++
	return round{seq: m.seq, state: s.Clone()}
}

// set replaces the record and notifies the observers with the stored value.
func (m *Manager) set(s user.State) {
	m.mu.Lock()
	r := m.store(s)
	m.mu.Unlock()

	m.observers.Notify(r)
}

func authError(err error) error {
	if errs.Is(err, errs.ErrAuthFailed) {
		return err
	}
	return errs.Wrap(errs.ErrAuthFailed, err)
}

// Register creates an account, makes it the current user and creates its profile row.
// A failed sign-up leaves the record untouched. A failed profile insert is handled by
// the follow-up reporter.
func (m *Manager) Register(ctx context.Context, email, password string) error {
	identity, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Sign-up failed")
		return authError(err)
	}

	m.logger.Info().Str("user_id", identity.ID).Msg("User registered")
	m.set(user.Authenticated{UserID: identity.ID, Address: identity.Email})

	err = m.profiles.Create(ctx, profile.Profile{ID: identity.ID, Email: identity.Email})
	return m.reporter.Handle(followup.OpCreateProfile, identity.ID, err)
}

// Login signs in, makes the account the current user and loads its profile in the
// background. Observers see the bare record first and the hydrated one after.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	identity, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Sign-in failed")
		return authError(err)
	}

	m.logger.Info().Str("user_id", identity.ID).Msg("User signed in")
	m.set(user.Authenticated{UserID: identity.ID, Address: identity.Email})

	m.hydrateAsync(identity.ID)
	return nil
}

// Logout ends the session and resets the record to anonymous. A backend failure is
// reported, never returned; the local record is cleared either way.
func (m *Manager) Logout(ctx context.Context) {
	uid := m.Current().ID()

	if err := m.auth.SignOut(ctx); err != nil {
		m.reporter.Report(followup.OpSignOut, uid, err)
	}

	m.logger.Info().Str("user_id", uid).Msg("User signed out")
	m.set(user.Anonymous{})
}

// UpdateAuthUser writes u to the current user's profile and merges it into the record.
// Failures, including calling it while anonymous, go through the follow-up reporter.
func (m *Manager) UpdateAuthUser(ctx context.Context, u profile.Update) error {
	cur, ok := m.Current().(user.Authenticated)
	if !ok {
		return m.reporter.Handle(followup.OpUpdateProfile, "", errs.NewError(errs.ErrUnauthorized))
	}

	if err := m.profiles.Update(ctx, cur.UserID, u); err != nil {
		return m.reporter.Handle(followup.OpUpdateProfile, cur.UserID, err)
	}

	var apply func(*user.Details)
	if !u.Empty() {
		apply = u.ApplyTo
	}
	m.merge(cur.UserID, apply)
	return nil
}

// merge applies fn to the record's details if the record still belongs to uid, then
// notifies. A nil fn leaves the details as they are. It reports whether the record
// still belonged to uid.
func (m *Manager) merge(uid string, fn func(*user.Details)) bool {
	m.mu.Lock()
	cur, ok := m.current.(user.Authenticated)
	if !ok || cur.UserID != uid {
		m.mu.Unlock()
		return false
	}

	if fn != nil {
		var details user.Details
		if cur.Details != nil {
			details = *cur.Details
		}
		fn(&details)
		cur.Details = &details
	}

	r := m.store(cur)
	m.mu.Unlock()

	m.observers.Notify(r)
	return true
}

// hydrate loads uid's profile and merges it into the record.
func (m *Manager) hydrate(ctx context.Context, uid string) {
	p, err := m.profiles.FetchByID(ctx, uid)
	if err != nil {
		m.reporter.Report(followup.OpHydrate, uid, err)
		return
	}

	applied := m.merge(uid, func(d *user.Details) { *d = p.Details })
	if !applied {
		m.logger.Debug().Str("user_id", uid).Msg("Dropping profile of a user no longer signed in")
	}
}

func (m *Manager) hydrateAsync(uid string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(m.ctx, m.hydrationTimeout)
		defer cancel()

		m.hydrate(ctx, uid)
	}()
}

// Restore recovers a session the backend still holds, typically at startup. Without
// one the record stays anonymous and nobody is notified. A recovered session becomes
// the current user and its profile is loaded before Restore returns.
func (m *Manager) Restore(ctx context.Context) error {
	identity, ok, err := m.auth.CurrentSession(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Error restoring session")
		return nil
	}
	if !ok {
		return nil
	}

	m.logger.Info().Str("user_id", identity.ID).Msg("Session restored")
	m.set(user.Authenticated{UserID: identity.ID, Address: identity.Email})

	m.hydrate(ctx, identity.ID)
	return nil
}

// Reset drops the record and every observer without notifying anyone.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.current = user.Anonymous{}
	m.seq++
	m.mu.Unlock()

	m.observers.Clear()
}

// Close stops background hydrations, waits for them and resets the manager.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.Reset()
}
