/*
Package memory is an in-process backend implementing Auth, Tables and Realtime.

It backs development runs without a database and the tests of the client layer.
Failures can be injected per operation with SetError.
*/
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/randx"
)

// Operation names accepted by SetError.
const (
	OpSignUp    = "signup"
	OpSignIn    = "signin"
	OpSignOut   = "signout"
	OpSession   = "session"
	OpSelect    = "select"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpSubscribe = "subscribe"
)

type account struct {
	id    string
	email string
	hash  []byte
}

type subscription struct {
	b       *Backend
	ref     string
	table   string
	kind    backend.EventKind
	handler backend.Handler
	once    sync.Once
}

// Backend holds accounts, the open session, table rows and realtime subscribers.
type Backend struct {
	mu sync.Mutex

	minPasswordLength int
	now               func() time.Time

	accounts map[string]account
	session  *backend.Identity
	tables   map[string][]backend.Row
	subs     []*subscription
	failures map[string]error
}

var (
	_ backend.Auth     = (*Backend)(nil)
	_ backend.Tables   = (*Backend)(nil)
	_ backend.Realtime = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithMinPasswordLength overrides the minimum accepted password length.
func WithMinPasswordLength(n int) Option {
	return func(b *Backend) { b.minPasswordLength = n }
}

// WithClock replaces time.Now for created_at and commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		minPasswordLength: backend.DefaultMinPasswordLength,
		now:               time.Now,
		accounts:          make(map[string]account),
		tables:            make(map[string][]backend.Row),
		failures:          make(map[string]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Client bundles the backend's three capabilities.
func (b *Backend) Client() *backend.Client {
	return &backend.Client{Auth: b, Tables: b, Realtime: b}
}

// SetError makes every following call of op fail with err. A nil err clears it.
func (b *Backend) SetError(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Rows returns a copy of every row stored in table.
func (b *Backend) Rows(table string) []backend.Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]backend.Row, 0, len(b.tables[table]))
	for _, row := range b.tables[table] {
		out = append(out, row.Clone())
	}
	return out
}

// SubscriberCount returns the number of open realtime subscriptions.
func (b *Backend) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// failure must be called with b.mu held.
func (b *Backend) failure(op string) error {
	return b.failures[op]
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (backend.Identity, error) {
	if err := backend.ValidateCredentials(email, password, b.minPasswordLength); err != nil {
		return backend.Identity{}, err
	}
	email = backend.NormalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpSignUp); err != nil {
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
	}
	if _, exists := b.accounts[email]; exists {
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, backend.ErrUserAlreadyRegistered)
	}

	acc := account{id: randx.RowID(), email: email, hash: hash}
	b.accounts[email] = acc

	identity := backend.Identity{ID: acc.id, Email: acc.email}
	b.session = &identity
	return identity, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (backend.Identity, error) {
	email = backend.NormalizeEmail(email)

	b.mu.Lock()
	if err := b.failure(OpSignIn); err != nil {
		b.mu.Unlock()
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, err)
	}
	acc, ok := b.accounts[email]
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return backend.Identity{}, errs.Wrap(errs.ErrAuthFailed, backend.ErrInvalidLogin)
	}

	identity := backend.Identity{ID: acc.id, Email: acc.email}

	b.mu.Lock()
	b.session = &identity
	b.mu.Unlock()

	return identity, nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpSignOut); err != nil {
		return errs.Wrap(errs.ErrAuthFailed, err)
	}
	b.session = nil
	return nil
}

func (b *Backend) CurrentSession(ctx context.Context) (backend.Identity, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpSession); err != nil {
		return backend.Identity{}, false, errs.Wrap(errs.ErrAuthFailed, err)
	}
	if b.session == nil {
		return backend.Identity{}, false, nil
	}
	return *b.session, true, nil
}

func matches(row backend.Row, filters []backend.Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func (b *Backend) SelectOne(ctx context.Context, table string, filter backend.Filter) (backend.Row, error) {
	rows, err := b.SelectAll(ctx, table, filter)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, errs.NewError(errs.ErrNotFound, "row")
	case 1:
		return rows[0], nil
	default:
		return nil, errs.Wrap(errs.ErrStore, fmt.Errorf("expected one row in %s, got %d", table, len(rows)))
	}
}

func (b *Backend) SelectAll(ctx context.Context, table string, filters ...backend.Filter) ([]backend.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpSelect); err != nil {
		return nil, errs.Wrap(errs.ErrStore, err)
	}

	var out []backend.Row
	for _, row := range b.tables[table] {
		if matches(row, filters) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (b *Backend) Insert(ctx context.Context, table string, row backend.Row) error {
	row = row.Clone()
	if row == nil {
		row = backend.Row{}
	}

	b.mu.Lock()

	if err := b.failure(OpInsert); err != nil {
		b.mu.Unlock()
		return errs.Wrap(errs.ErrStore, err)
	}

	if id, ok := row["id"]; ok {
		for _, existing := range b.tables[table] {
			if reflect.DeepEqual(existing["id"], id) {
				b.mu.Unlock()
				return errs.Wrap(errs.ErrStore, fmt.Errorf("duplicate key value violates unique constraint \"%s_pkey\"", table))
			}
		}
	} else {
		row["id"] = randx.RowID()
	}

	now := b.now().UTC()
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}

	b.tables[table] = append(b.tables[table], row)
	targets := b.targets(table, backend.EventInsert)
	b.mu.Unlock()

	dispatch(targets, backend.Change{
		Table:     table,
		Kind:      backend.EventInsert,
		New:       row,
		Committed: now,
	})
	return nil
}

func (b *Backend) Update(ctx context.Context, table string, filter backend.Filter, patch backend.Row) error {
	b.mu.Lock()

	if err := b.failure(OpUpdate); err != nil {
		b.mu.Unlock()
		return errs.Wrap(errs.ErrStore, err)
	}
	if len(patch) == 0 {
		b.mu.Unlock()
		return nil
	}

	now := b.now().UTC()
	var changes []backend.Change
	for i, row := range b.tables[table] {
		if !matches(row, []backend.Filter{filter}) {
			continue
		}

		updated := row.Clone()
		for k, v := range patch {
			updated[k] = v
		}
		b.tables[table][i] = updated

		changes = append(changes, backend.Change{
			Table:     table,
			Kind:      backend.EventUpdate,
			New:       updated,
			Old:       row,
			Committed: now,
		})
	}
	targets := b.targets(table, backend.EventUpdate)
	b.mu.Unlock()

	for _, change := range changes {
		dispatch(targets, change)
	}
	return nil
}

func (b *Backend) Subscribe(ctx context.Context, table string, kind backend.EventKind, handler backend.Handler) (backend.Subscription, error) {
	if handler == nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpSubscribe); err != nil {
		return nil, errs.Wrap(errs.ErrRealtime, err)
	}

	sub := &subscription{
		b:       b,
		ref:     randx.SubscriptionRef(),
		table:   table,
		kind:    kind,
		handler: handler,
	}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// targets must be called with b.mu held.
func (b *Backend) targets(table string, kind backend.EventKind) []*subscription {
	var out []*subscription
	for _, sub := range b.subs {
		if sub.table == table && sub.kind.Matches(kind) {
			out = append(out, sub)
		}
	}
	return out
}

func (b *Backend) active(sub *subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Contains(b.subs, sub)
}

func dispatch(targets []*subscription, change backend.Change) {
	for _, sub := range targets {
		if !sub.b.active(sub) {
			continue
		}
		c := change
		c.New = change.New.Clone()
		c.Old = change.Old.Clone()
		sub.handler(c)
	}
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		s.b.subs = slices.DeleteFunc(slices.Clone(s.b.subs), func(other *subscription) bool {
			return other == s
		})
	})
	return nil
}

// ErrInjected is a convenience error for SetError in tests.
var ErrInjected = errors.New("injected failure")
