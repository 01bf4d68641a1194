/*
Package backend describes the hosted service the client layer talks to: an auth
subsystem, a relational table store and a realtime change feed.

The layer never reaches past these interfaces. Concrete implementations live in the
sub-packages (memory, postgres, wsrealtime) and are chosen at wiring time.
*/
package backend

import (
	"context"
	"errors"
	"time"
)

// Identity is the minimal account record returned by the auth subsystem.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Auth is the authentication capability.
type Auth interface {
	// SignUp creates an account and opens a session for it.
	SignUp(ctx context.Context, email, password string) (Identity, error)

	// SignInWithPassword verifies credentials and opens a session.
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// CurrentSession returns the identity of the open session, if any.
	CurrentSession(ctx context.Context) (Identity, bool, error)
}

// Row is a table row keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Tables is the relational table store capability.
type Tables interface {
	// SelectOne returns the single row matching filter. Zero rows yield an
	// errs.ErrNotFound error, more than one an errs.ErrStore error.
	SelectOne(ctx context.Context, table string, filter Filter) (Row, error)

	// SelectAll returns every row matching all filters, in the store's default order.
	SelectAll(ctx context.Context, table string, filters ...Filter) ([]Row, error)

	// Insert adds a row.
	Insert(ctx context.Context, table string, row Row) error

	// Update applies patch to the rows matching filter. Matching nothing is not an error.
	Update(ctx context.Context, table string, filter Filter, patch Row) error
}

// EventKind is the kind of row change a realtime subscription listens for.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
	EventAll    EventKind = "*"
)

// ParseEventKind validates a wire value. An empty string means EventAll.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventInsert, EventUpdate, EventDelete, EventAll:
		return k, nil
	case "":
		return EventAll, nil
	default:
		return "", errors.New("unknown event kind " + s)
	}
}

// Matches reports whether a change of kind other is delivered to a subscription of kind k.
func (k EventKind) Matches(other EventKind) bool {
	return k == EventAll || k == other
}

// Change is one row-level change delivered by the realtime feed.
type Change struct {
	Table     string    `json:"table"`
	Kind      EventKind `json:"type"`
	New       Row       `json:"new,omitempty"`
	Old       Row       `json:"old,omitempty"`
	Committed time.Time `json:"commit_timestamp"`
}

// Handler receives realtime changes.
type Handler func(Change)

// Subscription is an open realtime channel.
type Subscription interface {
	// Unsubscribe tears the channel down. Calling it twice is harmless.
	Unsubscribe() error
}

// Realtime is the change feed capability.
type Realtime interface {
	// Subscribe delivers every change of kind on table to handler until the
	// subscription is torn down. There is no backlog replay.
	Subscribe(ctx context.Context, table string, kind EventKind, handler Handler) (Subscription, error)
}

// Client bundles the three capabilities of one backend.
type Client struct {
	Auth     Auth
	Tables   Tables
	Realtime Realtime

	// closers run in reverse order on Close.
	closers []func() error
}

// OnClose registers fn to run when the client is closed.
func (c *Client) OnClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases every resource registered with OnClose.
func (c *Client) Close() error {
	var errList []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	c.closers = nil
	return errors.Join(errList...)
}
