package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/randx"
)

const (
	// NotifyChannel is the channel the notify_table_change trigger publishes on.
	NotifyChannel = "table_changes"

	// ReconnectDelay is the pause before the listener reconnects after losing its connection.
	ReconnectDelay = 2 * time.Second

	// rowFetchTimeout bounds loading a row the trigger sent by id only.
	rowFetchTimeout = 5 * time.Second
)

type handlerEntry struct {
	ref     string
	table   string
	kind    backend.EventKind
	handler backend.Handler
}

// Realtime listens on NotifyChannel over one dedicated connection and fans each
// notification out to the handlers subscribed to its table and kind. The listener
// starts with the first subscription. Changes committed while it is reconnecting are lost.
type Realtime struct {
	connConfig *pgx.ConnConfig
	rows       backend.Tables
	logger     zerolog.Logger

	mu       sync.Mutex
	handlers []*handlerEntry
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ backend.Realtime = (*Realtime)(nil)

// NewRealtime creates a change feed that connects with connConfig, typically
// pool.Config().ConnConfig. rows loads the rows of notifications that arrive by id only.
func NewRealtime(connConfig *pgx.ConnConfig, rows backend.Tables) *Realtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Realtime{
		connConfig: connConfig,
		rows:       rows,
		logger:     logx.Component("pg-realtime"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

type subscription struct {
	rt    *Realtime
	entry *handlerEntry
	once  sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.rt.mu.Lock()
		defer s.rt.mu.Unlock()

		s.rt.handlers = slices.DeleteFunc(slices.Clone(s.rt.handlers), func(e *handlerEntry) bool {
			return e == s.entry
		})
		s.rt.logger.Debug().Str("ref", s.entry.ref).Str("table", s.entry.table).Msg("Subscription removed")
	})
	return nil
}

func (r *Realtime) Subscribe(ctx context.Context, table string, kind backend.EventKind, handler backend.Handler) (backend.Subscription, error) {
	if handler == nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	if r.ctx.Err() != nil {
		return nil, errs.Wrap(errs.ErrRealtime, errors.New("realtime feed closed"))
	}

	entry := &handlerEntry{
		ref:     randx.SubscriptionRef(),
		table:   table,
		kind:    kind,
		handler: handler,
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, entry)
	if !r.started {
		r.started = true
		r.wg.Add(1)
		go r.listen()
	}
	r.mu.Unlock()

	r.logger.Debug().Str("ref", entry.ref).Str("table", table).Str("event", string(kind)).Msg("Subscription added")

	return &subscription{rt: r, entry: entry}, nil
}

// Close stops the listener and waits for it to exit.
func (r *Realtime) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}

// listen keeps a LISTEN connection open until Close.
func (r *Realtime) listen() {
	defer r.wg.Done()

	for {
		err := r.listenOnce()
		if r.ctx.Err() != nil {
			return
		}

		r.logger.Warn().Err(err).Dur("retry_in", ReconnectDelay).Msg("Change feed connection lost")

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (r *Realtime) listenOnce() error {
	conn, err := pgx.ConnectConfig(r.ctx, r.connConfig)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(r.ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	r.logger.Info().Str("channel", NotifyChannel).Msg("Change feed listening")

	for {
		notification, err := conn.WaitForNotification(r.ctx)
		if err != nil {
			return err
		}

		note, err := decodeNotification(notification.Payload)
		if err != nil {
			r.logger.Error().Err(err).Msg("Dropping undecodable change notification")
			continue
		}

		change, err := r.resolve(note)
		if err != nil {
			r.logger.Warn().Err(err).Str("table", note.Table).Str("id", note.ID).Msg("Dropping change notification")
			continue
		}

		r.dispatch(change)
	}
}

func (r *Realtime) dispatch(change backend.Change) {
	r.mu.Lock()
	handlers := r.handlers
	r.mu.Unlock()

	for _, e := range handlers {
		if e.table != change.Table || !e.kind.Matches(change.Kind) {
			continue
		}
		if !r.registered(e) {
			continue
		}

		c := change
		c.New = change.New.Clone()
		c.Old = change.Old.Clone()
		e.handler(c)
	}
}

func (r *Realtime) registered(e *handlerEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.handlers, e)
}

// notification is the document built by notify_table_change. When the full row would not
// fit in a NOTIFY payload the trigger sends only the row id and New stays empty.
type notification struct {
	backend.Change
	ID string `json:"id"`
}

// decodeNotification parses the JSON document built by notify_table_change.
func decodeNotification(payload string) (notification, error) {
	var note notification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		return notification{}, fmt.Errorf("decode change notification: %w", err)
	}
	if note.Table == "" {
		return notification{}, errors.New("change notification without table")
	}
	switch note.Kind {
	case backend.EventInsert, backend.EventUpdate, backend.EventDelete:
		return note, nil
	default:
		return notification{}, fmt.Errorf("change notification with kind %q", note.Kind)
	}
}

// resolve turns a notification into a change, loading the new row when it was sent by id.
func (r *Realtime) resolve(note notification) (backend.Change, error) {
	change := note.Change
	if note.ID == "" || change.New != nil || change.Kind == backend.EventDelete {
		return change, nil
	}
	if r.rows == nil {
		return backend.Change{}, errors.New("row sent by id and no table store to load it")
	}

	ctx, cancel := context.WithTimeout(r.ctx, rowFetchTimeout)
	defer cancel()

	row, err := r.rows.SelectOne(ctx, change.Table, backend.Eq("id", note.ID))
	if err != nil {
		return backend.Change{}, fmt.Errorf("load %s row: %w", change.Table, err)
	}
	change.New = row
	return change, nil
}
