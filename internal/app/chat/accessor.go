package chat

import (
	"context"

	"github.com/rs/zerolog"

	"globalchat/internal/app/followup"
	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

// Accessor reads, writes and watches the chat table.
type Accessor struct {
	tables   backend.Tables
	realtime backend.Realtime
	reporter *followup.Reporter
	logger   zerolog.Logger
}

// NewAccessor creates a chat accessor. Insert failures go to reporter.
func NewAccessor(tables backend.Tables, realtime backend.Realtime, reporter *followup.Reporter) *Accessor {
	return &Accessor{
		tables:   tables,
		realtime: realtime,
		reporter: reporter,
		logger:   logx.Component("chat"),
	}
}

// Send appends a message. Content over MaxContentBytes is rejected before anything is
// sent. A failed insert is handed to the follow-up reporter, whose policy decides
// whether the caller sees it.
func (a *Accessor) Send(ctx context.Context, m NewMessage) error {
	if len(m.Content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}

	if err := a.tables.Insert(ctx, Table, m.Row()); err != nil {
		a.logger.Error().Err(err).Str("sender_id", m.SenderID).Msg("Error sending message")
		if !errs.Is(err, errs.ErrStore) {
			err = errs.Wrap(errs.ErrStore, err)
		}
		return a.reporter.Handle(followup.OpSendMessage, m.SenderID, err)
	}
	return nil
}

// FetchLast returns every message in the store's default order.
func (a *Accessor) FetchLast(ctx context.Context) ([]Message, error) {
	rows, err := a.tables.SelectAll(ctx, Table)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error fetching messages")
		if errs.Is(err, errs.ErrStore) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrStore, err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		m, err := FromRow(row)
		if err != nil {
			a.logger.Error().Err(err).Msg("Error decoding message")
			return nil, errs.Wrap(errs.ErrStore, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Subscribe calls fn with every message inserted from now on, until the returned
// subscription is torn down. Rows that cannot be decoded are logged and skipped.
func (a *Accessor) Subscribe(ctx context.Context, fn func(Message)) (backend.Subscription, error) {
	sub, err := a.realtime.Subscribe(ctx, Table, backend.EventInsert, func(change backend.Change) {
		m, err := FromRow(change.New)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Skipping undecodable chat insert")
			return
		}
		fn(m)
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Error subscribing to chat inserts")
		if errs.CodeOf(err) == errs.ErrUnknown {
			return nil, errs.Wrap(errs.ErrRealtime, err)
		}
		return nil, err
	}
	return sub, nil
}
