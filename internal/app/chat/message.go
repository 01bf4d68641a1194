/*
Package chat is the accessor for the global chat table.

Messages are appended with Send, read back with FetchLast, and new inserts are pushed
to Subscribe callbacks through the backend's realtime feed. Nothing is cached.
*/
package chat

import (
	"fmt"
	"time"

	"globalchat/internal/backend"
)

const (
	// Table is the chat table name.
	Table = "global_chat_messages"

	// MaxContentBytes is the maximum allowed size (in bytes) of a message's content.
	MaxContentBytes = 5000
)

// Column names of the chat table.
const (
	ColID        = "id"
	ColSenderID  = "sender_id"
	ColEmail     = "email"
	ColContent   = "content"
	ColCreatedAt = "created_at"
)

// Message is one stored chat message.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId,omitempty"`
	Email     string    `json:"email"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage is what a sender supplies; id and timestamp are assigned by the store.
type NewMessage struct {
	Email    string
	Content  string
	SenderID string
}

// Row converts m for insertion. An empty SenderID is stored as NULL.
func (m NewMessage) Row() backend.Row {
	row := backend.Row{
		ColEmail:   m.Email,
		ColContent: m.Content,
	}
	if m.SenderID != "" {
		row[ColSenderID] = m.SenderID
	}
	return row
}

// FromRow decodes a chat row. created_at may be a time.Time or an RFC 3339 string,
// depending on whether the row came from a query or a change event.
func FromRow(row backend.Row) (Message, error) {
	var m Message

	for col, dst := range map[string]*string{
		ColID:       &m.ID,
		ColSenderID: &m.SenderID,
		ColEmail:    &m.Email,
		ColContent:  &m.Content,
	} {
		switch v := row[col].(type) {
		case nil:
		case string:
			*dst = v
		default:
			return Message{}, fmt.Errorf("column %s has unexpected type %T", col, v)
		}
	}

	switch v := row[ColCreatedAt].(type) {
	case nil:
	case time.Time:
		m.CreatedAt = v
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Message{}, fmt.Errorf("column %s: %w", ColCreatedAt, err)
		}
		m.CreatedAt = ts
	default:
		return Message{}, fmt.Errorf("column %s has unexpected type %T", ColCreatedAt, v)
	}

	if m.ID == "" {
		return Message{}, fmt.Errorf("message row without %s", ColID)
	}
	return m, nil
}
