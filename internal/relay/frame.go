/*
Package relay fans realtime table changes out to websocket subscribers.

This file defines the wire frames the relay sends. Clients never send frames; they
only answer pings and close the socket to unsubscribe.
*/
package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType identifies a server-to-client frame.
type FrameType string

const (
	// TypeSubscribed acknowledges a subscription; its payload is SubscribedPayload.
	TypeSubscribed FrameType = "subscribed"

	// TypeChange carries one backend.Change.
	TypeChange FrameType = "change"

	// TypeError reports a failure; its payload is ErrorPayload.
	TypeError FrameType = "error"
)

// Frame is the envelope of every message sent to a subscriber.
type Frame struct {
	Type      FrameType       `json:"type"`
	Ref       string          `json:"ref"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SubscribedPayload echoes the subscription the relay opened.
type SubscribedPayload struct {
	Table string `json:"table"`
	Event string `json:"event"`
}

// ErrorPayload carries an errs code and message.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewFrame marshals payload into a frame stamped with the current time in unix milliseconds.
func NewFrame(frameType FrameType, ref string, payload any) (Frame, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		raw = b
	}

	return Frame{
		Type:      frameType,
		Ref:       ref,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
