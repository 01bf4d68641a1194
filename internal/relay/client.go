/*
Package relay fans realtime table changes out to websocket subscribers.

This file defines the Client, one websocket subscriber. WritePump drains the send
queue and keeps the heartbeat; ReadPump only watches for pongs and the close frame.
*/
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// subscribers send nothing but control frames.
	maxMessageSize = 512

	sendQueueSize = 256
)

// Client is one websocket subscriber of a channel.
type Client struct {
	// Ref identifies the subscription in every frame sent to this client.
	Ref string

	channel *Channel
	conn    *websocket.Conn

	// userID is empty for anonymous subscribers.
	userID string

	// send is closed by the channel's Run loop when the client is removed.
	send chan []byte

	logger zerolog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, userID string) *Client {
	ref := randx.SubscriptionRef()

	return &Client{
		Ref:    ref,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
		logger: logx.Component("subscriber").With().Str("ref", ref).Str("user_id", userID).Logger(),
	}
}

// ReadPump consumes control frames until the connection fails or the peer closes it,
// then detaches the client from its channel.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}
	}
}

func (c *Client) cleanupOnDisconnect() {
	if c.channel != nil {
		c.channel.leave(c)
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames and periodic pings until the send queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendFrame queues a frame without blocking. Only the owning channel's Run loop calls it.
func (c *Client) sendFrame(frameType FrameType, payload any) error {
	frame, err := NewFrame(frameType, c.Ref, payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error building frame for client")
		return err
	}

	frameBytes, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling frame for client")
		return err
	}

	select {
	case c.send <- frameBytes:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return fmt.Errorf("client send queue full")
	}
}

// Reject writes an error frame directly to the connection and closes it. It is used
// when the client never got attached to a channel.
func (c *Client) Reject(err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	frame, frameErr := NewFrame(TypeError, c.Ref, ErrorPayload{Code: customErr.Code, Message: customErr.Message})
	if frameErr == nil {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to write rejection frame")
			}
		}
	}

	closeMessage := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, customErr.Message)
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write close frame")
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error in Reject")
	}
}
