/*
Package wsrealtime implements backend.Realtime over the relay's websocket protocol.

Every Subscribe opens its own connection to <base>/<table>?event=<KIND> and waits for
the relay's "subscribed" acknowledgement. Change frames are decoded and handed to the
handler on the connection's read goroutine. A dropped connection ends the subscription;
there is no reconnect and no replay.
*/
package wsrealtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/resp"
	"globalchat/internal/relay"
)

// DefaultAckTimeout bounds the wait for the relay's acknowledgement.
const DefaultAckTimeout = 10 * time.Second

// TokenSource returns the session token to present to the relay, or "" for anonymous access.
type TokenSource func(ctx context.Context) (string, error)

// Client dials the relay.
type Client struct {
	baseURL    string
	dialer     *websocket.Dialer
	token      TokenSource
	ackTimeout time.Duration
	logger     zerolog.Logger
}

var _ backend.Realtime = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sends the token as a bearer credential on every dial.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) { c.ackTimeout = d }
}

// New creates a client for the relay's realtime endpoint, e.g. ws://host:8080/realtime.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dialer:     websocket.DefaultDialer,
		ackTimeout: DefaultAckTimeout,
		logger:     logx.Component("ws-realtime"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(table string, kind backend.EventKind) string {
	q := url.Values{}
	q.Set("event", string(kind))
	return fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(table), q.Encode())
}

func (c *Client) Subscribe(ctx context.Context, table string, kind backend.EventKind, handler backend.Handler) (backend.Subscription, error) {
	if handler == nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	header := http.Header{}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.ErrRealtime, err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, httpResp, err := c.dialer.DialContext(ctx, c.endpoint(table, kind), header)
	if err != nil {
		return nil, dialError(httpResp, err)
	}

	ref, err := c.awaitAck(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sub := &subscription{
		conn:    conn,
		ref:     ref,
		table:   table,
		handler: handler,
		logger:  c.logger.With().Str("ref", ref).Str("table", table).Logger(),
	}
	go sub.readLoop()

	sub.logger.Debug().Str("event", string(kind)).Msg("Subscribed")
	return sub, nil
}

// dialError turns a failed handshake into an ErrRealtime error, keeping the relay's
// message when it answered with a JSON envelope.
func dialError(httpResp *http.Response, err error) error {
	if httpResp == nil || httpResp.Body == nil {
		return errs.Wrap(errs.ErrRealtime, err)
	}
	defer httpResp.Body.Close()

	var body resp.JSONResponse
	raw, readErr := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
	if readErr != nil || json.Unmarshal(raw, &body) != nil || body.Message == "" {
		return errs.Wrap(errs.ErrRealtime, fmt.Errorf("%w (HTTP %d)", err, httpResp.StatusCode))
	}

	return errs.Wrap(errs.ErrRealtime, errors.New(body.Message))
}

func (c *Client) awaitAck(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.ackTimeout)); err != nil {
		return "", errs.Wrap(errs.ErrRealtime, err)
	}

	var frame relay.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return "", errs.Wrap(errs.ErrRealtime, fmt.Errorf("waiting for subscription ack: %w", err))
	}

	switch frame.Type {
	case relay.TypeSubscribed:
	case relay.TypeError:
		var payload relay.ErrorPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Message == "" {
			return "", errs.Wrap(errs.ErrRealtime, errors.New("relay rejected the subscription"))
		}
		return "", errs.Wrap(errs.ErrRealtime, errors.New(payload.Message))
	default:
		return "", errs.Wrap(errs.ErrRealtime, fmt.Errorf("unexpected %q frame before ack", frame.Type))
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", errs.Wrap(errs.ErrRealtime, err)
	}
	return frame.Ref, nil
}

type subscription struct {
	conn    *websocket.Conn
	ref     string
	table   string
	handler backend.Handler

	closed atomic.Bool
	once   sync.Once

	logger zerolog.Logger
}

func (s *subscription) readLoop() {
	for {
		var frame relay.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.closed.Load() {
				s.logger.Warn().Err(err).Msg("Realtime connection ended")
			}
			return
		}

		switch frame.Type {
		case relay.TypeChange:
			var change backend.Change
			if err := json.Unmarshal(frame.Payload, &change); err != nil {
				s.logger.Error().Err(err).Msg("Dropping undecodable change frame")
				continue
			}
			if s.closed.Load() {
				return
			}
			s.handler(change)

		case relay.TypeError:
			s.logger.Warn().RawJSON("payload", frame.Payload).Msg("Relay reported an error")

		default:
			s.logger.Debug().Str("frame_type", string(frame.Type)).Msg("Ignoring frame")
		}
	}
}

// Unsubscribe closes the connection. It does not wait for the read goroutine, so it is
// safe to call from inside the handler. Frames read after it returns are dropped.
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe")
		if werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); werr != nil {
			s.logger.Debug().Err(werr).Msg("Failed to send close frame")
		}
		err = s.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
