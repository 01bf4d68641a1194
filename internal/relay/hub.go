/*
Package relay fans realtime table changes out to websocket subscribers.

This file defines the Hub, which owns one Channel per table and event kind. A channel
is created on the first subscriber, holds a single upstream subscription, and removes
itself from the hub after staying empty for the inactivity timeout.
*/
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

// ChannelInactivityTimeout is how long an empty channel keeps its upstream subscription.
const ChannelInactivityTimeout = 2 * time.Minute

// Hub coordinates all active channels.
type Hub struct {
	// source is the upstream change feed.
	source backend.Realtime

	// channels maps ChannelKey to the running channel.
	channels map[string]*Channel

	// mu protects channels.
	mu sync.Mutex

	// cleanup receives channels whose run loop has finished.
	cleanup chan *Channel

	inactivity time.Duration
	closed     bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewHub creates a hub reading from source and starts its cleanup loop.
func NewHub(source backend.Realtime) *Hub {
	h := &Hub{
		source:     source,
		channels:   make(map[string]*Channel),
		cleanup:    make(chan *Channel, 16),
		inactivity: ChannelInactivityTimeout,
		logger:     logx.Component("hub"),
	}

	h.wg.Add(1)
	go h.runCleanupLoop()

	return h
}

// ChannelKey names the channel for table and kind.
func ChannelKey(table string, kind backend.EventKind) string {
	return table + ":" + string(kind)
}

func (h *Hub) runCleanupLoop() {
	defer h.wg.Done()

	for ch := range h.cleanup {
		h.deleteChannel(ch)
	}
}

// deleteChannel drops ch unless it was already replaced by a newer channel for the same key.
func (h *Hub) deleteChannel(ch *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.channels[ch.Key]; ok && current == ch {
		delete(h.channels, ch.Key)
		h.logger.Info().Str("channel", ch.Key).Msg("Channel removed.")
	}
}

// Attach registers client on the channel for table and kind, creating the channel and
// its upstream subscription when needed. The hub lock is not held while the channel's
// Run loop takes the client.
func (h *Hub) Attach(ctx context.Context, table string, kind backend.EventKind, client *Client) error {
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := h.channelFor(ctx, table, kind)
		if err != nil {
			return err
		}

		client.channel = ch
		if ch.register(client) {
			return nil
		}

		// The channel shut down between lookup and registration.
		h.deleteChannel(ch)
	}

	return errs.Wrap(errs.ErrRealtime, errChannelBusy)
}

// channelFor returns the live channel for table and kind, creating it if there is none.
func (h *Hub) channelFor(ctx context.Context, table string, kind backend.EventKind) (*Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errs.Wrap(errs.ErrRealtime, errHubClosed)
	}

	if ch, ok := h.channels[ChannelKey(table, kind)]; ok && !ch.Finished() {
		return ch, nil
	}
	return h.createChannel(ctx, table, kind)
}

// createChannel must be called with h.mu held.
func (h *Hub) createChannel(ctx context.Context, table string, kind backend.EventKind) (*Channel, error) {
	ch := newChannel(table, kind, h.cleanup, h.inactivity)

	upstream, err := h.source.Subscribe(ctx, table, kind, ch.Publish)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", ch.Key).Msg("Upstream subscription failed.")
		if errs.CodeOf(err) == errs.ErrUnknown {
			return nil, errs.Wrap(errs.ErrRealtime, err)
		}
		return nil, err
	}
	ch.upstream = upstream

	h.channels[ch.Key] = ch
	go ch.Run()

	h.logger.Info().Str("channel", ch.Key).Msg("Channel created and started.")
	return ch, nil
}

// ChannelCount returns the number of live channels.
func (h *Hub) ChannelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Shutdown stops every channel and waits for the cleanup loop to exit.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	channels := h.channels
	h.channels = make(map[string]*Channel)
	h.mu.Unlock()

	for _, ch := range channels {
		ch.Stop()
		<-ch.done
	}

	close(h.cleanup)
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}
