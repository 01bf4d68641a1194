/*
Package relay fans realtime table changes out to websocket subscribers.

This file defines the Channel, the hub for one table and event kind. Its Run loop owns
the subscriber set: it registers and unregisters clients, forwards upstream changes
to every subscriber, and shuts down once it has been empty for the inactivity timeout.
*/
package relay

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/logx"
)

const broadcastChannelBuffer = 1024

var (
	errHubClosed   = errors.New("relay is shutting down")
	errChannelBusy = errors.New("channel is restarting, try again")
)

// Channel relays the changes of one table and event kind.
type Channel struct {
	// Key is ChannelKey(Table, Kind).
	Key   string
	Table string
	Kind  backend.EventKind

	// clients is only touched by the Run loop.
	clients map[*Client]struct{}

	// upstream changes waiting to be forwarded.
	broadcast chan backend.Change

	registerChan   chan *Client
	unregisterChan chan *Client

	// cleanupChan notifies the hub that the run loop finished.
	cleanupChan chan<- *Channel

	// upstream is the subscription feeding Publish.
	upstream backend.Subscription

	stopChan chan struct{}
	done     chan struct{}

	inactivity    time.Duration
	shutdownTimer *time.Timer

	logger zerolog.Logger
}

func newChannel(table string, kind backend.EventKind, cleanupChan chan<- *Channel, inactivity time.Duration) *Channel {
	key := ChannelKey(table, kind)

	return &Channel{
		Key:            key,
		Table:          table,
		Kind:           kind,
		clients:        make(map[*Client]struct{}),
		broadcast:      make(chan backend.Change, broadcastChannelBuffer),
		registerChan:   make(chan *Client),
		unregisterChan: make(chan *Client),
		cleanupChan:    cleanupChan,
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
		inactivity:     inactivity,
		shutdownTimer:  time.NewTimer(inactivity),
		logger:         logx.Component("channel").With().Str("channel", key).Logger(),
	}
}

// Publish queues an upstream change. It never blocks the upstream dispatcher; when the
// buffer is full the change is dropped.
func (ch *Channel) Publish(change backend.Change) {
	select {
	case <-ch.done:
		return
	default:
	}

	select {
	case ch.broadcast <- change:
	case <-ch.done:
	default:
		ch.logger.Warn().Str("event", string(change.Kind)).Msg("Broadcast buffer full, dropping change.")
	}
}

// Stop terminates the Run loop.
func (ch *Channel) Stop() {
	select {
	case <-ch.stopChan:
	default:
		close(ch.stopChan)
	}
}

// Finished reports whether the Run loop has exited.
func (ch *Channel) Finished() bool {
	select {
	case <-ch.done:
		return true
	default:
		return false
	}
}

// register hands client to the Run loop. It returns false if the loop already exited.
func (ch *Channel) register(client *Client) bool {
	select {
	case ch.registerChan <- client:
		return true
	case <-ch.done:
		return false
	}
}

// leave hands client back to the Run loop; it is a no-op once the loop exited.
func (ch *Channel) leave(client *Client) {
	select {
	case ch.unregisterChan <- client:
	case <-ch.done:
	}
}

// Run is the channel's event loop.
func (ch *Channel) Run() {
	defer ch.finish()

	for {
		select {
		case client := <-ch.registerChan:
			ch.addClient(client)

		case client := <-ch.unregisterChan:
			ch.removeClient(client, "Client left channel.")

		case change := <-ch.broadcast:
			ch.forward(change)

		case <-ch.shutdownTimer.C:
			ch.logger.Info().Msgf("Channel inactivity timeout (%s) reached. Shutting down.", ch.inactivity)
			return

		case <-ch.stopChan:
			ch.logger.Info().Msg("Channel forced stop initiated.")
			return
		}
	}
}

func (ch *Channel) finish() {
	ch.shutdownTimer.Stop()

	if ch.upstream != nil {
		if err := ch.upstream.Unsubscribe(); err != nil {
			ch.logger.Warn().Err(err).Msg("Upstream unsubscribe failed.")
		}
	}

	select {
	case ch.cleanupChan <- ch:
	default:
		ch.logger.Warn().Msg("Hub cleanup channel full. Skipping cleanup notification.")
	}

	for client := range ch.clients {
		close(client.send)
	}
	ch.clients = nil

	close(ch.done)
	ch.logger.Info().Msg("Channel Run loop finished.")
}

func (ch *Channel) addClient(client *Client) {
	if ch.shutdownTimer.Stop() {
		select {
		case <-ch.shutdownTimer.C:
		default:
		}
	}

	ch.clients[client] = struct{}{}

	ch.logger.Info().
		Str("ref", client.Ref).
		Str("user_id", client.userID).
		Int("total_clients", len(ch.clients)).
		Msg("Client joined channel.")

	ack := SubscribedPayload{Table: ch.Table, Event: string(ch.Kind)}
	if err := client.sendFrame(TypeSubscribed, ack); err != nil {
		ch.removeClient(client, "Client dropped before acknowledgement.")
	}
}

func (ch *Channel) removeClient(client *Client, reason string) {
	if _, ok := ch.clients[client]; !ok {
		return
	}

	delete(ch.clients, client)
	close(client.send)

	ch.logger.Info().
		Str("ref", client.Ref).
		Int("total_clients", len(ch.clients)).
		Msg(reason)

	if len(ch.clients) == 0 {
		ch.shutdownTimer.Reset(ch.inactivity)
	}
}

func (ch *Channel) forward(change backend.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		ch.logger.Error().Err(err).Msg("Error marshaling change for broadcast.")
		return
	}

	for client := range ch.clients {
		if err := client.sendFrame(TypeChange, json.RawMessage(payload)); err != nil {
			ch.removeClient(client, "Client send queue full, unregistering.")
		}
	}
}
