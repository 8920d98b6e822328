/*
Package chat implements the client side of the real-time chat protocol.

This file defines the subscription registry: the mapping from room
identifiers to active message routes over the shared transport. Each room has
exactly one inbound destination and at most one registered handler; the
unsubscribe capability returned by SubscribeToRoom is the sole cancellation
primitive.
*/
package chat

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mmchat/internal/app/stomp"
	"mmchat/internal/pkg/errs"
)

// UnsubscribeFunc revokes a room subscription. Calling it more than once is
// a no-op. After it returns, the registry stops routing frames to the
// handler: a frame arriving for the dead route is dropped. A handler
// invocation already begun on the read goroutine may still complete.
type UnsubscribeFunc func()

// roomSubscription is one registry entry: an active interest in a room's
// message stream.
type roomSubscription struct {
	// id is the protocol-level subscription identifier sent in SUBSCRIBE.
	id string

	// roomID keys the registry entry.
	roomID string

	// destination is the room's inbound destination.
	destination string

	// handler receives one ChatMessage per inbound frame.
	handler MessageHandler

	// mu guards active against concurrent unsubscribe and delivery.
	mu sync.Mutex

	// active is cleared exactly once, by unsubscribe or session teardown.
	active bool
}

// deactivate marks the subscription dead. Safe to call repeatedly.
func (sub *roomSubscription) deactivate() {
	sub.mu.Lock()
	sub.active = false
	sub.mu.Unlock()
}

// deliver invokes the handler unless the subscription has been deactivated.
func (sub *roomSubscription) deliver(msg ChatMessage) bool {
	sub.mu.Lock()
	active := sub.active
	sub.mu.Unlock()

	if !active {
		return false
	}

	sub.handler(msg)
	return true
}

// SubscribeToRoom registers onMessage as the handler for the room's inbound
// destination and sends the protocol-level SUBSCRIBE. The session must be
// Connected; callers await Connect first. A room may hold only one active
// subscription: a second subscribe for the same room identifier is rejected,
// the caller must unsubscribe first.
//
// The returned capability revokes the route and releases the protocol-level
// subscription. It is idempotent.
func (s *Session) SubscribeToRoom(roomID string, onMessage MessageHandler) (UnsubscribeFunc, error) {
	if roomID == "" || onMessage == nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	s.mu.Lock()

	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, errs.NewError(errs.ErrNotConnected)
	}

	if _, exists := s.subs[roomID]; exists {
		s.mu.Unlock()
		return nil, errs.NewError(errs.ErrRoomAlreadySubscribed)
	}

	sub := &roomSubscription{
		id:          "sub-" + uuid.NewString(),
		roomID:      roomID,
		destination: RoomDestination(roomID),
		handler:     onMessage,
		active:      true,
	}
	s.subs[roomID] = sub

	s.mu.Unlock()

	if err := s.publish(subscribeFrame(sub)); err != nil {
		s.mu.Lock()
		if current, ok := s.subs[roomID]; ok && current == sub {
			delete(s.subs, roomID)
		}
		s.mu.Unlock()
		sub.deactivate()
		return nil, err
	}

	s.logger.Info().
		Str("room_id", roomID).
		Str("subscription_id", sub.id).
		Msg("Subscribed to room.")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.unsubscribe(sub)
		})
	}

	return unsubscribe, nil
}

// unsubscribe removes the registry entry and releases the protocol-level
// subscription if the route is still current.
func (s *Session) unsubscribe(sub *roomSubscription) {
	sub.deactivate()

	s.mu.Lock()
	current, ok := s.subs[sub.roomID]
	if ok && current == sub {
		delete(s.subs, sub.roomID)
	} else {
		// The registry was already cleared (explicit disconnect) or the room
		// was re-subscribed; nothing to release.
		ok = false
	}
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !ok {
		return
	}

	if connected {
		frame := stomp.NewFrame(stomp.CmdUnsubscribe)
		frame.Headers[stomp.HdrID] = sub.id

		if err := s.publish(frame.Marshal()); err != nil {
			s.logger.Warn().Err(err).
				Str("room_id", sub.roomID).
				Msg("Failed to send UNSUBSCRIBE frame. Route removed locally.")
		}
	}

	s.logger.Info().
		Str("room_id", sub.roomID).
		Str("subscription_id", sub.id).
		Msg("Unsubscribed from room.")
}

// subscribeFrame renders the SUBSCRIBE frame for a registry entry.
func subscribeFrame(sub *roomSubscription) []byte {
	frame := stomp.NewFrame(stomp.CmdSubscribe)
	frame.Headers[stomp.HdrID] = sub.id
	frame.Headers[stomp.HdrDestination] = sub.destination
	return frame.Marshal()
}

// dispatchInbound routes a MESSAGE frame to the handler registered for its
// destination. Frames for unknown or deactivated routes are dropped, as are
// frames whose body fails to decode; neither affects the session.
func (s *Session) dispatchInbound(frame *stomp.Frame) {
	destination := frame.Header(stomp.HdrDestination)

	roomID := strings.TrimPrefix(destination, roomDestinationPrefix)
	if roomID == destination || roomID == "" {
		s.logger.Debug().Str("destination", destination).Msg("Dropping frame for unroutable destination.")
		return
	}

	s.mu.Lock()
	sub := s.subs[roomID]
	s.mu.Unlock()

	if sub == nil {
		s.logger.Debug().Str("room_id", roomID).Msg("Dropping frame for unsubscribed room.")
		return
	}

	var msg ChatMessage
	if err := json.Unmarshal(frame.Body, &msg); err != nil {
		s.logger.Warn().Err(err).
			Str("room_id", roomID).
			Msg("Dropping frame with undecodable body.")
		return
	}

	if msg.MessageType == "" {
		msg.MessageType = MessageText
	}

	if !sub.deliver(msg) {
		s.logger.Debug().Str("room_id", roomID).Msg("Dropping frame for deactivated subscription.")
	}
}
