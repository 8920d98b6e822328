/*
Package chat implements the client side of the real-time chat protocol.

This file defines RoomFeed, the consumer-side composition for one open chat
screen: seed the reconciler from history, announce presence, subscribe the
reconciling handler to the room's stream, and send messages optimistically
with rollback on dispatch failure.
*/
package chat

import (
	"context"

	"github.com/rs/zerolog"

	"mmchat/internal/app/user"
	"mmchat/internal/pkg/logx"
)

// UpdateHandler receives the full reconciled message list after every
// change, ordered ascending by creation time. It runs on whichever goroutine
// caused the change and must not block.
type UpdateHandler func([]ChatMessage)

// RoomFeed is the live, reconciled view of one room for one local user.
type RoomFeed struct {
	session *Session
	list    *MessageList

	roomID string
	self   user.User

	unsubscribe UnsubscribeFunc
	onUpdate    UpdateHandler

	logger zerolog.Logger
}

// OpenRoomFeed opens the live view of a room: it fetches and seeds the
// message history (when a history client is supplied), announces the user's
// presence, and subscribes to the room's stream. The session must already be
// Connected.
//
// onUpdate is optional; when set it fires once with the seeded history and
// then after every reconciliation.
func OpenRoomFeed(ctx context.Context, session *Session, history *HistoryClient, roomID string, self user.User, onUpdate UpdateHandler) (*RoomFeed, error) {
	feedLogger := logx.Logger().With().
		Str("component", "RoomFeed").
		Str("room_id", roomID).
		Logger()

	feed := &RoomFeed{
		session:  session,
		list:     NewMessageList(roomID),
		roomID:   roomID,
		self:     self,
		onUpdate: onUpdate,
		logger:   feedLogger,
	}

	if history != nil {
		messages, err := history.RoomMessages(ctx, roomID)
		if err != nil {
			return nil, err
		}
		feed.list.Seed(messages)
	}

	if err := session.Join(roomID, self); err != nil {
		return nil, err
	}

	unsubscribe, err := session.SubscribeToRoom(roomID, feed.handleInbound)
	if err != nil {
		// Best effort: withdraw the presence we just announced.
		if leaveErr := session.Leave(roomID, self); leaveErr != nil {
			feedLogger.Warn().Err(leaveErr).Msg("Failed to withdraw presence after subscribe failure.")
		}
		return nil, err
	}
	feed.unsubscribe = unsubscribe

	feed.notify()

	return feed, nil
}

// handleInbound reconciles one confirmed message into the list.
func (f *RoomFeed) handleInbound(msg ChatMessage) {
	f.list.Reconcile(msg)
	f.notify()
}

// Send dispatches a chat message with optimistic local rendering: the entry
// appears in the list immediately and is replaced by its server echo on
// arrival. If the transport dispatch fails, the optimistic entry is rolled
// back and the error returned; the list's length returns to its pre-send
// value.
func (f *RoomFeed) Send(content string) error {
	entry := f.list.AppendLocal(f.self, content)
	f.notify()

	if err := f.session.SendMessage(f.roomID, content, f.self); err != nil {
		f.list.Remove(entry.LocalID)
		f.notify()

		f.logger.Warn().Err(err).Msg("Send failed. Optimistic entry rolled back.")
		return err
	}

	return nil
}

// Messages returns the current reconciled list, ordered ascending by
// creation time.
func (f *RoomFeed) Messages() []ChatMessage {
	return f.list.Messages()
}

// Close tears down the feed: it revokes the subscription and announces the
// user's departure. Safe to call once; the feed must not be used afterwards.
func (f *RoomFeed) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}

	if err := f.session.Leave(f.roomID, f.self); err != nil {
		f.logger.Debug().Err(err).Msg("Leave signal not dispatched during close.")
	}
}

// notify delivers the current snapshot to the update handler.
func (f *RoomFeed) notify() {
	if f.onUpdate == nil {
		return
	}
	f.onUpdate(f.list.Messages())
}
