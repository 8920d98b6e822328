/*
Package chat implements the client side of the real-time chat protocol.

This file defines room membership signaling: JOIN and LEAVE presence
notifications, piggybacked on the shared transport. Both are fire-and-forget,
no acknowledgment is awaited.
*/
package chat

import (
	"fmt"
	"time"

	"mmchat/internal/app/user"
	"mmchat/internal/pkg/errs"
)

// Join announces that the user entered the room. The session must be
// Connected; a dispatch failure surfaces synchronously to the caller, who is
// expected to show a user-facing notification.
func (s *Session) Join(roomID string, u user.User) error {
	return s.sendPresence(EventJoin, roomID, u,
		fmt.Sprintf("%s joined the chat.", u.Nickname))
}

// Leave announces that the user left the room. Same contract as Join.
func (s *Session) Leave(roomID string, u user.User) error {
	return s.sendPresence(EventLeave, roomID, u,
		fmt.Sprintf("%s left the chat.", u.Nickname))
}

// sendPresence builds and publishes a presence envelope.
func (s *Session) sendPresence(eventType EventType, roomID string, u user.User, content string) error {
	if roomID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if s.opts.Limiter != nil && !s.opts.Limiter.AllowPresence() {
		s.logger.Warn().
			Str("room_id", roomID).
			Str("event_type", string(eventType)).
			Msg("Presence signal rejected by send limiter.")
		return errs.NewError(errs.ErrSendRateLimited)
	}

	env := Envelope{
		Type:           eventType,
		ChatRoomID:     roomID,
		SenderID:       u.ID,
		SenderNickname: u.Nickname,
		Content:        content,
		Timestamp:      time.Now(),
	}

	if err := s.publishEnvelope(env); err != nil {
		return err
	}

	s.logger.Debug().
		Str("room_id", roomID).
		Str("event_type", string(eventType)).
		Int64("sender_id", u.ID).
		Msg("Presence signal dispatched.")

	return nil
}
