/*
Package chat implements the client side of the real-time chat protocol.

This file defines outbound message dispatch: serializing a chat message into
the protocol's send destination. A successful return means "dispatched to
transport", not "delivered": the caller renders the message optimistically
and reconciles it against the server echo (see reconcile.go).
*/
package chat

import (
	"time"
	"unicode/utf8"

	"mmchat/internal/app/user"
	"mmchat/internal/pkg/errs"
)

// SendMessage publishes a chat message to the shared outbound destination.
// The session must be Connected. There is no server confirmation on this
// path; confirmed messages arrive solely through the room's subscription.
func (s *Session) SendMessage(roomID, content string, sender user.User) error {
	if roomID == "" || content == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if utf8.RuneCountInString(content) > MaxContentRunes {
		return errs.NewError(errs.ErrContentTooLong)
	}

	if s.opts.Limiter != nil && !s.opts.Limiter.AllowChat() {
		s.logger.Warn().Str("room_id", roomID).Msg("Chat message rejected by send limiter.")
		return errs.NewError(errs.ErrSendRateLimited)
	}

	env := Envelope{
		Type:           EventChat,
		ChatRoomID:     roomID,
		SenderID:       sender.ID,
		SenderNickname: sender.Nickname,
		Content:        content,
		Timestamp:      time.Now(),
	}

	if err := s.publishEnvelope(env); err != nil {
		return err
	}

	s.logger.Debug().
		Str("room_id", roomID).
		Int64("sender_id", sender.ID).
		Msg("Chat message dispatched.")

	return nil
}
