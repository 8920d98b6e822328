/*
Package chat implements the client side of the real-time chat protocol.

This file defines MessageList, the reconciliation layer for one room. It
merges optimistically sent messages with server-confirmed messages into a
single deduplicated list, always ordered by creation time. Network delivery
order is not chronological order, so the list is re-sorted after every
mutation.
*/
package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mmchat/internal/app/user"
	"mmchat/internal/pkg/logx"
)

// EchoWindow is the maximum clock distance between an optimistic entry and a
// server echo for the two to be considered the same message. Kept as a
// secondary guard: the primary match is the provisional tag plus sender and
// content identity.
const EchoWindow = 2000 * time.Millisecond

// MessageList holds the reconciled message stream for one room.
// It is safe for concurrent use; inbound frames arrive on the transport's
// read goroutine while the consumer appends and reads from its own.
type MessageList struct {
	mu sync.Mutex

	roomID  string
	entries []ChatMessage

	// provisionalSeq feeds the negative provisional MessageID sequence.
	provisionalSeq int64

	logger zerolog.Logger
}

// NewMessageList constructs an empty MessageList for the given room.
func NewMessageList(roomID string) *MessageList {
	listLogger := logx.Logger().With().
		Str("room_id", roomID).
		Logger()

	return &MessageList{
		roomID: roomID,
		logger: listLogger,
	}
}

// Seed replaces the list contents with the room's history, sorted ascending
// by creation time. Called once before live updates begin.
func (l *MessageList) Seed(history []ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]ChatMessage(nil), history...)
	l.sortLocked()
}

// AppendLocal appends an optimistic entry for a message the caller is about
// to send and returns it. The entry carries a provisional MessageID (negative,
// from a per-list sequence) and a LocalID tag for rollback and reconciliation.
func (l *MessageList) AppendLocal(sender user.User, content string) ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.provisionalSeq++

	entry := ChatMessage{
		MessageID:      -l.provisionalSeq,
		ChatRoomID:     l.roomID,
		SenderID:       sender.ID,
		SenderNickname: sender.Nickname,
		Content:        content,
		MessageType:    MessageText,
		CreatedAt:      time.Now(),
		LocalID:        uuid.NewString(),
	}

	l.entries = append(l.entries, entry)
	l.sortLocked()

	return entry
}

// Reconcile merges a server-confirmed message into the list.
//
// Any optimistic entry from the same sender with identical content, a
// different message id, and a creation time within EchoWindow of the incoming
// message is removed first: it was the placeholder for this echo. If an entry
// with the same message id already exists the incoming message is dropped
// (duplicate delivery, e.g. after a resubscribe). The list is re-sorted after
// every change.
func (l *MessageList) Reconcile(incoming ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, entry := range l.entries {
		if l.isEchoOf(entry, incoming) {
			l.logger.Debug().
				Int64("provisional_id", entry.MessageID).
				Int64("message_id", incoming.MessageID).
				Msg("Replacing optimistic entry with server echo.")
			continue
		}
		kept = append(kept, entry)
	}
	l.entries = kept

	for _, entry := range l.entries {
		if entry.MessageID == incoming.MessageID {
			l.sortLocked()
			return
		}
	}

	l.entries = append(l.entries, incoming)
	l.sortLocked()
}

// isEchoOf reports whether entry is the optimistic placeholder for the
// incoming confirmed message.
func (l *MessageList) isEchoOf(entry, incoming ChatMessage) bool {
	if !entry.Provisional() {
		return false
	}

	if entry.SenderID != incoming.SenderID || entry.Content != incoming.Content {
		return false
	}

	if entry.MessageID == incoming.MessageID {
		return false
	}

	delta := incoming.CreatedAt.Sub(entry.CreatedAt)
	if delta < 0 {
		delta = -delta
	}

	return delta <= EchoWindow
}

// Remove deletes the optimistic entry tagged with localID. Used to roll back
// a send whose transport dispatch failed. Returns true if an entry was removed.
func (l *MessageList) Remove(localID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, entry := range l.entries {
		if entry.LocalID == localID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}

	return false
}

// Messages returns a snapshot of the list, ordered ascending by creation time.
func (l *MessageList) Messages() []ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]ChatMessage(nil), l.entries...)
}

// Len returns the current number of entries.
func (l *MessageList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// sortLocked re-sorts entries ascending by creation time. Stable so that
// same-timestamp messages keep their arrival order.
func (l *MessageList) sortLocked() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].CreatedAt.Before(l.entries[j].CreatedAt)
	})
}
