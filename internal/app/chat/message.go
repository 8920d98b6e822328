/*
Package chat implements the client side of the real-time chat protocol: a
shared transport session over one WebSocket, per-room subscriptions
multiplexed on it, presence signaling, and reconciliation of optimistically
sent messages against their server echoes.

This file defines the wire-level data structures: the outbound event envelope
and the inbound chat message, matching the backend's JSON shapes.
*/
package chat

import (
	"time"
)

// EventType classifies an outbound envelope.
type EventType string

const (
	// EventChat carries a chat message.
	EventChat EventType = "CHAT"

	// EventJoin announces that a user entered the room.
	EventJoin EventType = "JOIN"

	// EventLeave announces that a user left the room.
	EventLeave EventType = "LEAVE"
)

// MessageType classifies the content of a confirmed chat message.
type MessageType string

const (
	// MessageText is a plain text message.
	MessageText MessageType = "TEXT"

	// MessageImage is an image message.
	MessageImage MessageType = "IMAGE"

	// MessageFile is a file message.
	MessageFile MessageType = "FILE"
)

const (
	// PublishDestination is the single publish address for all outbound event types.
	PublishDestination = "/pub/chat/message"

	// roomDestinationPrefix prefixes every per-room inbound destination.
	roomDestinationPrefix = "/sub/chat/room/"

	// MaxContentRunes bounds the length of outbound message content.
	MaxContentRunes = 1000
)

// RoomDestination derives the inbound destination for a room identifier.
// The mapping is deterministic: exactly one destination per room.
func RoomDestination(roomID string) string {
	return roomDestinationPrefix + roomID
}

// Envelope is the frame body sent to the server for any outbound event.
// It is constructed fresh per send and not retained.
type Envelope struct {
	Type           EventType `json:"type"`
	ChatRoomID     string    `json:"chatRoomId"`
	SenderID       int64     `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// ChatMessage is a message in a room's stream, either confirmed by the
// server or optimistically rendered before confirmation.
type ChatMessage struct {
	// MessageID is the server-assigned identifier for confirmed messages.
	// Optimistic entries carry a negative provisional value until their echo
	// arrives; the two ranges never collide.
	MessageID int64 `json:"messageId"`

	ChatRoomID     string      `json:"chatRoomId"`
	SenderID       int64       `json:"senderId"`
	SenderNickname string      `json:"senderNickname"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	CreatedAt      time.Time   `json:"createdAt"`
	IsRead         bool        `json:"isRead"`

	// LocalID tags optimistic entries with a client-generated identity so
	// reconciliation can tell them apart from confirmed messages without
	// relying on the timestamp heuristic alone. Empty on confirmed messages;
	// never sent on the wire.
	LocalID string `json:"-"`
}

// Provisional reports whether the message is an optimistic local entry that
// has not been confirmed by the server yet.
func (m ChatMessage) Provisional() bool {
	return m.LocalID != ""
}
