/*
Package user contains the data structure describing a chat participant.

It defines the basic representation of a user as the chat backend knows it,
used when signing outbound events and attributing inbound messages.
*/
package user

// User represents the identity of a chat participant.
// Fields use JSON tags matching the backend's wire format.
type User struct {
	// ID is the server-assigned numeric identifier of the user.
	ID int64 `json:"id"`

	// Nickname is the display name shown next to the user's messages.
	Nickname string `json:"nickname"`
}
