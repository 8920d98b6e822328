/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize error reporting toward the embedding application.
*/
package errs

// errorMap stores the detailed CustomError struct corresponding to every
// client error code. The key is the error code (int), and the value carries
// the user-facing message template.
var errorMap = map[int]CustomError{
	// 1xxx: Configuration and Request Errors
	ErrInvalidConfig:       {Code: ErrInvalidConfig, Message: "Invalid chat client configuration: %s."},
	ErrInvalidParams:       {Code: ErrInvalidParams, Message: "Invalid arguments."},
	ErrHistoryFetchFailed:  {Code: ErrHistoryFetchFailed, Message: "Could not load chat history. Please try again."},
	ErrHistoryDecodeFailed: {Code: ErrHistoryDecodeFailed, Message: "Chat history response was malformed."},

	// 2xxx: Connection and Transport Errors
	ErrNotConnected:     {Code: ErrNotConnected, Message: "Chat is not connected. Please wait for the connection."},
	ErrConnectFailed:    {Code: ErrConnectFailed, Message: "Could not connect to chat. Check your connection."},
	ErrSessionClosed:    {Code: ErrSessionClosed, Message: "Chat session was closed."},
	ErrHeartbeatTimeout: {Code: ErrHeartbeatTimeout, Message: "Chat connection timed out."},
	ErrBrokerRejected:   {Code: ErrBrokerRejected, Message: "Chat server rejected the connection: %s"},

	// 3xxx: Subscription and Routing Errors
	ErrRoomAlreadySubscribed: {Code: ErrRoomAlreadySubscribed, Message: "This chat room is already open."},
	ErrFrameDecodeFailed:     {Code: ErrFrameDecodeFailed, Message: "Received a malformed chat message."},

	// 4xxx: Publish Errors
	ErrSendQueueFull:   {Code: ErrSendQueueFull, Message: "Message could not be sent. Check your connection."},
	ErrSendRateLimited: {Code: ErrSendRateLimited, Message: "You are sending messages too quickly. Please slow down."},
	ErrContentTooLong:  {Code: ErrContentTooLong, Message: "Message is too long."},

	// 5xxx: Internal Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again."},
}
