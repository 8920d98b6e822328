/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific chat-client failures both internally and
toward the embedding application, grouped by the layer they originate from.
*/
package errs

// 1xxx: Configuration and Request Errors
const (
	// ErrInvalidConfig indicates that the client configuration failed validation.
	ErrInvalidConfig = 1001

	// ErrInvalidParams indicates that a caller supplied invalid arguments (e.g., empty room id).
	ErrInvalidParams = 1002

	// ErrHistoryFetchFailed indicates that the room message history request failed.
	ErrHistoryFetchFailed = 1101

	// ErrHistoryDecodeFailed indicates that the history response body could not be decoded.
	ErrHistoryDecodeFailed = 1102
)

// 2xxx: Connection and Transport Errors
const (
	// ErrNotConnected indicates that an operation requiring a live session was
	// attempted while the session is not in the Connected state.
	ErrNotConnected = 2001

	// ErrConnectFailed indicates that a connection attempt did not reach the Connected state.
	ErrConnectFailed = 2002

	// ErrSessionClosed indicates that the session was explicitly disconnected
	// while callers were still waiting on a pending connection attempt.
	ErrSessionClosed = 2003

	// ErrHeartbeatTimeout indicates that the server stopped sending heartbeats
	// and the connection was treated as lost.
	ErrHeartbeatTimeout = 2004

	// ErrBrokerRejected indicates a protocol-level ERROR frame from the server
	// (e.g., authentication rejection after the handshake).
	ErrBrokerRejected = 2005
)

// 3xxx: Subscription and Routing Errors
const (
	// ErrRoomAlreadySubscribed indicates a second subscribe for a room that
	// already has an active subscription. Unsubscribe first.
	ErrRoomAlreadySubscribed = 3001

	// ErrFrameDecodeFailed indicates that an inbound frame body could not be
	// decoded into a chat message. The frame is dropped, the session stays up.
	ErrFrameDecodeFailed = 3002
)

// 4xxx: Publish Errors
const (
	// ErrSendQueueFull indicates that the outbound queue is saturated and the
	// message was not dispatched.
	ErrSendQueueFull = 4001

	// ErrSendRateLimited indicates that the client-side send budget is exhausted.
	ErrSendRateLimited = 4002

	// ErrContentTooLong indicates that the message content exceeded the maximum length.
	ErrContentTooLong = 4003
)

// 5xxx: Internal Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
