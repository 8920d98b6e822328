/*
Package limiter provides client-side rate limiting for outbound chat traffic.

It utilizes the Token Bucket algorithm (rate.Limiter) to keep a misbehaving
caller (or a stuck retry loop) from flooding the shared connection with
publishes. Presence signals and chat messages draw from separate buckets so a
burst of room switches cannot starve message sends.
*/
package limiter

import (
	"golang.org/x/time/rate"
)

// SendLimiter caps the rate of outbound publishes for a single session.
type SendLimiter struct {
	// chat limits CHAT message publishes.
	chat *rate.Limiter

	// presence limits JOIN/LEAVE publishes.
	presence *rate.Limiter
}

// NewSendLimiter creates and returns a new SendLimiter instance.
// It accepts the sustained rate r (events per second) and burst capacity b,
// applied independently to the chat and presence buckets.
func NewSendLimiter(r rate.Limit, b int) *SendLimiter {
	return &SendLimiter{
		chat:     rate.NewLimiter(r, b),
		presence: rate.NewLimiter(r, b),
	}
}

// AllowChat reports whether one chat message may be published now.
func (l *SendLimiter) AllowChat() bool {
	return l.chat.Allow()
}

// AllowPresence reports whether one presence signal may be published now.
func (l *SendLimiter) AllowPresence() bool {
	return l.presence.Allow()
}
