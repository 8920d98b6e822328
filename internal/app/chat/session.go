/*
Package chat implements the client side of the real-time chat protocol.

This file defines the Session struct, the shared transport session. It owns
the single WebSocket connection to the backend's messaging endpoint, drives
the STOMP handshake, runs the read and write pumps with bidirectional
heartbeats, and recovers from unexpected connection loss with a fixed-delay
reconnect loop. One Session is constructed at application startup and passed
to every component needing chat functionality.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mmchat/internal/app/stomp"
	"mmchat/internal/pkg/auth"
	"mmchat/internal/pkg/errs"
	"mmchat/internal/pkg/limiter"
	"mmchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to answer the STOMP handshake.
	handshakeWait = 10 * time.Second

	// maximum allowed size (in bytes) of a frame sent by the server.
	maxFrameSize = 65536

	// DefaultReconnectDelay is the fixed pause between automatic reconnection attempts.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultHeartbeat is the interval offered for heartbeats in each direction.
	DefaultHeartbeat = 4 * time.Second

	// DefaultSendQueueSize is the outbound queue depth per connection.
	DefaultSendQueueSize = 256
)

// State describes the transport session's connection state.
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = iota

	// StateConnecting means a connection attempt (initial or automatic) is in flight.
	StateConnecting

	// StateConnected means the STOMP handshake completed and traffic may flow.
	StateConnected

	// StateFailed means the last explicit connection attempt failed.
	// A fresh Connect call re-attempts from this state.
	StateFailed
)

// String returns the state's name for logs and status displays.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is an out-of-band connection event delivered to status listeners:
// a state transition, or an asynchronous protocol error while connected.
type Status struct {
	// State is the session state after the event.
	State State

	// Err carries the cause for loss/failure events and protocol errors.
	// Nil on clean transitions.
	Err error
}

// StatusHandler observes Status events. Handlers run on transport goroutines
// and must not block.
type StatusHandler func(Status)

// MessageHandler receives one confirmed chat message per inbound frame for a
// subscribed room.
type MessageHandler func(ChatMessage)

// Options configures a Session.
type Options struct {
	// Endpoint is the WebSocket URL of the messaging endpoint.
	Endpoint string

	// Tokens supplies the bearer token, read fresh on every connection attempt.
	Tokens auth.TokenProvider

	// ReconnectDelay is the fixed pause between automatic reconnect attempts.
	// Zero selects DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// HeartbeatOutgoing and HeartbeatIncoming are the offered heartbeat
	// intervals; the effective values are negotiated with the server.
	// Zero selects DefaultHeartbeat.
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration

	// SendQueueSize is the outbound queue depth. Zero selects DefaultSendQueueSize.
	SendQueueSize int

	// Limiter caps outbound publish rates. Nil disables client-side limiting.
	Limiter *limiter.SendLimiter
}

// withDefaults fills unset option fields.
func (o Options) withDefaults() Options {
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.HeartbeatOutgoing == 0 {
		o.HeartbeatOutgoing = DefaultHeartbeat
	}
	if o.HeartbeatIncoming == 0 {
		o.HeartbeatIncoming = DefaultHeartbeat
	}
	if o.SendQueueSize == 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	return o
}

// Session owns the shared transport connection and the subscription registry.
type Session struct {
	opts Options

	// mu protects all mutable state below.
	mu sync.Mutex

	// state is the connection state machine; only the Session itself
	// transitions it.
	state State

	// conn is the current WebSocket connection, nil unless Connected.
	conn *websocket.Conn

	// send is the outbound queue for the current connection.
	send chan []byte

	// stop is closed when the current connection is torn down.
	stop chan struct{}

	// gen counts connections; pumps of a stale generation stand down.
	gen uint64

	// wantConnected records whether the session should hold a connection:
	// set by Connect, cleared by Disconnect. Guards the reconnect loop.
	wantConnected bool

	// waiters holds one channel per caller blocked in Connect; all are
	// resolved together when the in-flight attempt settles.
	waiters []chan error

	// subs is the subscription registry, keyed by room identifier.
	subs map[string]*roomSubscription

	// statusHandlers receive out-of-band connection events.
	statusHandlers []StatusHandler

	// structured logger with session context.
	logger zerolog.Logger
}

// NewSession constructs a Session. It does not connect; call Connect.
func NewSession(opts Options) (*Session, error) {
	if opts.Endpoint == "" {
		return nil, errs.NewError(errs.ErrInvalidConfig, "endpoint must not be empty")
	}
	if opts.Tokens == nil {
		return nil, errs.NewError(errs.ErrInvalidConfig, "token provider must not be nil")
	}

	sessionLogger := logx.Logger().With().
		Str("component", "Session").
		Str("endpoint", opts.Endpoint).
		Logger()

	return &Session{
		opts:   opts.withDefaults(),
		state:  StateDisconnected,
		subs:   make(map[string]*roomSubscription),
		logger: sessionLogger,
	}, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is in the Connected state.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// OnStatus registers a listener for out-of-band connection events.
// Registration is permanent for the session's lifetime.
func (s *Session) OnStatus(handler StatusHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandlers = append(s.statusHandlers, handler)
}

// emitStatus delivers a Status event to all registered listeners.
func (s *Session) emitStatus(status Status) {
	s.mu.Lock()
	handlers := append([]StatusHandler(nil), s.statusHandlers...)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(status)
	}
}

// Connect brings the session to the Connected state. It is idempotent:
// while Connected it returns immediately, and while Connecting it attaches
// to the pending attempt instead of starting a second one, so concurrent
// callers resolve together against a single underlying connection attempt.
// From Disconnected or Failed it starts a fresh attempt.
//
// A done ctx abandons the wait only; the attempt itself keeps running and
// settles the state machine.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()

	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil

	case StateConnecting:
		waiter := make(chan error, 1)
		s.waiters = append(s.waiters, waiter)
		s.mu.Unlock()
		return awaitWaiter(ctx, waiter)

	default: // StateDisconnected, StateFailed
		s.state = StateConnecting
		s.wantConnected = true
		gen := s.gen
		waiter := make(chan error, 1)
		s.waiters = append(s.waiters, waiter)
		s.mu.Unlock()

		go s.runConnectAttempt(gen)

		return awaitWaiter(ctx, waiter)
	}
}

// awaitWaiter blocks until the pending attempt settles or ctx is done.
func awaitWaiter(ctx context.Context, waiter <-chan error) error {
	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runConnectAttempt performs one explicit connection attempt and settles the
// state machine and all pending waiters.
func (s *Session) runConnectAttempt(gen uint64) {
	err := s.establish(gen)
	if err != nil {
		connectErr := errs.NewError(errs.ErrConnectFailed)
		s.logger.Error().Err(err).Msg("Connection attempt failed.")

		s.mu.Lock()
		failed := s.state == StateConnecting
		if failed {
			s.state = StateFailed
		}
		s.settleWaitersLocked(connectErr)
		s.mu.Unlock()

		// A Disconnect that aborted the attempt already settled the state
		// machine; only an attempt that actually failed reports Failed.
		if failed {
			s.emitStatus(Status{State: StateFailed, Err: connectErr})
		}
		return
	}

	s.mu.Lock()
	s.settleWaitersLocked(nil)
	s.mu.Unlock()

	s.emitStatus(Status{State: StateConnected})
}

// settleWaitersLocked resolves every pending Connect waiter with err.
// Caller must hold mu.
func (s *Session) settleWaitersLocked(err error) {
	for _, waiter := range s.waiters {
		waiter <- err
	}
	s.waiters = nil
}

// establish dials the endpoint, performs the STOMP handshake, and on success
// installs the new connection and starts its pumps. The attempt is bound to
// the generation it was started for: if the generation moved on while the
// handshake was in flight (explicit Disconnect, or a newer attempt took
// over), the connection is discarded instead of installed. The bearer token
// is read from the provider at call time, never cached across attempts.
func (s *Session) establish(expectGen uint64) error {
	token, err := s.opts.Tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to read bearer token: %w", err)
	}

	if auth.NearingExpiry(token) {
		s.logger.Warn().
			Time("token_expiry", auth.ExpiresAt(token)).
			Msg("Bearer token is near or past expiry. The server may reject this connection.")
	}

	endpointURL, err := url.Parse(s.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.opts.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.opts.Endpoint, err)
	}

	conn.SetReadLimit(maxFrameSize)

	connected, err := s.handshake(conn, endpointURL.Host, token)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Error closing connection after failed handshake.")
		}
		return err
	}

	outgoing, incoming := stomp.NegotiateHeartBeat(
		s.opts.HeartbeatOutgoing,
		s.opts.HeartbeatIncoming,
		connected.Header(stomp.HdrHeartBeat),
	)

	s.mu.Lock()

	if !s.wantConnected || s.gen != expectGen {
		// Disconnect was called, or a newer attempt superseded this one,
		// while the handshake was in flight.
		s.mu.Unlock()
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Error closing abandoned connection.")
		}
		return errs.NewError(errs.ErrSessionClosed)
	}

	s.gen++
	gen := s.gen
	s.conn = conn
	s.send = make(chan []byte, s.opts.SendQueueSize)
	s.stop = make(chan struct{})
	s.state = StateConnected

	// Re-establish routes that survived an automatic reconnect.
	for _, sub := range s.subs {
		s.send <- subscribeFrame(sub)
	}

	sendQueue := s.send
	stop := s.stop
	s.mu.Unlock()

	s.logger.Info().
		Uint64("conn_gen", gen).
		Dur("heartbeat_out", outgoing).
		Dur("heartbeat_in", incoming).
		Msg("Session connected.")

	go s.readPump(conn, gen, incoming)
	go s.writePump(conn, gen, outgoing, sendQueue, stop)

	return nil
}

// handshake sends the CONNECT frame and waits for CONNECTED or ERROR.
func (s *Session) handshake(conn *websocket.Conn, host, token string) (*stomp.Frame, error) {
	connect := stomp.NewFrame(stomp.CmdConnect)
	connect.Headers[stomp.HdrAcceptVersion] = "1.2"
	connect.Headers[stomp.HdrHost] = host
	connect.Headers[stomp.HdrHeartBeat] = stomp.FormatHeartBeat(s.opts.HeartbeatOutgoing, s.opts.HeartbeatIncoming)
	connect.Headers[stomp.HdrAuthorization] = "Bearer " + token

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		return nil, fmt.Errorf("failed to send CONNECT frame: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeWait)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("handshake read failed: %w", err)
		}

		if stomp.IsHeartBeat(raw) {
			continue
		}

		frame, err := stomp.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed handshake frame: %w", err)
		}

		switch frame.Command {
		case stomp.CmdConnected:
			return frame, nil
		case stomp.CmdError:
			return nil, fmt.Errorf("server rejected connection: %s", frame.Header(stomp.HdrMessage))
		default:
			return nil, fmt.Errorf("unexpected %s frame during handshake", frame.Command)
		}
	}
}

// readPump reads frames from the connection, routes MESSAGE frames to room
// subscriptions, surfaces ERROR frames through the status channel, and
// enforces the incoming heartbeat deadline. On read failure it initiates
// connection-loss handling.
func (s *Session) readPump(conn *websocket.Conn, gen uint64, incoming time.Duration) {
	readDeadline := func() time.Time {
		if incoming <= 0 {
			return time.Time{}
		}
		// Twice the negotiated interval, so a single late heartbeat does not
		// drop the connection.
		return time.Now().Add(2 * incoming)
	}

	if err := conn.SetReadDeadline(readDeadline()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline.")
		s.handleConnectionLoss(gen, conn, err)
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.handleConnectionLoss(gen, conn, classifyReadError(err))
			return
		}

		if err := conn.SetReadDeadline(readDeadline()); err != nil {
			s.handleConnectionLoss(gen, conn, err)
			return
		}

		if stomp.IsHeartBeat(raw) {
			continue
		}

		frame, err := stomp.Unmarshal(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed frame.")
			continue
		}

		switch frame.Command {
		case stomp.CmdMessage:
			s.dispatchInbound(frame)

		case stomp.CmdError:
			brokerErr := errs.NewError(errs.ErrBrokerRejected, frame.Header(stomp.HdrMessage))
			s.logger.Error().
				Str("broker_message", frame.Header(stomp.HdrMessage)).
				Msg("Received protocol ERROR frame.")
			s.emitStatus(Status{State: StateConnected, Err: brokerErr})

		case stomp.CmdReceipt:
			// Receipts are not requested; tolerate them silently.

		default:
			s.logger.Debug().Str("command", frame.Command).Msg("Ignoring unexpected frame.")
		}
	}
}

// classifyReadError maps a read failure to the session error taxonomy.
func classifyReadError(err error) error {
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return errs.NewError(errs.ErrHeartbeatTimeout)
	}
	return err
}

// writePump writes queued frames to the connection and sends outgoing
// heartbeats on the negotiated interval. It exits when the connection is
// torn down or a write fails.
func (s *Session) writePump(conn *websocket.Conn, gen uint64, outgoing time.Duration, sendQueue <-chan []byte, stop <-chan struct{}) {
	var heartbeats <-chan time.Time
	if outgoing > 0 {
		ticker := time.NewTicker(outgoing)
		defer ticker.Stop()
		heartbeats = ticker.C
	}

	for {
		select {
		case message := <-sendQueue:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline.")
				s.closeConn(conn)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Error().Err(err).Uint64("conn_gen", gen).Msg("Error writing frame.")
				s.closeConn(conn)
				return
			}

		case <-heartbeats:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline on heartbeat.")
				s.closeConn(conn)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, stomp.HeartBeat); err != nil {
				s.logger.Warn().Err(err).Uint64("conn_gen", gen).Msg("Error writing heartbeat.")
				s.closeConn(conn)
				return
			}

		case <-stop:
			return
		}
	}
}

// closeConn closes the connection; the read pump observes the failure and
// runs the loss handling exactly once.
func (s *Session) closeConn(conn *websocket.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Connection close error.")
	}
}

// handleConnectionLoss reacts to an unexpected connection failure: it tears
// down the dead connection and, unless the loss was caused by an explicit
// Disconnect, transitions to Connecting and starts the reconnect loop.
// Subscriptions are retained so routes resume on the new connection.
func (s *Session) handleConnectionLoss(gen uint64, conn *websocket.Conn, cause error) {
	s.closeConn(conn)

	s.mu.Lock()
	if s.gen != gen || !s.wantConnected {
		// A newer connection exists or Disconnect already handled teardown.
		s.mu.Unlock()
		return
	}

	s.gen++
	loopGen := s.gen
	s.conn = nil
	s.send = nil
	s.closeStopLocked()
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Warn().Err(cause).Msg("Connection lost. Reconnecting.")
	s.emitStatus(Status{State: StateConnecting, Err: cause})

	go s.reconnectLoop(loopGen)
}

// closeStopLocked closes the current connection's stop channel if it is
// still open. Caller must hold mu.
func (s *Session) closeStopLocked() {
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// reconnectLoop re-attempts the connection on a fixed delay until it
// succeeds or the session moves on without it. The loop is tied to the
// connection generation that started it: an explicit Disconnect (or a newer
// loss) bumps the generation, so a stale loop waking from its sleep sees the
// mismatch and stands down instead of dialing alongside a fresh Connect.
// The bearer token is re-read on every attempt.
func (s *Session) reconnectLoop(gen uint64) {
	for {
		time.Sleep(s.opts.ReconnectDelay)

		s.mu.Lock()
		if s.gen != gen || !s.wantConnected || s.state != StateConnecting {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		err := s.establish(gen)
		if err == nil {
			s.mu.Lock()
			s.settleWaitersLocked(nil)
			s.mu.Unlock()

			s.logger.Info().Msg("Reconnected.")
			s.emitStatus(Status{State: StateConnected})
			return
		}

		var closed *errs.CustomError
		if errors.As(err, &closed) && closed.Code == errs.ErrSessionClosed {
			return
		}

		s.logger.Warn().Err(err).Dur("retry_in", s.opts.ReconnectDelay).Msg("Reconnect attempt failed.")
	}
}

// Disconnect closes the session. The underlying connection is shut down with
// a best-effort DISCONNECT frame, every active subscription is torn down
// (their unsubscribe capabilities become no-ops), pending Connect waiters are
// failed, and automatic reconnection is suppressed. A later Connect starts
// from a clean slate.
func (s *Session) Disconnect() {
	s.mu.Lock()

	s.wantConnected = false
	s.gen++

	conn := s.conn
	s.conn = nil
	s.send = nil
	s.closeStopLocked()

	for _, sub := range s.subs {
		sub.deactivate()
	}
	s.subs = make(map[string]*roomSubscription)

	wasIdle := s.state == StateDisconnected
	s.state = StateDisconnected
	s.settleWaitersLocked(errs.NewError(errs.ErrSessionClosed))

	s.mu.Unlock()

	if conn != nil {
		disconnect := stomp.NewFrame(stomp.CmdDisconnect)
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
			if err := conn.WriteMessage(websocket.TextMessage, disconnect.Marshal()); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to send DISCONNECT frame.")
			}
		}
		s.closeConn(conn)
	}

	if !wasIdle {
		s.logger.Info().Msg("Session disconnected.")
		s.emitStatus(Status{State: StateDisconnected})
	}
}

// publish enqueues a marshaled frame on the current connection's outbound
// queue. It fails synchronously when the session is not connected or the
// queue is saturated.
func (s *Session) publish(frameBytes []byte) error {
	s.mu.Lock()
	if s.state != StateConnected || s.send == nil {
		s.mu.Unlock()
		return errs.NewError(errs.ErrNotConnected)
	}
	sendQueue := s.send
	s.mu.Unlock()

	select {
	case sendQueue <- frameBytes:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(sendQueue)).Msg("Send queue full, rejecting publish.")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// publishEnvelope marshals an outbound envelope into a SEND frame addressed
// to the shared publish destination and enqueues it.
func (s *Session) publishEnvelope(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	frame := stomp.NewFrame(stomp.CmdSend)
	frame.Headers[stomp.HdrDestination] = PublishDestination
	frame.Headers[stomp.HdrContentType] = "application/json"
	frame.Body = body

	return s.publish(frame.Marshal())
}
