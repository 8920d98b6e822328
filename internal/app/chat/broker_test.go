package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"mmchat/internal/app/stomp"
)

// testBroker is an in-process STOMP-over-WebSocket broker. It accepts the
// chat protocol's handshake, tracks per-connection subscriptions, assigns
// message ids to published chat messages, and echoes them to subscribers,
// closely enough to the real backend to exercise the session end to end.
type testBroker struct {
	t      *testing.T
	server *httptest.Server

	upgrader websocket.Upgrader

	// heartBeat is the CONNECTED heart-beat header value. "0,0" disables
	// heartbeats, which keeps most tests free of timing effects.
	heartBeat string

	// connectDelay postpones the CONNECTED reply, widening the Connecting
	// window for idempotency tests.
	connectDelay time.Duration

	// rejectConnect makes the broker answer CONNECT with an ERROR frame.
	rejectConnect atomic.Bool

	// dials counts WebSocket upgrades.
	dials atomic.Int32

	// nextMessageID feeds server-assigned chat message ids.
	nextMessageID atomic.Int64

	// envelopes receives every decoded SEND body.
	envelopes chan Envelope

	mu       sync.Mutex
	conns    map[*brokerConn]struct{}
	lastAuth string
}

// brokerConn is one accepted connection with its subscription table.
type brokerConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]string // destination -> subscription id
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()

	b := &testBroker{
		t:         t,
		heartBeat: "0,0",
		envelopes: make(chan Envelope, 64),
		conns:     make(map[*brokerConn]struct{}),
	}
	b.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	router := chi.NewRouter()
	router.Get("/ws-stomp", b.handleWS)
	b.server = httptest.NewServer(router)

	t.Cleanup(b.close)

	return b
}

func (b *testBroker) close() {
	b.mu.Lock()
	for conn := range b.conns {
		conn.ws.Close()
	}
	b.conns = map[*brokerConn]struct{}{}
	b.mu.Unlock()

	b.server.Close()
}

// url returns the broker's WebSocket endpoint.
func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws-stomp"
}

func (b *testBroker) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.dials.Add(1)

	conn := &brokerConn{
		ws:   ws,
		subs: make(map[string]string),
	}

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		if stomp.IsHeartBeat(raw) {
			continue
		}

		frame, err := stomp.Unmarshal(raw)
		if err != nil {
			continue
		}

		switch frame.Command {
		case stomp.CmdConnect:
			b.mu.Lock()
			b.lastAuth = frame.Header(stomp.HdrAuthorization)
			b.mu.Unlock()

			if b.connectDelay > 0 {
				time.Sleep(b.connectDelay)
			}

			if b.rejectConnect.Load() {
				errorFrame := stomp.NewFrame(stomp.CmdError)
				errorFrame.Headers[stomp.HdrMessage] = "access denied"
				conn.write(errorFrame.Marshal())
				return
			}

			connected := stomp.NewFrame(stomp.CmdConnected)
			connected.Headers[stomp.HdrVersion] = "1.2"
			connected.Headers[stomp.HdrHeartBeat] = b.heartBeat
			conn.write(connected.Marshal())

		case stomp.CmdSubscribe:
			conn.mu.Lock()
			conn.subs[frame.Header(stomp.HdrDestination)] = frame.Header(stomp.HdrID)
			conn.mu.Unlock()

		case stomp.CmdUnsubscribe:
			id := frame.Header(stomp.HdrID)
			conn.mu.Lock()
			for dest, subID := range conn.subs {
				if subID == id {
					delete(conn.subs, dest)
				}
			}
			conn.mu.Unlock()

		case stomp.CmdSend:
			var env Envelope
			if err := json.Unmarshal(frame.Body, &env); err != nil {
				continue
			}
			b.envelopes <- env

			if env.Type == EventChat {
				b.broadcast(ChatMessage{
					MessageID:      b.nextMessageID.Add(1),
					ChatRoomID:     env.ChatRoomID,
					SenderID:       env.SenderID,
					SenderNickname: env.SenderNickname,
					Content:        env.Content,
					MessageType:    MessageText,
					CreatedAt:      env.Timestamp,
				})
			}

		case stomp.CmdDisconnect:
			return
		}
	}
}

// write sends one raw frame, serializing writers for the connection.
func (c *brokerConn) write(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	c.ws.WriteMessage(websocket.TextMessage, frame)
}

// broadcast delivers a chat message to every connection subscribed to the
// message's room destination.
func (b *testBroker) broadcast(msg ChatMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		b.t.Errorf("broadcast marshal: %v", err)
		return
	}
	b.pushRaw(RoomDestination(msg.ChatRoomID), body)
}

// push injects a server-originated chat message for a room.
func (b *testBroker) push(roomID string, msg ChatMessage) {
	msg.ChatRoomID = roomID
	b.broadcast(msg)
}

// pushRaw delivers an arbitrary MESSAGE body to subscribers of destination.
func (b *testBroker) pushRaw(destination string, body []byte) {
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.mu.Lock()
		subID, ok := conn.subs[destination]
		conn.mu.Unlock()
		if !ok {
			continue
		}

		frame := stomp.NewFrame(stomp.CmdMessage)
		frame.Headers[stomp.HdrDestination] = destination
		frame.Headers[stomp.HdrSubscription] = subID
		frame.Headers[stomp.HdrMessageID] = "srv-msg"
		frame.Headers[stomp.HdrContentType] = "application/json"
		frame.Body = body

		conn.write(frame.Marshal())
	}
}

// sendError emits a protocol-level ERROR frame on every live connection.
func (b *testBroker) sendError(message string) {
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	frame := stomp.NewFrame(stomp.CmdError)
	frame.Headers[stomp.HdrMessage] = message

	for _, conn := range conns {
		conn.write(frame.Marshal())
	}
}

// dropConnections severs every live connection without a close handshake,
// simulating a network drop.
func (b *testBroker) dropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.conns {
		conn.ws.Close()
	}
}

// subscriberCount reports how many live connections hold a subscription for
// the destination.
func (b *testBroker) subscriberCount(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for conn := range b.conns {
		conn.mu.Lock()
		if _, ok := conn.subs[destination]; ok {
			count++
		}
		conn.mu.Unlock()
	}
	return count
}

// authHeader returns the Authorization header of the latest CONNECT.
func (b *testBroker) authHeader() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}
