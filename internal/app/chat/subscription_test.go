package chat

import (
	"testing"
	"time"

	"mmchat/internal/pkg/errs"
)

func TestSubscriptionIsolationBetweenRooms(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	chA, _ := subscribeChan(t, session, "room-a")
	chB, _ := subscribeChan(t, session, "room-b")

	waitUntil(t, func() bool {
		return broker.subscriberCount(RoomDestination("room-a")) == 1 &&
			broker.subscriberCount(RoomDestination("room-b")) == 1
	}, "broker did not register both subscriptions")

	broker.push("room-a", ChatMessage{MessageID: 1, SenderID: 9, Content: "for-a", CreatedAt: time.Now()})

	if got := recvMessage(t, chA); got.Content != "for-a" {
		t.Fatalf("room A received wrong message: %+v", got)
	}
	expectNoMessage(t, chB)

	broker.push("room-b", ChatMessage{MessageID: 2, SenderID: 9, Content: "for-b", CreatedAt: time.Now()})

	if got := recvMessage(t, chB); got.Content != "for-b" {
		t.Fatalf("room B received wrong message: %+v", got)
	}
	expectNoMessage(t, chA)
}

func TestUnsubscribeIsTerminal(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	ch, unsubscribe := subscribeChan(t, session, "r1")

	waitUntil(t, func() bool {
		return broker.subscriberCount(RoomDestination("r1")) == 1
	}, "broker did not register the subscription")

	broker.push("r1", ChatMessage{MessageID: 1, SenderID: 2, Content: "before", CreatedAt: time.Now()})
	recvMessage(t, ch)

	unsubscribe()

	waitUntil(t, func() bool {
		return broker.subscriberCount(RoomDestination("r1")) == 0
	}, "broker still holds the subscription after unsubscribe")

	broker.push("r1", ChatMessage{MessageID: 2, SenderID: 2, Content: "after", CreatedAt: time.Now()})
	expectNoMessage(t, ch)

	// Calling the capability again is a no-op.
	unsubscribe()
}

func TestDuplicateRoomSubscriptionRejected(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	_, unsubscribe := subscribeChan(t, session, "r1")

	_, err := session.SubscribeToRoom("r1", func(ChatMessage) {})
	assertErrCode(t, err, errs.ErrRoomAlreadySubscribed)

	// After unsubscribing, the room is free again.
	unsubscribe()
	if _, err := session.SubscribeToRoom("r1", func(ChatMessage) {}); err != nil {
		t.Fatalf("resubscribe after unsubscribe failed: %v", err)
	}
}

func TestMalformedFrameIsDroppedWithoutKillingSession(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	ch, _ := subscribeChan(t, session, "r1")

	waitUntil(t, func() bool {
		return broker.subscriberCount(RoomDestination("r1")) == 1
	}, "broker did not register the subscription")

	broker.pushRaw(RoomDestination("r1"), []byte("this is not json"))
	expectNoMessage(t, ch)

	if session.State() != StateConnected {
		t.Fatalf("session dropped after malformed frame: %s", session.State())
	}

	broker.push("r1", ChatMessage{MessageID: 3, SenderID: 2, Content: "still-alive", CreatedAt: time.Now()})
	if got := recvMessage(t, ch); got.Content != "still-alive" {
		t.Fatalf("expected delivery after malformed frame, got %+v", got)
	}
}

func TestSubscribeValidatesArguments(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	_, err := session.SubscribeToRoom("", func(ChatMessage) {})
	assertErrCode(t, err, errs.ErrInvalidParams)

	_, err = session.SubscribeToRoom("r1", nil)
	assertErrCode(t, err, errs.ErrInvalidParams)
}
