package chat

import (
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"mmchat/internal/app/user"
	"mmchat/internal/pkg/errs"
	"mmchat/internal/pkg/limiter"
)

func TestSendMessageValidatesContent(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	bob := user.User{ID: 42, Nickname: "bob"}

	assertErrCode(t, session.SendMessage("r1", "", bob), errs.ErrInvalidParams)
	assertErrCode(t, session.SendMessage("", "hi", bob), errs.ErrInvalidParams)

	tooLong := strings.Repeat("a", MaxContentRunes+1)
	assertErrCode(t, session.SendMessage("r1", tooLong, bob), errs.ErrContentTooLong)
}

func TestSendMessagePublishesEnvelope(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	bob := user.User{ID: 42, Nickname: "bob"}

	if err := session.SendMessage("r1", "hi there", bob); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	env := recvEnvelope(t, broker)
	if env.Type != EventChat {
		t.Fatalf("expected CHAT envelope, got %s", env.Type)
	}
	if env.ChatRoomID != "r1" || env.SenderID != 42 || env.SenderNickname != "bob" {
		t.Fatalf("envelope fields wrong: %+v", env)
	}
	if env.Timestamp.IsZero() {
		t.Fatal("envelope timestamp not set")
	}
}

func TestSendLimiterRejectsFlood(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, func(opts *Options) {
		// One sustained event per second, burst of two.
		opts.Limiter = limiter.NewSendLimiter(rate.Limit(1), 2)
	})
	connectSession(t, session)

	bob := user.User{ID: 42, Nickname: "bob"}

	if err := session.SendMessage("r1", "one", bob); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := session.SendMessage("r1", "two", bob); err != nil {
		t.Fatalf("second send: %v", err)
	}

	assertErrCode(t, session.SendMessage("r1", "three", bob), errs.ErrSendRateLimited)

	// Presence draws from its own bucket and is unaffected.
	if err := session.Join("r1", bob); err != nil {
		t.Fatalf("presence should not share the chat budget: %v", err)
	}
}

func TestPresenceEnvelopes(t *testing.T) {
	broker := newTestBroker(t)
	session := newTestSession(t, broker, nil)
	connectSession(t, session)

	bob := user.User{ID: 42, Nickname: "bob"}

	if err := session.Join("r1", bob); err != nil {
		t.Fatalf("Join: %v", err)
	}
	join := recvEnvelope(t, broker)
	if join.Type != EventJoin || !strings.Contains(join.Content, "bob") {
		t.Fatalf("unexpected JOIN envelope: %+v", join)
	}

	if err := session.Leave("r1", bob); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	leave := recvEnvelope(t, broker)
	if leave.Type != EventLeave || !strings.Contains(leave.Content, "bob") {
		t.Fatalf("unexpected LEAVE envelope: %+v", leave)
	}
}
