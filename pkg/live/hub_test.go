package live

import (
	"encoding/json"
	"testing"
	"time"

	"collabchat/pkg/models"
	"collabchat/pkg/rooms"
	"collabchat/pkg/store"
)

// Tests drive the hub directly; clients are created without a socket and
// their outbound frames are read from the send buffer.

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func makeRoom(t *testing.T, a, b string) models.Room {
	t.Helper()
	r, err := rooms.GetOrCreate(models.NewParticipantRef(a, models.RoleBrand),
		[]string{a, b}, []models.Role{models.RoleBrand, models.RoleInfluencer})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func drain(t *testing.T, c *Client) []models.Event {
	t.Helper()
	var out []models.Event
	for {
		select {
		case data := <-c.send:
			var ev models.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("bad frame %q: %v", data, err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(evs []models.Event, name string) bool {
	for _, ev := range evs {
		if ev.Event == name {
			return true
		}
	}
	return false
}

func TestSubscribeAndFanout(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	cb := h.NewClient(nil, "b1")
	ci := h.NewClient(nil, "i1")
	h.register(cb)
	h.register(ci)
	h.Subscribe("b1", room.RoomID)
	h.Subscribe("i1", room.RoomID)

	// the earlier joiner hears about the later one
	if evs := drain(t, cb); !hasEvent(evs, models.EvMemberJoined) {
		t.Fatalf("no memberJoined for b1: %+v", evs)
	}
	// the joiner gets the online roster
	if evs := drain(t, ci); !hasEvent(evs, models.EvOnlineUsers) {
		t.Fatalf("no onlineUsers for i1: %+v", evs)
	}

	h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{
		Event:  models.EvNewMessage,
		RoomID: room.RoomID,
		Data:   map[string]string{"messageId": "msg_1"},
	})
	if evs := drain(t, ci); !hasEvent(evs, models.EvNewMessage) {
		t.Fatalf("recipient missed newMessage: %+v", evs)
	}
	// the sender is never echoed its own event
	if evs := drain(t, cb); hasEvent(evs, models.EvNewMessage) {
		t.Fatalf("sender echoed: %+v", evs)
	}

	online := h.OnlineUsers(room.RoomID)
	if len(online) != 2 {
		t.Fatalf("online users: %v", online)
	}
}

func TestSubscribeRejectsNonMember(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	c := h.NewClient(nil, "outsider")
	h.register(c)
	h.Subscribe("outsider", room.RoomID)
	if len(h.OnlineUsers(room.RoomID)) != 0 {
		t.Fatalf("non-member joined the room")
	}
	// unknown rooms are a silent no-op
	h.Subscribe("outsider", "no_such")
	h.Unsubscribe("outsider", "no_such")
}

func TestOfflineQueueDrainsOnReconnect(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	// i1 is offline; events queue
	h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{Event: models.EvNewMessage, RoomID: room.RoomID})
	h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{Event: models.EvMessageDeleted, RoomID: room.RoomID})

	ci := h.NewClient(nil, "i1")
	h.register(ci)
	evs := drain(t, ci)
	if len(evs) != 2 {
		t.Fatalf("drained events: got %d want 2", len(evs))
	}
	if evs[0].Event != models.EvNewMessage || evs[1].Event != models.EvMessageDeleted {
		t.Fatalf("drain order wrong: %+v", evs)
	}

	// queue is gone after the drain
	h.register(h.NewClient(nil, "i1"))
}

func TestOfflineQueueDropsOldest(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{MaxOfflinePerParticipant: 2})

	for _, id := range []string{"m1", "m2", "m3"} {
		h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{
			Event:  models.EvNewMessage,
			RoomID: room.RoomID,
			Data:   map[string]string{"messageId": id},
		})
	}
	ci := h.NewClient(nil, "i1")
	h.register(ci)
	evs := drain(t, ci)
	if len(evs) != 2 {
		t.Fatalf("queued events: got %d want 2", len(evs))
	}
	first, _ := evs[0].Data.(map[string]any)
	if first["messageId"] != "m2" {
		t.Fatalf("oldest not dropped, first drained: %v", evs[0].Data)
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	old := h.NewClient(nil, "i1")
	h.register(old)
	h.Subscribe("i1", room.RoomID)

	// reconnect with a new socket
	fresh := h.NewClient(nil, "i1")
	h.register(fresh)
	h.Subscribe("i1", room.RoomID)

	// the stale socket's teardown must not unregister the replacement
	h.unregister(old)
	if !h.IsOnline("i1") {
		t.Fatalf("stale teardown removed the fresh connection")
	}
	if len(h.OnlineUsers(room.RoomID)) != 1 {
		t.Fatalf("room subscription lost after supersede")
	}

	h.unregister(fresh)
	if h.IsOnline("i1") {
		t.Fatalf("fresh teardown did not remove the connection")
	}
}

func TestPublishDuringReconnectSupersede(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	h.register(h.NewClient(nil, "i1"))
	h.Subscribe("i1", room.RoomID)

	// fan-out snapshots the connection map before sending, so a publish
	// can race a reconnect that supersedes the snapshotted client; the
	// delivery must degrade to a drop, never a panic
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.register(h.NewClient(nil, "i1"))
			h.Subscribe("i1", room.RoomID)
		}
	}()
	for i := 0; i < 200; i++ {
		h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{
			Event:  models.EvNewMessage,
			RoomID: room.RoomID,
		})
	}
	<-done

	if !h.IsOnline("i1") {
		t.Fatalf("participant lost after reconnect churn")
	}
}

func TestTypingLifecycle(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{TypingTTL: 10 * time.Millisecond})

	cb := h.NewClient(nil, "b1")
	ci := h.NewClient(nil, "i1")
	h.register(cb)
	h.register(ci)
	h.Subscribe("b1", room.RoomID)
	h.Subscribe("i1", room.RoomID)
	drain(t, cb)
	drain(t, ci)

	h.SetTyping(room.RoomID, "i1", true)
	if evs := drain(t, cb); !hasEvent(evs, models.EvTypingStarted) {
		t.Fatalf("typingStarted not delivered: %+v", evs)
	}

	// stale entry expires via sweep and emits the stop on its behalf
	time.Sleep(20 * time.Millisecond)
	h.SweepTyping()
	if evs := drain(t, cb); !hasEvent(evs, models.EvTypingStopped) {
		t.Fatalf("sweep did not emit typingStopped: %+v", evs)
	}

	// explicit stop for an entry that is not present is a no-op
	h.SetTyping(room.RoomID, "i1", false)
}

func TestDisconnectNotifiesRooms(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	cb := h.NewClient(nil, "b1")
	ci := h.NewClient(nil, "i1")
	h.register(cb)
	h.register(ci)
	h.Subscribe("b1", room.RoomID)
	h.Subscribe("i1", room.RoomID)
	drain(t, cb)

	h.unregister(ci)
	if evs := drain(t, cb); !hasEvent(evs, models.EvMemberDisconnected) {
		t.Fatalf("memberDisconnected not delivered: %+v", evs)
	}
}

func TestDisconnectStopsTyping(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{})

	cb := h.NewClient(nil, "b1")
	ci := h.NewClient(nil, "i1")
	h.register(cb)
	h.register(ci)
	h.Subscribe("b1", room.RoomID)
	h.Subscribe("i1", room.RoomID)
	h.SetTyping(room.RoomID, "i1", true)
	drain(t, cb)

	// the dropped connection never sends its own stop frame
	h.unregister(ci)
	evs := drain(t, cb)
	if !hasEvent(evs, models.EvTypingStopped) {
		t.Fatalf("typingStopped not delivered on disconnect: %+v", evs)
	}
	if !hasEvent(evs, models.EvMemberDisconnected) {
		t.Fatalf("memberDisconnected not delivered: %+v", evs)
	}
}

func TestSweepOfflineExpiresQueued(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	h := NewHub(Options{OfflineTTL: 10 * time.Millisecond})

	h.Publish(room.RoomID, "b1", room.ParticipantIDs(), models.Event{Event: models.EvNewMessage, RoomID: room.RoomID})
	time.Sleep(20 * time.Millisecond)
	h.SweepOffline()

	ci := h.NewClient(nil, "i1")
	h.register(ci)
	if evs := drain(t, ci); len(evs) != 0 {
		t.Fatalf("expired events delivered: %+v", evs)
	}
}
