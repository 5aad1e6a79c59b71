package live

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"collabchat/pkg/logger"
	"collabchat/pkg/models"
	"collabchat/pkg/store"
	"collabchat/pkg/telemetry"
)

// Hub routes events between persisted state and live connections. One
// connection per participant: a reconnect supersedes the old socket, and
// connection ids keep a stale socket's teardown from tearing down its
// replacement. Members without a live connection get events queued into a
// bounded per-participant FIFO that drains on the next connect.

// Options tune hub capacity and expiry.
type Options struct {
	MaxOfflinePerParticipant int
	OfflineTTL               time.Duration
	TypingTTL                time.Duration
	SendBuffer               int
}

func (o *Options) defaults() {
	if o.MaxOfflinePerParticipant <= 0 {
		o.MaxOfflinePerParticipant = 100
	}
	if o.OfflineTTL <= 0 {
		o.OfflineTTL = 24 * time.Hour
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

type queued struct {
	data []byte
	at   time.Time
}

// Hub is safe for concurrent use; a single mutex guards all maps.
type Hub struct {
	opts Options

	mu       sync.Mutex
	conns    map[string]*Client                   // participantID -> live connection
	roomSubs map[string]map[string]bool           // roomID -> participantID set
	typing   map[string]map[string]time.Time      // roomID -> participantID -> last signal
	offline  map[string][]queued                  // participantID -> pending events
}

func NewHub(opts Options) *Hub {
	opts.defaults()
	return &Hub{
		opts:     opts,
		conns:    make(map[string]*Client),
		roomSubs: make(map[string]map[string]bool),
		typing:   make(map[string]map[string]time.Time),
		offline:  make(map[string][]queued),
	}
}

func encodeEvent(ev models.Event) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return bytes.TrimRight(out, "\n"), nil
}

// register attaches a client, superseding any previous connection for the
// same participant, and drains the participant's offline queue onto the
// new socket.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	prev := h.conns[c.participantID]
	h.conns[c.participantID] = c
	pending := h.offline[c.participantID]
	delete(h.offline, c.participantID)
	h.mu.Unlock()

	if prev != nil {
		// the superseded socket's teardown will no-op on the id check,
		// so settle its gauge here
		prev.closeSend()
		telemetry.LiveConnections.Dec()
	}
	telemetry.LiveConnections.Inc()
	logger.Info("live_connected", "participant", c.participantID, "conn", c.connID)

	now := time.Now()
	for _, q := range pending {
		if h.opts.OfflineTTL > 0 && now.Sub(q.at) > h.opts.OfflineTTL {
			continue
		}
		c.enqueue(q.data)
	}
}

// unregister detaches a client. A stale socket whose participant has
// already reconnected must not disturb the replacement, so the stored
// connection id is checked first.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	cur, ok := h.conns[c.participantID]
	if !ok || cur.connID != c.connID {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.participantID)
	var roomIDs []string
	for roomID, subs := range h.roomSubs {
		if subs[c.participantID] {
			delete(subs, c.participantID)
			if len(subs) == 0 {
				delete(h.roomSubs, roomID)
			}
			roomIDs = append(roomIDs, roomID)
		}
	}
	var typingRooms []string
	for roomID, ts := range h.typing {
		if _, ok := ts[c.participantID]; ok {
			delete(ts, c.participantID)
			if len(ts) == 0 {
				delete(h.typing, roomID)
			}
			typingRooms = append(typingRooms, roomID)
		}
	}
	h.mu.Unlock()

	telemetry.LiveConnections.Dec()
	// a dropped connection never sends its own stop-typing frame
	for _, roomID := range typingRooms {
		h.broadcast(roomID, c.participantID, models.Event{
			Event:  models.EvTypingStopped,
			RoomID: roomID,
			Data:   map[string]string{"participantId": c.participantID},
		})
	}
	for _, roomID := range roomIDs {
		telemetry.RoomSubscriptions.Dec()
		h.broadcast(roomID, c.participantID, models.Event{
			Event:  models.EvMemberDisconnected,
			RoomID: roomID,
			Data:   map[string]string{"participantId": c.participantID},
		})
	}
	logger.Info("live_disconnected", "participant", c.participantID, "conn", c.connID)
}

// Subscribe joins the participant's live session to a room after a
// membership check against the directory. Peers get memberJoined and the
// joiner receives the current online roster.
func (h *Hub) Subscribe(participantID, roomID string) {
	room, err := store.GetRoom(roomID)
	if err != nil || !room.HasParticipant(participantID) {
		logger.Warn("live_join_rejected", "participant", participantID, "room", roomID)
		return
	}

	h.mu.Lock()
	subs := h.roomSubs[roomID]
	if subs == nil {
		subs = make(map[string]bool)
		h.roomSubs[roomID] = subs
	}
	already := subs[participantID]
	subs[participantID] = true
	c := h.conns[participantID]
	h.mu.Unlock()

	if !already {
		telemetry.RoomSubscriptions.Inc()
		h.broadcast(roomID, participantID, models.Event{
			Event:  models.EvMemberJoined,
			RoomID: roomID,
			Data:   map[string]string{"participantId": participantID},
		})
	}
	if c != nil {
		if data, err := encodeEvent(models.Event{
			Event:  models.EvOnlineUsers,
			RoomID: roomID,
			Data:   h.OnlineUsers(roomID),
		}); err == nil {
			c.enqueue(data)
		}
	}
}

// Unsubscribe leaves a room's live session. Unknown rooms are a no-op.
func (h *Hub) Unsubscribe(participantID, roomID string) {
	h.mu.Lock()
	subs, ok := h.roomSubs[roomID]
	if !ok || !subs[participantID] {
		h.mu.Unlock()
		return
	}
	delete(subs, participantID)
	if len(subs) == 0 {
		delete(h.roomSubs, roomID)
	}
	if ts := h.typing[roomID]; ts != nil {
		delete(ts, participantID)
	}
	h.mu.Unlock()

	telemetry.RoomSubscriptions.Dec()
	h.broadcast(roomID, participantID, models.Event{
		Event:  models.EvMemberLeft,
		RoomID: roomID,
		Data:   map[string]string{"participantId": participantID},
	})
}

// broadcast sends to the room's current live subscribers, excluding exclude.
func (h *Hub) broadcast(roomID, exclude string, ev models.Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		logger.Error("event_encode_failed", "event", ev.Event, "err", err)
		return
	}
	h.mu.Lock()
	var targets []*Client
	for pid := range h.roomSubs[roomID] {
		if pid == exclude {
			continue
		}
		if c := h.conns[pid]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.enqueue(data)
		telemetry.FanoutDeliveries.Inc()
	}
}

// Publish fans a persisted event out to the room. Subscribed online
// members get it immediately; other recipients get it queued for their
// next connect. The sender is never echoed. Implements the message
// store's Publisher contract; fan-out failure never affects persistence.
func (h *Hub) Publish(roomID, senderID string, recipients []string, ev models.Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		logger.Error("event_encode_failed", "event", ev.Event, "err", err)
		return
	}

	h.mu.Lock()
	subs := h.roomSubs[roomID]
	var online []*Client
	var offline []string
	for _, pid := range recipients {
		if pid == senderID {
			continue
		}
		if subs[pid] {
			if c := h.conns[pid]; c != nil {
				online = append(online, c)
				continue
			}
		}
		offline = append(offline, pid)
	}
	now := time.Now()
	for _, pid := range offline {
		q := h.offline[pid]
		if len(q) >= h.opts.MaxOfflinePerParticipant {
			q = q[1:]
			telemetry.OfflineDropped.Inc()
		}
		h.offline[pid] = append(q, queued{data: data, at: now})
		telemetry.OfflineQueued.Inc()
	}
	h.mu.Unlock()

	for _, c := range online {
		c.enqueue(data)
		telemetry.FanoutDeliveries.Inc()
	}
}

// SetTyping records and broadcasts a typing signal. Entries expire via
// SweepTyping if the stop signal never arrives.
func (h *Hub) SetTyping(roomID, participantID string, isTyping bool) {
	h.mu.Lock()
	if _, ok := h.roomSubs[roomID]; !ok {
		h.mu.Unlock()
		logger.Debug("typing_unknown_room", "room", roomID, "participant", participantID)
		return
	}
	ts := h.typing[roomID]
	if isTyping {
		if ts == nil {
			ts = make(map[string]time.Time)
			h.typing[roomID] = ts
		}
		ts[participantID] = time.Now()
	} else if ts != nil {
		delete(ts, participantID)
		if len(ts) == 0 {
			delete(h.typing, roomID)
		}
	}
	h.mu.Unlock()

	name := models.EvTypingStarted
	if !isTyping {
		name = models.EvTypingStopped
	}
	h.broadcast(roomID, participantID, models.Event{
		Event:  name,
		RoomID: roomID,
		Data:   map[string]string{"participantId": participantID},
	})
}

// OnlineUsers returns the sorted ids of the room's live subscribers with
// an attached connection.
func (h *Hub) OnlineUsers(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.roomSubs[roomID]))
	for pid := range h.roomSubs[roomID] {
		if h.conns[pid] != nil {
			out = append(out, pid)
		}
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether the participant holds a live connection.
func (h *Hub) IsOnline(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[participantID] != nil
}

// SweepTyping clears typing entries older than the typing TTL and emits
// the stop signal on their behalf.
func (h *Hub) SweepTyping() {
	cutoff := time.Now().Add(-h.opts.TypingTTL)
	type stale struct{ roomID, pid string }
	var expired []stale

	h.mu.Lock()
	for roomID, ts := range h.typing {
		for pid, at := range ts {
			if at.Before(cutoff) {
				delete(ts, pid)
				expired = append(expired, stale{roomID, pid})
			}
		}
		if len(ts) == 0 {
			delete(h.typing, roomID)
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		h.broadcast(s.roomID, s.pid, models.Event{
			Event:  models.EvTypingStopped,
			RoomID: s.roomID,
			Data:   map[string]string{"participantId": s.pid},
		})
	}
}

// SweepOffline drops queued events past the offline TTL.
func (h *Hub) SweepOffline() {
	cutoff := time.Now().Add(-h.opts.OfflineTTL)
	h.mu.Lock()
	defer h.mu.Unlock()
	for pid, q := range h.offline {
		kept := q[:0]
		for _, e := range q {
			if e.at.After(cutoff) {
				kept = append(kept, e)
			} else {
				telemetry.OfflineDropped.Inc()
			}
		}
		if len(kept) == 0 {
			delete(h.offline, pid)
		} else {
			h.offline[pid] = kept
		}
	}
}
