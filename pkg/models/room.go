package models

import (
	"sort"
	"strings"
	"time"
)

// ChatType distinguishes a two-party room from a group room.
type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// RoomStatus is the administrative lifecycle state of a room.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomInactive RoomStatus = "inactive"
	RoomBlocked  RoomStatus = "blocked"
)

// Room is a persistent addressable channel scoped to a fixed participant
// set. Rooms are never hard-deleted; status transitions administratively.
type Room struct {
	RoomID        string         `json:"roomId"`
	Participants  []Member       `json:"participants"`
	ChatType      ChatType       `json:"chatType"`
	Status        RoomStatus     `json:"status"`
	LastMessageID string         `json:"lastMessageId,omitempty"`
	CreatedBy     ParticipantRef `json:"createdBy"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// RoomIDFor computes the deterministic room identity for a participant
// set: the sorted, deduplicated ids joined with "_". Lookup-or-create is
// idempotent because the id is a pure function of the set.
func RoomIDFor(participantIDs []string) string {
	seen := make(map[string]struct{}, len(participantIDs))
	ids := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// HasParticipant reports whether pid is a member of the room.
func (r *Room) HasParticipant(pid string) bool {
	for _, m := range r.Participants {
		if m.ParticipantID == pid {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the member ids in room order.
func (r *Room) ParticipantIDs() []string {
	out := make([]string, 0, len(r.Participants))
	for _, m := range r.Participants {
		out = append(out, m.ParticipantID)
	}
	return out
}
